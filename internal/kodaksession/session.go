// Package kodaksession drives the Kodak Step family's connect/print
// state machine on top of internal/kodakproto and a transport.Transport,
// mirroring the Python driver's KodakStepPrinter.
package kodaksession

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tjsw/zinkprint/internal/imagepipe"
	"github.com/tjsw/zinkprint/internal/kodakproto"
	"github.com/tjsw/zinkprint/internal/transport"
	"github.com/tjsw/zinkprint/internal/zerr"
	"github.com/tjsw/zinkprint/internal/zlog"
)

// State is the session's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateInitialized
	StatePrinting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateInitialized:
		return "initialized"
	case StatePrinting:
		return "printing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	defaultMinBattery     = 30
	chunkSize             = 4096
	chunkDelay            = 20 * time.Millisecond
	postInitDelay         = 500 * time.Millisecond
	defaultCommandTimeout = 5 * time.Second
	reconnectBackoff      = 6 * time.Second
)

// Options carries the live configuration knobs a Printer's Config
// threads down into a session. Zero values resolve to the package's
// documented defaults.
type Options struct {
	MinBattery     int
	CommandTimeout time.Duration
	ChunkDelay     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinBattery == 0 {
		o.MinBattery = defaultMinBattery
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	if o.ChunkDelay == 0 {
		o.ChunkDelay = chunkDelay
	}
	return o
}

// Status is the normalized view returned by Status.
type Status struct {
	BatteryPercent int
	IsCharging     bool
	IsReady        bool
	IsCoverOpen    bool
	Error          error
}

// Settings is the normalized view returned by Settings.
type Settings struct {
	AutoPowerOffMinutes int
	PrintCount          int
}

// Session drives a single Kodak Step (or Step Slim/Snap 2) connection.
type Session struct {
	dial   func(transport.Device) (transport.Transport, error)
	device transport.Device
	isSlim bool

	tr    transport.Transport
	state State

	battery    int
	isCharging bool

	backoff time.Duration
	opts    Options
}

// New builds a session against dev. dialFn defaults to transport.Dial
// when nil; tests inject transporttest.Fake-backed dialers instead.
// Zero-value opts resolves to the package's documented defaults.
func New(dev transport.Device, isSlim bool, opts Options, dialFn func(transport.Device) (transport.Transport, error)) *Session {
	if dialFn == nil {
		dialFn = transport.Dial
	}
	return &Session{dial: dialFn, device: dev, isSlim: isSlim, state: StateDisconnected, backoff: reconnectBackoff, opts: opts.withDefaults()}
}

// SetReconnectBackoff overrides the delay Reconnect waits before
// redialing. Tests use this to avoid real sleeps.
func (s *Session) SetReconnectBackoff(d time.Duration) {
	s.backoff = d
}

func (s *Session) State() State { return s.state }

// Connect opens the transport. It does not send any protocol
// commands; call Initialize afterward to run the handshake.
func (s *Session) Connect() error {
	tr, err := s.dial(s.device)
	if err != nil {
		return zerr.Wrap(zerr.KindUnreachable, "failed to open transport", err)
	}
	s.tr = tr
	s.state = StateConnected
	return nil
}

// Initialize sends GetAccessoryInfo and caches the reported battery.
// A NoPaper response is tolerated — the device answers info queries
// even with an empty tray — everything else non-zero is fatal.
func (s *Session) Initialize() error {
	resp, err := s.roundTrip(kodakproto.BuildGetAccessoryInfo(s.isSlim))
	if err != nil {
		return s.fail(err)
	}

	s.battery = resp.BatteryPercent()

	if resp.ErrorCode != kodakproto.ErrSuccess && resp.ErrorCode != kodakproto.ErrNoPaper {
		return s.fail(zerr.New(kodakproto.ToKind(resp.ErrorCode), kodakproto.ErrorMessage(resp.ErrorCode)))
	}

	s.state = StateInitialized
	time.Sleep(postInitDelay)

	if resp.ErrorCode == kodakproto.ErrNoPaper {
		return zerr.New(zerr.KindNoPaper, "no paper loaded")
	}
	return nil
}

// Status refreshes battery, charging, and paper readiness.
func (s *Session) Status() (Status, error) {
	if err := s.requireConnected(); err != nil {
		return Status{}, err
	}

	accInfo, err := s.roundTrip(kodakproto.BuildGetAccessoryInfo(s.isSlim))
	if err != nil {
		return Status{}, s.fail(err)
	}
	s.battery = accInfo.BatteryPercent()

	battResp, err := s.roundTrip(kodakproto.BuildGetBatteryLevel())
	if err != nil {
		return Status{}, s.fail(err)
	}
	s.isCharging = battResp.IsCharging()

	pageResp, err := s.roundTrip(kodakproto.BuildGetPageType())
	if err != nil {
		return Status{}, s.fail(err)
	}

	st := Status{
		BatteryPercent: s.battery,
		IsCharging:     s.isCharging,
		IsCoverOpen:    pageResp.ErrorCode == kodakproto.ErrCoverOpen,
	}
	if pageResp.ErrorCode != kodakproto.ErrSuccess {
		st.Error = zerr.New(kodakproto.ToKind(pageResp.ErrorCode), kodakproto.ErrorMessage(pageResp.ErrorCode))
	}
	st.IsReady = st.Error == nil && s.battery >= s.opts.MinBattery
	return st, nil
}

// Settings reads auto-power-off timeout and lifetime print count.
func (s *Session) Settings() (Settings, error) {
	if err := s.requireConnected(); err != nil {
		return Settings{}, err
	}

	offResp, err := s.roundTrip(kodakproto.BuildGetAutoPowerOff())
	if err != nil {
		return Settings{}, s.fail(err)
	}
	time.Sleep(100 * time.Millisecond)

	countResp, err := s.roundTrip(kodakproto.BuildGetPrintCount())
	if err != nil {
		return Settings{}, s.fail(err)
	}

	return Settings{
		AutoPowerOffMinutes: offResp.AutoPowerOffMinutes(),
		PrintCount:          countResp.PrintCount(),
	}, nil
}

// Print validates and transfers a JPEG. jpeg is used verbatim — the
// Kodak Step family does its own scaling/cropping in firmware.
func (s *Session) Print(jpeg []byte, copies int) error {
	if err := imagepipe.ValidateKodak(jpeg); err != nil {
		return err
	}
	if err := s.requireConnected(); err != nil {
		return err
	}

	accInfo, err := s.roundTrip(kodakproto.BuildGetAccessoryInfo(s.isSlim))
	if err != nil {
		return s.fail(err)
	}
	s.battery = accInfo.BatteryPercent()
	if s.battery < s.opts.MinBattery {
		return zerr.BatteryTooLow(s.battery)
	}

	pageResp, err := s.roundTrip(kodakproto.BuildGetPageType())
	if err != nil {
		return s.fail(err)
	}
	if pageResp.ErrorCode != kodakproto.ErrSuccess {
		return s.fail(zerr.New(kodakproto.ToKind(pageResp.ErrorCode), kodakproto.ErrorMessage(pageResp.ErrorCode)))
	}

	readyPkt, err := kodakproto.BuildPrintReady(len(jpeg), copies)
	if err != nil {
		return err
	}
	readyResp, err := s.roundTrip(readyPkt)
	if err != nil {
		return s.fail(err)
	}
	if readyResp.ErrorCode != kodakproto.ErrSuccess {
		return s.fail(zerr.New(kodakproto.ToKind(readyResp.ErrorCode), kodakproto.ErrorMessage(readyResp.ErrorCode)))
	}

	time.Sleep(100 * time.Millisecond)

	s.state = StatePrinting
	if err := s.sendChunks(jpeg); err != nil {
		return s.fail(err)
	}
	s.drainTrailingAcks()

	s.state = StateInitialized
	zlog.Debug("kodak print transfer complete", zap.Int("bytes", len(jpeg)))
	return nil
}

// drainTrailingAcks makes a single short-timeout attempt to read a
// trailing StartOfSend/EndOfReceived/ErrorMessage ack the device may
// send after the final chunk. Whether these acks arrive at all is
// unconfirmed by the device documentation, so their absence is not an
// error — this is tolerance, not a required handshake step.
func (s *Session) drainTrailingAcks() {
	_, _ = s.tr.ReadExact(kodakproto.PacketSize, 50*time.Millisecond)
}

func (s *Session) sendChunks(data []byte) error {
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := s.tr.Write(data[start:end]); err != nil {
			return zerr.Wrap(zerr.KindIO, "chunk transfer failed", err)
		}
		time.Sleep(s.opts.ChunkDelay)
	}
	return nil
}

// roundTrip writes a request packet and reads back exactly one
// PacketSize response, enforcing the lockstep discipline every Kodak
// command shares.
func (s *Session) roundTrip(req []byte) (*kodakproto.Response, error) {
	if err := s.tr.Write(req); err != nil {
		return nil, zerr.Wrap(zerr.KindIO, "write failed", err)
	}
	raw, err := s.tr.ReadExact(kodakproto.PacketSize, s.opts.CommandTimeout)
	if err != nil {
		return nil, err
	}
	return kodakproto.Parse(raw)
}

// requireConnected rejects any operation before Initialize has
// completed the handshake — Connect alone leaves the session unable
// to answer protocol commands.
func (s *Session) requireConnected() error {
	if s.state != StateInitialized || s.tr == nil {
		return zerr.New(zerr.KindInvalidState, "session is not initialized")
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.state = StateFailed
	if s.tr != nil {
		_ = s.tr.Close()
	}
	return err
}

// Reconnect implements the transient-failure recovery path: close,
// wait, reopen, and re-run the accessory-info handshake once.
func (s *Session) Reconnect() error {
	if s.tr != nil {
		_ = s.tr.Close()
	}
	time.Sleep(s.backoff)

	if err := s.Connect(); err != nil {
		return fmt.Errorf("reconnect failed: %w", err)
	}
	return s.Initialize()
}

// Close releases the underlying transport.
func (s *Session) Close() error {
	if s.tr == nil {
		return nil
	}
	err := s.tr.Close()
	s.state = StateDisconnected
	return err
}
