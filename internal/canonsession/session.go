// Package canonsession drives the Canon Ivy 2's connect/print state
// machine on top of internal/canonproto and a transport.Transport,
// mirroring the Python driver's CanonIvy2Printer. Unlike Kodak Step,
// Canon requires an explicit session handshake (StartSession) and
// enforces strict ACK-echo checking on every command.
package canonsession

import (
	"bytes"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tjsw/zinkprint/internal/canonproto"
	"github.com/tjsw/zinkprint/internal/imagepipe"
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
	defaultMinBattery      = 30
	chunkSize              = 990
	chunkDelay             = 20 * time.Millisecond
	defaultCommandTimeout  = 5 * time.Second
	defaultAutoDisconnectS = 30 * time.Second
)

// Options carries the live configuration knobs a Printer's Config
// threads down into a session. Zero values resolve to the package's
// documented defaults.
type Options struct {
	MinBattery     int
	CommandTimeout time.Duration
	ChunkDelay     time.Duration
	AutoDisconnect time.Duration
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
	if o.AutoDisconnect == 0 {
		o.AutoDisconnect = defaultAutoDisconnectS
	}
	return o
}

// Status is the normalized view returned by Status.
type Status struct {
	BatteryPercent  int
	USBConnected    bool
	IsReady         bool
	IsCoverOpen     bool
	IsNoPaper       bool
	WrongSmartSheet bool
	Error           error
}

// Settings is the normalized view returned by Settings.
type Settings struct {
	AutoPowerOffMinutes int
	FirmwareVersion     string
	TMDVersion          int
	PhotosPrinted       int
	ColorID             int
}

// Session drives a single Canon Ivy 2 connection.
type Session struct {
	dial   func(transport.Device) (transport.Transport, error)
	device transport.Device

	tr    transport.Transport
	state State

	battery int
	mtu     int

	mu            sync.Mutex
	disconnectTmr *time.Timer
	disconnectFn  func()

	opts Options
}

// New builds a session against dev. dialFn defaults to
// transport.Dial when nil; tests inject transporttest.Fake-backed
// dialers instead. Zero-value opts resolves to the package's
// documented defaults.
func New(dev transport.Device, opts Options, dialFn func(transport.Device) (transport.Transport, error)) *Session {
	if dialFn == nil {
		dialFn = transport.Dial
	}
	return &Session{dial: dialFn, device: dev, state: StateDisconnected, opts: opts.withDefaults()}
}

func (s *Session) State() State { return s.state }

// Connect opens the transport. Call StartSession afterward to run
// the handshake.
func (s *Session) Connect() error {
	tr, err := s.dial(s.device)
	if err != nil {
		return zerr.Wrap(zerr.KindUnreachable, "failed to open transport", err)
	}
	s.tr = tr
	s.state = StateConnected
	return nil
}

// StartSession sends the session-init handshake and caches the
// reported battery and MTU.
func (s *Session) StartSession() error {
	resp, err := s.roundTrip(canonproto.BuildStartSession(), canonproto.CommandStartSession)
	if err != nil {
		return s.fail(err)
	}

	battery, mtu := resp.BatteryAndMTU()
	s.battery = battery
	s.mtu = mtu
	s.state = StateInitialized

	zlog.Debug("canon session started", zap.Int("battery", battery), zap.Int("mtu", mtu))
	s.armAutoDisconnect()
	return nil
}

// armAutoDisconnect (re)starts the idle timer (opts.AutoDisconnect,
// 30 seconds by default). Firing the
// timer only posts a disconnect request to disconnectFn — it never
// touches session state directly, keeping the timer goroutine's only
// interaction with the session message-passing, per the single-
// threaded cooperative scheduling model the rest of this package
// follows.
func (s *Session) armAutoDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disconnectTmr != nil {
		s.disconnectTmr.Stop()
	}
	fn := s.disconnectFn
	if fn == nil {
		fn = func() { _ = s.Close() }
	}
	s.disconnectTmr = time.AfterFunc(s.opts.AutoDisconnect, fn)
}

// SetAutoDisconnectFunc overrides what the idle timer invokes on
// firing. Tests use this to observe firing without a real Close.
func (s *Session) SetAutoDisconnectFunc(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectFn = fn
}

func (s *Session) cancelAutoDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectTmr != nil {
		s.disconnectTmr.Stop()
	}
}

// Status sends GetStatus and parses battery, USB, and the
// cover/paper/smart-sheet queue flags.
func (s *Session) Status() (Status, error) {
	if err := s.requireConnected(); err != nil {
		return Status{}, err
	}
	s.armAutoDisconnect()

	resp, err := s.roundTrip(canonproto.BuildGetStatus(), canonproto.CommandGetStatus)
	if err != nil {
		return Status{}, s.fail(err)
	}
	fields := resp.Status()
	s.battery = fields.BatteryPercent

	st := Status{
		BatteryPercent:  fields.BatteryPercent,
		USBConnected:    fields.USBConnected,
		IsCoverOpen:     fields.CoverOpen,
		IsNoPaper:       fields.NoPaper,
		WrongSmartSheet: fields.WrongSmartSheet,
	}
	switch {
	case fields.CoverOpen:
		st.Error = zerr.New(zerr.KindCoverOpen, "cover is open")
	case fields.NoPaper:
		st.Error = zerr.New(zerr.KindNoPaper, "no paper")
	case fields.WrongSmartSheet:
		st.Error = zerr.New(zerr.KindWrongSmartSheet, "wrong smart sheet inserted")
	case fields.ErrorCode != 0:
		st.Error = zerr.New(canonproto.ToKind(fields.ErrorCode), "device reported an error")
	}
	st.IsReady = st.Error == nil && fields.BatteryPercent >= s.opts.MinBattery
	return st, nil
}

// Settings reads the SettingAccessory block, including firmware
// version, and caches nothing beyond the returned value.
func (s *Session) Settings() (Settings, error) {
	if err := s.requireConnected(); err != nil {
		return Settings{}, err
	}
	s.armAutoDisconnect()

	resp, err := s.roundTrip(canonproto.BuildSettingAccessoryRead(), canonproto.CommandSettingAccessory)
	if err != nil {
		return Settings{}, s.fail(err)
	}
	f := resp.Settings()
	return Settings{
		AutoPowerOffMinutes: f.AutoPowerOffMinutes,
		FirmwareVersion:     f.FirmwareVersion,
		TMDVersion:          f.TMDVersion,
		PhotosPrinted:       f.PhotosPrinted,
		ColorID:             f.ColorID,
	}, nil
}

// SetAutoPowerOff writes the auto-power-off timeout; minutes must be
// 3, 5, or 10.
func (s *Session) SetAutoPowerOff(minutes int) error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	s.armAutoDisconnect()

	pkt, err := canonproto.BuildSettingAccessoryWrite(minutes)
	if err != nil {
		return err
	}
	_, err = s.roundTrip(pkt, canonproto.CommandSettingAccessory)
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// Reboot sends the reboot command.
func (s *Session) Reboot() error {
	if err := s.requireConnected(); err != nil {
		return err
	}
	_, err := s.roundTrip(canonproto.BuildReboot(), canonproto.CommandReboot)
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// Print validates print-worthiness, reads settings (the protocol
// requires the read even though this driver only uses it advisory),
// sends PrintReady, and transfers the JPEG in 990-byte chunks.
func (s *Session) Print(jpeg []byte, mode byte) error {
	if err := s.requireConnected(); err != nil {
		return err
	}

	status, err := s.Status()
	if err != nil {
		return err
	}
	switch {
	case status.IsCoverOpen:
		return status.Error
	case status.IsNoPaper:
		return status.Error
	case status.WrongSmartSheet:
		return status.Error
	case status.BatteryPercent < s.opts.MinBattery:
		return zerr.BatteryTooLow(status.BatteryPercent)
	case status.Error != nil:
		return status.Error
	}

	if _, err := s.Settings(); err != nil {
		return err
	}

	readyPkt, err := canonproto.BuildPrintReady(uint32(len(jpeg)), mode)
	if err != nil {
		return err
	}
	readyResp, err := s.roundTrip(readyPkt, canonproto.CommandPrintReady)
	if err != nil {
		return s.fail(err)
	}
	if code := readyResp.PrintReadyError(); code != 0 {
		return s.fail(zerr.New(canonproto.ToKind(code), "printer refused PrintReady"))
	}

	s.state = StatePrinting
	if err := s.sendChunks(jpeg); err != nil {
		return s.fail(err)
	}

	s.state = StateInitialized
	zlog.Debug("canon print transfer complete", zap.Int("bytes", len(jpeg)))
	return nil
}

// PrintJPEG decodes and geometrically prepares src before handing it
// to Print, matching the protocol's expectation of a pre-fit,
// pre-rotated 640x1616 JPEG.
func (s *Session) PrintJPEG(src []byte, opts imagepipe.CanonOptions, mode byte) error {
	prepared, err := imagepipe.PrepareCanon(bytes.NewReader(src), opts)
	if err != nil {
		return err
	}
	return s.Print(prepared, mode)
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

// roundTrip writes a request packet, reads back exactly one
// PacketSize response, and enforces the strict ACK-echo check Canon
// requires of every command — a mismatch is always fatal.
func (s *Session) roundTrip(req []byte, wantAck uint16) (*canonproto.Response, error) {
	if err := s.tr.Write(req); err != nil {
		return nil, zerr.Wrap(zerr.KindIO, "write failed", err)
	}
	raw, err := s.tr.ReadExact(canonproto.PacketSize, s.opts.CommandTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := canonproto.Parse(raw)
	if err != nil {
		return nil, err
	}
	if resp.Ack != wantAck {
		return nil, zerr.ProtocolMismatch(int(wantAck), int(resp.Ack))
	}
	return resp, nil
}

// requireConnected rejects any operation before StartSession has
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
	s.cancelAutoDisconnect()
	if s.tr != nil {
		_ = s.tr.Close()
	}
	return err
}

// Close releases the underlying transport and cancels the idle timer.
func (s *Session) Close() error {
	s.cancelAutoDisconnect()
	if s.tr == nil {
		return nil
	}
	err := s.tr.Close()
	s.state = StateDisconnected
	return err
}
