// Package printer exposes a single polymorphic Printer facade over
// the two supported device families, mirroring the Python driver's
// factory/base-class pair (zinkwell.factory + zinkwell.devices.base).
package printer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tjsw/zinkprint/internal/canonproto"
	"github.com/tjsw/zinkprint/internal/canonsession"
	"github.com/tjsw/zinkprint/internal/imagepipe"
	"github.com/tjsw/zinkprint/internal/kodaksession"
	"github.com/tjsw/zinkprint/internal/transport"
	"github.com/tjsw/zinkprint/internal/zerr"
)

// Family identifies the device variant a Printer drives.
type Family int

const (
	FamilyKodakStandard Family = iota
	FamilyKodakSlim
	FamilyCanonIvy2
)

func (f Family) String() string {
	switch f {
	case FamilyKodakStandard:
		return "kodak_step"
	case FamilyKodakSlim:
		return "kodak_step_slim"
	case FamilyCanonIvy2:
		return "canon_ivy2"
	default:
		return "unknown"
	}
}

// Capabilities describes what optional operations a Printer exposes.
// Callers must check these before invoking the corresponding
// family-specific method.
type Capabilities struct {
	CanGetStatus            bool
	CanGetBattery            bool
	CanConfigureSettings    bool
	CanReboot               bool
	SupportsMultipleCopies bool
	MinBatteryForPrint      int
}

// Info is the static descriptor returned by Info().
type Info struct {
	Name              string
	Model             string
	PrintWidth        int
	PrintHeight       int
	SupportedFormats  []string
	FirmwareVersion   string
	Capabilities      Capabilities
}

// Status is the normalized status shared across both families.
type Status struct {
	BatteryPercent int
	IsReady        bool
	Error          error
	IsCoverOpen    bool
	IsCharging     bool
}

// Config configures a Printer at construction time.
type Config struct {
	Address          string
	Channel          int
	Family           Family
	MinBattery       int
	CommandTimeoutMs int
	ChunkDelayMs     int
	AutoDisconnectS  int

	// DialFn overrides how the underlying transport is opened; nil
	// uses transport.Dial. Tests inject a transporttest.Fake-backed
	// dialer here.
	DialFn func(transport.Device) (transport.Transport, error)
}

// withDefaults fills in the documented defaults for zero fields.
func (c Config) withDefaults() Config {
	if c.Channel == 0 {
		c.Channel = 1
	}
	if c.MinBattery == 0 {
		c.MinBattery = 30
	}
	if c.CommandTimeoutMs == 0 {
		c.CommandTimeoutMs = 5000
	}
	if c.ChunkDelayMs == 0 {
		c.ChunkDelayMs = 20
	}
	if c.AutoDisconnectS == 0 {
		c.AutoDisconnectS = 30
	}
	return c
}

// Printer is a family-agnostic handle for the two supported device
// types. Construct with Open, which establishes the transport and
// runs each family's handshake.
type Printer struct {
	cfg    Config
	kodak  *kodaksession.Session
	canon  *canonsession.Session
}

// Open connects to and initializes the printer described by cfg.
func Open(cfg Config) (*Printer, error) {
	cfg = cfg.withDefaults()
	dev := transport.Device{Address: cfg.Address, Channel: cfg.Channel}

	p := &Printer{cfg: cfg}

	switch cfg.Family {
	case FamilyKodakStandard, FamilyKodakSlim:
		opts := kodaksession.Options{
			MinBattery:     cfg.MinBattery,
			CommandTimeout: time.Duration(cfg.CommandTimeoutMs) * time.Millisecond,
			ChunkDelay:     time.Duration(cfg.ChunkDelayMs) * time.Millisecond,
		}
		sess := kodaksession.New(dev, cfg.Family == FamilyKodakSlim, opts, cfg.DialFn)
		if err := sess.Connect(); err != nil {
			return nil, err
		}
		if err := sess.Initialize(); err != nil && !zerr.Of(err, zerr.KindNoPaper) {
			return nil, err
		}
		p.kodak = sess
	case FamilyCanonIvy2:
		opts := canonsession.Options{
			MinBattery:     cfg.MinBattery,
			CommandTimeout: time.Duration(cfg.CommandTimeoutMs) * time.Millisecond,
			ChunkDelay:     time.Duration(cfg.ChunkDelayMs) * time.Millisecond,
			AutoDisconnect: time.Duration(cfg.AutoDisconnectS) * time.Second,
		}
		sess := canonsession.New(dev, opts, cfg.DialFn)
		if err := sess.Connect(); err != nil {
			return nil, err
		}
		if err := sess.StartSession(); err != nil {
			return nil, err
		}
		p.canon = sess
	default:
		return nil, zerr.New(zerr.KindInvalidArgument, fmt.Sprintf("unknown printer family %v", cfg.Family))
	}

	return p, nil
}

// Close releases the underlying session and transport.
func (p *Printer) Close() error {
	if p.kodak != nil {
		return p.kodak.Close()
	}
	return p.canon.Close()
}

// Status returns the normalized current printer status.
func (p *Printer) Status() (Status, error) {
	if p.kodak != nil {
		st, err := p.kodak.Status()
		if err != nil {
			return Status{}, err
		}
		return Status{
			BatteryPercent: st.BatteryPercent,
			IsReady:        st.IsReady,
			Error:          st.Error,
			IsCoverOpen:    st.IsCoverOpen,
			IsCharging:     st.IsCharging,
		}, nil
	}

	st, err := p.canon.Status()
	if err != nil {
		return Status{}, err
	}
	return Status{
		BatteryPercent: st.BatteryPercent,
		IsReady:        st.IsReady,
		Error:          st.Error,
		IsCoverOpen:    st.IsCoverOpen,
	}, nil
}

// Print sends jpegBytes to the device. For Canon, callers should run
// the bytes through imagepipe.PrepareCanon first (or use PrintImage,
// which does so); Kodak accepts raw JPEG bytes verbatim.
func (p *Printer) Print(jpegBytes []byte, copies int) error {
	if p.kodak != nil {
		return p.kodak.Print(jpegBytes, copies)
	}
	return p.canon.Print(jpegBytes, canonproto.ModeNormal)
}

// PrintImage prints src. For Canon it decodes src and applies the
// geometric transform (fit/crop to 640x1616, rotate 180) first; for
// Kodak it validates the JPEG as-is since the device crops/scales in
// firmware.
func (p *Printer) PrintImage(src []byte, autoCrop bool, quality int, copies int) error {
	if p.kodak != nil {
		if err := imagepipe.ValidateKodak(src); err != nil {
			return err
		}
		return p.kodak.Print(src, copies)
	}

	prepared, err := imagepipe.PrepareCanon(bytes.NewReader(src), imagepipe.CanonOptions{AutoCrop: autoCrop, Quality: quality})
	if err != nil {
		return err
	}
	return p.canon.Print(prepared, canonproto.ModeNormal)
}

// Info returns the descriptor for the connected device. For Canon it
// also sends a SettingAccessory read to fill FirmwareVersion, which
// stays empty if that read fails; like any failed command, a failed
// read moves the session to Failed and closes its transport.
func (p *Printer) Info() Info {
	if p.kodak != nil {
		name := "Kodak Step"
		if p.cfg.Family == FamilyKodakSlim {
			name = "Kodak Step Slim"
		}
		return Info{
			Name:             name,
			Model:            p.cfg.Family.String(),
			PrintWidth:       640,
			PrintHeight:      1616,
			SupportedFormats: []string{"JPEG"},
			Capabilities: Capabilities{
				CanGetStatus:           true,
				CanGetBattery:          true,
				CanConfigureSettings:   true,
				CanReboot:              false,
				SupportsMultipleCopies: true,
				MinBatteryForPrint:     p.cfg.MinBattery,
			},
		}
	}

	firmware := ""
	if settings, err := p.canon.Settings(); err == nil {
		firmware = settings.FirmwareVersion
	}
	return Info{
		Name:             "Canon Ivy 2",
		Model:            p.cfg.Family.String(),
		PrintWidth:       640,
		PrintHeight:      1616,
		SupportedFormats: []string{"JPEG", "PNG", "BMP", "GIF"},
		FirmwareVersion:  firmware,
		Capabilities: Capabilities{
			CanGetStatus:           true,
			CanGetBattery:          true,
			CanConfigureSettings:   true,
			CanReboot:              true,
			SupportsMultipleCopies: false,
			MinBatteryForPrint:     p.cfg.MinBattery,
		},
	}
}

// KodakSettings returns Kodak-specific settings. Callers must check
// Info().Capabilities before calling; it returns KindNotSupported for
// a Canon-backed Printer.
func (p *Printer) KodakSettings() (kodaksession.Settings, error) {
	if p.kodak == nil {
		return kodaksession.Settings{}, zerr.New(zerr.KindNotSupported, "not a Kodak printer")
	}
	return p.kodak.Settings()
}

// CanonSettings returns Canon-specific settings, including firmware
// version. Returns KindNotSupported for a Kodak-backed Printer.
func (p *Printer) CanonSettings() (canonsession.Settings, error) {
	if p.canon == nil {
		return canonsession.Settings{}, zerr.New(zerr.KindNotSupported, "not a Canon printer")
	}
	return p.canon.Settings()
}

// SetAutoPowerOff sets the Canon Ivy 2's auto-power-off timeout
// (minutes must be 3, 5, or 10). Returns KindNotSupported for Kodak.
func (p *Printer) SetAutoPowerOff(minutes int) error {
	if p.canon == nil {
		return zerr.New(zerr.KindNotSupported, "auto_power_off is a Canon-only setting")
	}
	return p.canon.SetAutoPowerOff(minutes)
}

// Reboot reboots a Canon Ivy 2. Returns KindNotSupported for Kodak,
// which has no reboot command.
func (p *Printer) Reboot() error {
	if p.canon == nil {
		return zerr.New(zerr.KindNotSupported, "reboot is not supported by Kodak Step printers")
	}
	return p.canon.Reboot()
}
