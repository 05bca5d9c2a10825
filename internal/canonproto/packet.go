// Package canonproto implements the Canon Ivy 2's 34-byte binary
// packet protocol over Bluetooth SPP.
//
// Every packet is a fixed 34-byte buffer, big-endian throughout:
//
//	bytes 0-1:  start code, always 0x430F
//	bytes 2-3:  flags1, signed 16-bit — -1 for session init, else 1
//	byte  4:    flags2, signed 8-bit  — -1 for session init, else 32
//	bytes 5-6:  command code (echoed back as the ACK)
//	byte  7:    modifier — 0 read, 1 write — and, on responses, the
//	            generic ack-level error code
//	bytes 8-33: command-specific payload, zero where unused
package canonproto

import (
	"encoding/binary"
	"fmt"

	"github.com/tjsw/zinkprint/internal/zerr"
)

const PacketSize = 34

const StartCode = 0x430F

// Command codes, shared between request and ACK.
const (
	CommandStartSession     = 0x0000
	CommandGetStatus        = 0x0101
	CommandSettingAccessory = 0x0103
	CommandPrintReady       = 0x0301
	CommandReboot           = 0xFFFF
)

const (
	ModifierRead  = 0
	ModifierWrite = 1
)

const (
	ModeNormal    = 1
	ModeAlternate = 2
)

// reverseBits reverses the low `size` bits of value, the quirk Canon
// uses to encode battery percentage. Applying it twice is the
// identity: reverseBits(reverseBits(v, n), n) == v & (1<<n - 1).
func reverseBits(value uint32, size int) uint32 {
	var out uint32
	for i := 0; i < size; i++ {
		bit := (value >> i) & 1
		out |= bit << (size - 1 - i)
	}
	return out
}

// buildBase writes the common 8-byte header. sessionInit selects the
// -1/-1 flags pair StartSession uses; every other command uses 1/32.
func buildBase(command uint16, sessionInit bool, write bool) []byte {
	p := make([]byte, PacketSize)
	binary.BigEndian.PutUint16(p[0:2], StartCode)

	flags1 := int16(1)
	flags2 := int8(32)
	if sessionInit {
		flags1 = -1
		flags2 = -1
	}
	binary.BigEndian.PutUint16(p[2:4], uint16(flags1))
	p[4] = byte(flags2)

	binary.BigEndian.PutUint16(p[5:7], command)
	if write {
		p[7] = ModifierWrite
	} else {
		p[7] = ModifierRead
	}
	return p
}

// BuildStartSession builds the session-init handshake.
func BuildStartSession() []byte {
	return buildBase(CommandStartSession, true, false)
}

// BuildGetStatus builds the status query.
func BuildGetStatus() []byte {
	return buildBase(CommandGetStatus, false, false)
}

// BuildSettingAccessoryRead builds the settings query.
func BuildSettingAccessoryRead() []byte {
	return buildBase(CommandSettingAccessory, false, false)
}

// BuildSettingAccessoryWrite builds the auto-power-off write. minutes
// must be 3, 5, or 10 per the device's accepted values.
func BuildSettingAccessoryWrite(minutes int) ([]byte, error) {
	if minutes != 3 && minutes != 5 && minutes != 10 {
		return nil, zerr.New(zerr.KindInvalidArgument, fmt.Sprintf("auto_power_off must be 3, 5, or 10, got %d", minutes))
	}
	p := buildBase(CommandSettingAccessory, false, true)
	p[8] = byte(minutes)
	return p, nil
}

// BuildPrintReady builds the pre-transfer handshake. length is the
// JPEG byte count, big-endian 32-bit at bytes 8-11; byte 12 is always
// 1; byte 13 is mode (ModeNormal or ModeAlternate).
func BuildPrintReady(length uint32, mode byte) ([]byte, error) {
	if mode != ModeNormal && mode != ModeAlternate {
		return nil, zerr.New(zerr.KindInvalidArgument, fmt.Sprintf("invalid print mode %d", mode))
	}
	p := buildBase(CommandPrintReady, false, false)
	binary.BigEndian.PutUint32(p[8:12], length)
	p[12] = 1
	p[13] = mode
	return p, nil
}

// BuildReboot builds the reboot command.
func BuildReboot() []byte {
	p := buildBase(CommandReboot, false, true)
	p[8] = 1
	return p
}

// Response is a parsed 34-byte reply from the printer.
type Response struct {
	Raw     []byte
	Ack     uint16
	Error   byte
	Payload []byte
}

// Parse validates the start code and splits out the common fields.
// An ACK mismatch (wrong command echo) is the caller's responsibility
// to check via Ack against the command it sent — Parse itself only
// validates framing, not protocol state.
func Parse(data []byte) (*Response, error) {
	if len(data) < PacketSize {
		return nil, zerr.New(zerr.KindProtocolMismatch, fmt.Sprintf("short packet: %d bytes", len(data)))
	}
	if binary.BigEndian.Uint16(data[0:2]) != StartCode {
		return nil, zerr.New(zerr.KindProtocolMismatch, fmt.Sprintf("bad start code: % x", data[0:2]))
	}

	return &Response{
		Raw:     data,
		Ack:     binary.BigEndian.Uint16(data[5:7]),
		Error:   data[7],
		Payload: data[8:],
	}, nil
}

// BatteryAndMTU parses a StartSession response: battery percentage
// (bytes 9-10, bit-reversed) and MTU (bytes 11-12, big-endian).
func (r *Response) BatteryAndMTU() (battery int, mtu int) {
	raw := uint32(r.Raw[9])<<8 | uint32(r.Raw[10])
	battery = int(reverseBits(raw, 6))
	mtu = int(r.Raw[11])<<8 | int(r.Raw[12])
	return
}

// StatusFields parses a GetStatus response.
type StatusFields struct {
	ErrorCode       byte
	BatteryPercent  int
	USBConnected    bool
	CoverOpen       bool
	NoPaper         bool
	WrongSmartSheet bool
}

// Status parses a GetStatus response's payload.
func (r *Response) Status() StatusFields {
	p := r.Payload
	i := uint32(p[0])<<8 | uint32(p[1])
	queueFlags := uint16(p[4])<<8 | uint16(p[5])

	return StatusFields{
		ErrorCode:       p[2],
		BatteryPercent:  int(reverseBits(i, 6)),
		USBConnected:    (i>>7)&1 == 1,
		CoverOpen:       queueFlags&0x01 == 0x01,
		NoPaper:         queueFlags&0x02 == 0x02,
		WrongSmartSheet: queueFlags&0x10 == 0x10,
	}
}

// SettingsFields parses a SettingAccessory read response.
type SettingsFields struct {
	AutoPowerOffMinutes int
	FirmwareVersion     string
	TMDVersion          int
	PhotosPrinted       int
	ColorID             int
}

// Settings parses a SettingAccessory read response's payload.
func (r *Response) Settings() SettingsFields {
	p := r.Payload
	return SettingsFields{
		AutoPowerOffMinutes: int(p[0]),
		FirmwareVersion:     fmt.Sprintf("%d.%d.%d", p[1], p[2], p[3]),
		TMDVersion:          int(p[5]),
		PhotosPrinted:       int(p[6])<<8 | int(p[7]),
		ColorID:             int(p[8]),
	}
}

// PrintReadyError parses a PrintReady response's own error code
// (payload byte 3), distinct from the generic ack-level Error field.
func (r *Response) PrintReadyError() byte {
	return r.Payload[3]
}

// ToKind maps a Canon status error code onto the shared error
// taxonomy. Canon signals most failures via the queue-flag bits
// rather than ErrorCode, so callers should check those first;
// ErrorCode itself carries no sub-codes to discriminate further, so
// any nonzero value becomes a generic device error rather than being
// conflated with ProtocolMismatch, which is reserved for framing
// failures (bad magic, wrong ACK echo, short packet).
func ToKind(errorCode byte) zerr.Kind {
	return zerr.KindUnknown
}
