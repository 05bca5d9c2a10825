// Package kodakproto implements the Kodak Step family's 34-byte
// binary packet protocol over Bluetooth SPP.
//
// Every packet is a fixed 34-byte buffer:
//
//	bytes 0-3:  magic header, always 1B 2A 43 41 ("ESC * C A")
//	byte  4:    flags1 (unused by any command this driver sends; 0)
//	byte  5:    device family flag — 0x00 Standard, 0x02 Slim/Snap 2
//	byte  6:    command code
//	byte  7:    sub-type
//	bytes 8-33: command-specific payload, zero where unused
//
// Responses share the same layout. Byte 8 carries the error code
// (the Err* constants in this package) for most responses;
// GetBatteryLevel reuses it for charging status, GetAutoPowerOff for
// the timeout in minutes, and GetPrintCount for the high byte of its
// 16-bit count (bytes 8-9). GetAccessoryInfo also reports battery at
// byte 12.
package kodakproto

import (
	"fmt"

	"github.com/tjsw/zinkprint/internal/zerr"
)

const (
	PacketSize = 34

	CmdPrintReady        = 0x00
	CmdGetAccessoryInfo  = 0x01
	CmdGetPageType       = 0x0D
	CmdGetBatteryLevel   = 0x0E
	CmdGetPrintCount     = 0x00 // shares the PrintReady command byte; sub-type 0x01 distinguishes it
	CmdGetAutoPowerOff   = 0x10

	FlagStandardDevice = 0x00
	FlagSlimDevice     = 0x02

	SubTypeDefault      = 0x00
	SubTypePrintReady   = 0x00
	SubTypePrintCount   = 0x01
	SubTypeStartOfSend  = 0x00
	SubTypeEndOfReceive = 0x01
)

// Error codes reported in response byte 8.
const (
	ErrSuccess       = 0x00
	ErrPaperJam      = 0x01
	ErrNoPaper       = 0x02
	ErrCoverOpen     = 0x03
	ErrPaperMismatch = 0x04
	ErrLowBattery    = 0x05
	ErrOverheating   = 0x06
	ErrCooling       = 0x07
	ErrMisfeed       = 0x08
	ErrBusy          = 0x09
)

var header = [4]byte{0x1B, 0x2A, 0x43, 0x41}

// newPacket returns a zeroed 34-byte buffer with the Kodak magic
// header already written, and the device-flag/command/sub-type bytes
// set. All remaining bytes are left zero, satisfying the "unused
// bytes are zero" invariant by construction.
func newPacket(deviceFlag, command, subType byte) []byte {
	p := make([]byte, PacketSize)
	copy(p[0:4], header[:])
	p[5] = deviceFlag
	p[6] = command
	p[7] = subType
	return p
}

// BuildGetAccessoryInfo builds the handshake request sent immediately
// after connecting. isSlim selects the Step Slim/Snap 2 device flag.
func BuildGetAccessoryInfo(isSlim bool) []byte {
	flag := byte(FlagStandardDevice)
	if isSlim {
		flag = FlagSlimDevice
	}
	return newPacket(flag, CmdGetAccessoryInfo, SubTypeDefault)
}

// BuildGetBatteryLevel builds the charging-status query. Despite the
// name, the response's byte 8 is charging status (1/0), not a battery
// percentage — see ParseGetBatteryLevel.
func BuildGetBatteryLevel() []byte {
	return newPacket(FlagStandardDevice, CmdGetBatteryLevel, SubTypeDefault)
}

// BuildGetPageType builds the paper-readiness query.
func BuildGetPageType() []byte {
	return newPacket(FlagStandardDevice, CmdGetPageType, SubTypeDefault)
}

// BuildGetPrintCount builds the lifetime print-count query. It shares
// CmdPrintReady's command byte and is distinguished by sub-type 0x01.
func BuildGetPrintCount() []byte {
	return newPacket(FlagStandardDevice, CmdPrintReady, SubTypePrintCount)
}

// BuildGetAutoPowerOff builds the auto-power-off timeout query.
func BuildGetAutoPowerOff() []byte {
	return newPacket(FlagStandardDevice, CmdGetAutoPowerOff, SubTypeDefault)
}

// BuildPrintReady builds the pre-transfer handshake. size is the JPEG
// byte length, encoded as a big-endian 24-bit integer in bytes 8-10;
// it must fit in 24 bits. copies goes in byte 11.
func BuildPrintReady(size int, copies int) ([]byte, error) {
	if size < 0 || size > 0xFFFFFF {
		return nil, zerr.New(zerr.KindInvalidArgument, fmt.Sprintf("image size %d does not fit in 24 bits", size))
	}
	if copies < 0 || copies > 0xFF {
		return nil, zerr.New(zerr.KindInvalidArgument, fmt.Sprintf("copies %d out of range 0-255", copies))
	}

	p := newPacket(FlagStandardDevice, CmdPrintReady, SubTypePrintReady)
	p[8] = byte(size >> 16)
	p[9] = byte(size >> 8)
	p[10] = byte(size)
	p[11] = byte(copies)
	return p, nil
}

// BuildStartOfSendAck builds the (unverified, tolerated-but-not-required
// per spec) start-of-send acknowledgement.
func BuildStartOfSendAck() []byte {
	p := newPacket(FlagStandardDevice, CmdGetAccessoryInfo, SubTypeStartOfSend)
	p[8] = 0x02
	return p
}

// BuildEndOfReceivedAck builds the (unverified) end-of-receive
// acknowledgement.
func BuildEndOfReceivedAck() []byte {
	p := newPacket(FlagStandardDevice, CmdGetAccessoryInfo, SubTypeEndOfReceive)
	p[8] = 0x02
	return p
}

// BuildErrorMessageAck builds the (unverified) error acknowledgement,
// echoing the error code the device reported.
func BuildErrorMessageAck(errorCode byte) []byte {
	p := newPacket(FlagStandardDevice, CmdGetAccessoryInfo, SubTypeStartOfSend)
	p[8] = errorCode
	return p
}

// Response is a parsed 34-byte reply from the printer.
type Response struct {
	Raw       []byte
	Command   byte
	SubType   byte
	ErrorCode byte
	Payload   []byte
}

// Parse validates the magic header and splits out the common fields.
// Command-specific accessors (BatteryPercent, MAC, PrintCount, ...)
// read directly from Raw since each command's interesting fields live
// at different offsets.
func Parse(data []byte) (*Response, error) {
	if len(data) < PacketSize {
		return nil, zerr.New(zerr.KindProtocolMismatch, fmt.Sprintf("short packet: %d bytes", len(data)))
	}
	if data[0] != header[0] || data[1] != header[1] || data[2] != header[2] || data[3] != header[3] {
		return nil, zerr.New(zerr.KindProtocolMismatch, fmt.Sprintf("bad magic: % x", data[0:4]))
	}

	return &Response{
		Raw:       data,
		Command:   data[6],
		SubType:   data[7],
		ErrorCode: data[8],
		Payload:   data[8:],
	}, nil
}

// BatteryPercent reads byte 12, valid for GetAccessoryInfo responses
// only. GetBatteryLevel's byte 8 is charging status, not this.
func (r *Response) BatteryPercent() int {
	if len(r.Raw) <= 12 {
		return 0
	}
	return int(r.Raw[12])
}

// MAC reads the printer's own Bluetooth address from bytes 15-20 of a
// GetAccessoryInfo response, formatted as six colon-separated hex
// octets.
func (r *Response) MAC() string {
	if len(r.Raw) < 21 {
		return ""
	}
	b := r.Raw[15:21]
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// IsCharging reads a GetBatteryLevel response's byte 8.
func (r *Response) IsCharging() bool {
	return r.ErrorCode == 1
}

// PrintCount reads a GetPrintCount response's big-endian 16-bit count
// at bytes 8-9.
func (r *Response) PrintCount() int {
	if len(r.Raw) < 10 {
		return 0
	}
	return int(r.Raw[8])<<8 | int(r.Raw[9])
}

// AutoPowerOffMinutes reads a GetAutoPowerOff response's byte 8.
func (r *Response) AutoPowerOffMinutes() int {
	return int(r.ErrorCode)
}

// ErrorMessage returns the human-readable message for a response
// error code, or "" for ErrSuccess.
func ErrorMessage(code byte) string {
	switch code {
	case ErrSuccess:
		return ""
	case ErrPaperJam:
		return "paper jam"
	case ErrNoPaper:
		return "no paper"
	case ErrCoverOpen:
		return "cover open"
	case ErrPaperMismatch:
		return "paper mismatch"
	case ErrLowBattery:
		return "low battery"
	case ErrOverheating:
		return "overheating"
	case ErrCooling:
		return "cooling down"
	case ErrMisfeed:
		return "paper misfeed"
	case ErrBusy:
		return "printer busy"
	default:
		return fmt.Sprintf("unknown error (%d)", code)
	}
}

// ToKind maps a Kodak response error code onto the shared error
// taxonomy.
func ToKind(code byte) zerr.Kind {
	switch code {
	case ErrSuccess:
		return zerr.KindUnknown // caller should treat Unknown+ErrSuccess as "no error"
	case ErrPaperJam:
		return zerr.KindPaperJam
	case ErrNoPaper:
		return zerr.KindNoPaper
	case ErrCoverOpen:
		return zerr.KindCoverOpen
	case ErrPaperMismatch:
		return zerr.KindPaperMismatch
	case ErrLowBattery:
		return zerr.KindBatteryTooLow
	case ErrOverheating:
		return zerr.KindOverheating
	case ErrCooling:
		return zerr.KindCooling
	case ErrMisfeed:
		return zerr.KindMisfeed
	case ErrBusy:
		return zerr.KindBusy
	default:
		return zerr.KindProtocolMismatch
	}
}
