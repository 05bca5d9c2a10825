// Package zerr defines the error taxonomy shared by both printer
// protocols. Every device- or transport-reported failure is surfaced
// to callers as an *Error carrying one of the Kind values below, so
// callers can branch on errors.Is / errors.As instead of string
// matching.
package zerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The same kinds are used for
// Kodak Step and Canon Ivy 2 — the session layer for each family maps
// its device-specific codes onto this shared set.
type Kind int

const (
	KindUnknown Kind = iota

	// Transport-layer failures.
	KindUnreachable
	KindNotPaired
	KindIO
	KindTimeout
	KindClosed

	// Protocol-layer failures.
	KindProtocolMismatch

	// Print-worthiness failures.
	KindBatteryTooLow
	KindCoverOpen
	KindNoPaper
	KindPaperJam
	KindPaperMismatch
	KindMisfeed
	KindOverheating
	KindCooling
	KindBusy
	KindWrongSmartSheet

	// Input/argument failures.
	KindInvalidImage
	KindInvalidArgument

	// Session usage failures.
	KindInvalidState
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindNotPaired:
		return "not_paired"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	case KindProtocolMismatch:
		return "protocol_mismatch"
	case KindBatteryTooLow:
		return "battery_too_low"
	case KindCoverOpen:
		return "cover_open"
	case KindNoPaper:
		return "no_paper"
	case KindPaperJam:
		return "paper_jam"
	case KindPaperMismatch:
		return "paper_mismatch"
	case KindMisfeed:
		return "misfeed"
	case KindOverheating:
		return "overheating"
	case KindCooling:
		return "cooling"
	case KindBusy:
		return "busy"
	case KindWrongSmartSheet:
		return "wrong_smart_sheet"
	case KindInvalidImage:
		return "invalid_image"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type raised throughout this module.
// Optional fields are populated only by the Kind that needs them;
// zero value means "not applicable" for that kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // wrapped cause, if any

	// Level holds the observed battery percentage for KindBatteryTooLow.
	Level int

	// Expected/Got hold the expected and received command echo (ACK)
	// for KindProtocolMismatch errors built by ProtocolMismatch;
	// bad-magic and short-packet errors leave them zero.
	Expected int
	Got      int
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, zerr.Sentinel(kind)) style matching work by
// comparing Kind. It also satisfies direct *Error comparisons where
// only Kind was set (the common case for sentinel-style checks).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a bare *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Sentinel builds a comparison target for errors.Is(err, zerr.Sentinel(KindX)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// BatteryTooLow builds the battery-too-low variant with the observed level.
func BatteryTooLow(level int) *Error {
	return &Error{
		Kind:  KindBatteryTooLow,
		Msg:   fmt.Sprintf("battery at %d%%, need at least the configured minimum", level),
		Level: level,
	}
}

// ProtocolMismatch builds the ACK-mismatch variant.
func ProtocolMismatch(expected, got int) *Error {
	return &Error{
		Kind:     KindProtocolMismatch,
		Msg:      fmt.Sprintf("expected ack %d, got %d", expected, got),
		Expected: expected,
		Got:      got,
	}
}

// Of reports whether err is a *Error of the given kind, unwrapping as
// needed.
func Of(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
