// Package transport provides the byte-stream contract the protocol
// codecs and sessions are built on: connect/write/read-exact/close
// over an already-paired Bluetooth RFCOMM channel. The core is
// agnostic to how the channel is actually opened; platform-specific
// files in this package supply Dial through the OS's own Bluetooth
// stack (the rfcomm tool on Linux, the SPP virtual COM port listed in
// the registry on Windows) and then treat the result as a plain serial
// byte stream via go.bug.st/serial, same as the RFCOMM label printer
// this package was adapted from.
package transport

import (
	"time"
)

// Device identifies a paired Bluetooth peer: its 48-bit address
// (canonically six colon-separated hex octets) and the RFCOMM
// channel to open on it. Both printer families in this driver use
// channel 1.
type Device struct {
	Address string
	Channel int
}

// Transport is the byte-stream contract consumed by the packet
// codecs. It is a stream, not message-oriented: packet framing
// (fixed 34-byte responses) is enforced by callers via ReadExact, not
// by this interface.
type Transport interface {
	// Write writes all of b or returns a zerr KindIO error.
	Write(b []byte) error

	// ReadExact blocks until exactly n bytes have been read or
	// timeout elapses with no progress, in which case it returns a
	// zerr KindTimeout error. Partial reads are aggregated
	// internally; the returned slice is always len(n) on success.
	ReadExact(n int, timeout time.Duration) ([]byte, error)

	// Close is idempotent: closing an already-closed transport
	// succeeds silently.
	Close() error

	// IsConnected is a best-effort liveness indicator; it does not
	// probe the peer.
	IsConnected() bool
}

// OpenTimeout bounds how long Dial waits for the RFCOMM channel to
// come up before failing with KindUnreachable.
const OpenTimeout = 10 * time.Second
