// Package transporttest provides an in-memory transport.Transport for
// exercising the session state machines without real Bluetooth
// hardware, mirroring the Python driver's own MockTransport test
// double: queue a response keyed by the outgoing command's prefix,
// record every write for later assertions.
package transporttest

import (
	"sync"
	"time"

	"github.com/tjsw/zinkprint/internal/transport"
	"github.com/tjsw/zinkprint/internal/zerr"
)

// Fake is a scripted transport.Transport. Responses are looked up by
// the first PrefixLen bytes of each write; when no response is
// queued for a write, ReadExact returns a KindTimeout error at once,
// without waiting out its timeout argument.
type Fake struct {
	mu sync.Mutex

	// PrefixLen controls how many leading bytes of a write key the
	// Responses lookup. Both wire protocols in this driver key off
	// the first 8 bytes of a command.
	PrefixLen int

	// Responses maps a write's prefix to the bytes ReadExact should
	// hand back next. Populate directly or via QueueResponse.
	Responses map[string][]byte

	Sent      [][]byte
	connected bool
	pending   []byte
}

// NewFake returns a connected Fake with the conventional 8-byte
// command prefix used by both Kodak and Canon packets.
func NewFake() *Fake {
	return &Fake{
		PrefixLen: 8,
		Responses: make(map[string][]byte),
		connected: true,
	}
}

// QueueResponse registers resp as the answer to any write whose
// prefix matches cmdPrefix.
func (f *Fake) QueueResponse(cmdPrefix, resp []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[string(cmdPrefix)] = resp
}

// QueueNext stages resp as the answer to the very next write,
// regardless of its content. Useful when a test only cares about
// response ordering, not prefix matching.
func (f *Fake) QueueNext(resp []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = resp
}

func (f *Fake) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return zerr.New(zerr.KindClosed, "fake transport is closed")
	}

	cp := append([]byte(nil), b...)
	f.Sent = append(f.Sent, cp)

	if f.pending != nil {
		return nil
	}

	n := f.PrefixLen
	if n > len(b) {
		n = len(b)
	}
	if resp, ok := f.Responses[string(b[:n])]; ok {
		f.pending = resp
	}
	return nil
}

func (f *Fake) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return nil, zerr.New(zerr.KindClosed, "fake transport is closed")
	}
	if f.pending == nil {
		return nil, zerr.New(zerr.KindTimeout, "no response queued")
	}

	resp := f.pending
	f.pending = nil

	if len(resp) < n {
		return nil, zerr.New(zerr.KindTimeout, "queued response shorter than requested")
	}
	return resp[:n], nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

var _ transport.Transport = (*Fake)(nil)
