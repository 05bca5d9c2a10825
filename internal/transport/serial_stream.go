package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/tjsw/zinkprint/internal/zerr"
)

// serialStream wraps an already-opened serial.Port (an RFCOMM device
// node on Linux, or a Bluetooth SPP virtual COM port on Windows) and
// satisfies Transport. Both platform Dial implementations end here.
type serialStream struct {
	mu     sync.Mutex
	port   serial.Port
	closed bool
}

func newSerialStream(port serial.Port) *serialStream {
	return &serialStream{port: port}
}

func (s *serialStream) Write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.port == nil {
		return zerr.New(zerr.KindClosed, "transport is closed")
	}

	n, err := s.port.Write(b)
	if err != nil {
		return zerr.Wrap(zerr.KindIO, "write failed", err)
	}
	if n != len(b) {
		return zerr.New(zerr.KindIO, "short write")
	}
	return nil
}

func (s *serialStream) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	port := s.port
	closed := s.closed
	s.mu.Unlock()

	if closed || port == nil {
		return nil, zerr.New(zerr.KindClosed, "transport is closed")
	}

	port.SetReadTimeout(timeout)

	buf := make([]byte, n)
	read := 0
	deadline := time.Now().Add(timeout)

	for read < n {
		if timeout > 0 && time.Now().After(deadline) {
			return nil, zerr.New(zerr.KindTimeout, "read timed out")
		}

		m, err := port.Read(buf[read:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, zerr.Wrap(zerr.KindIO, "peer closed connection", err)
			}
			return nil, zerr.Wrap(zerr.KindIO, "read failed", err)
		}
		if m == 0 {
			// SetReadTimeout elapsed with nothing read.
			return nil, zerr.New(zerr.KindTimeout, "read timed out")
		}
		read += m
		deadline = time.Now().Add(timeout)
	}

	return buf, nil
}

func (s *serialStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.port == nil {
		return nil
	}
	s.closed = true
	err := s.port.Close()
	if err != nil {
		return zerr.Wrap(zerr.KindIO, "close failed", err)
	}
	return nil
}

func (s *serialStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.port != nil
}

// openSerial opens the given device path with the 8N1/115200 mode
// the paired Zink printers' SPP endpoints expect, matching the mode
// used against the Nelko P21's RFCOMM endpoint.
func openSerial(path string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	return serial.Open(path, mode)
}
