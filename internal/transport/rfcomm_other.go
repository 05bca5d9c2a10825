//go:build !linux && !windows

package transport

import "github.com/tjsw/zinkprint/internal/zerr"

// Dial is not implemented on this platform: neither BlueZ rfcomm
// binding nor a Windows-style SPP virtual COM port is available.
func Dial(dev Device) (Transport, error) {
	return nil, zerr.New(zerr.KindNotSupported, "RFCOMM transport is not supported on this platform")
}
