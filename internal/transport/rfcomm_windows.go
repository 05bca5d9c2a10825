//go:build windows

package transport

import (
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/tjsw/zinkprint/internal/zerr"
)

// Dial establishes a connection to a Windows SPP virtual COM port.
// On Windows, BlueZ-style rfcomm binding doesn't exist: pairing a Zink
// printer creates a COM port automatically, which Dial discovers from
// the registry by Bluetooth port name, or opens directly when
// dev.Address already names a COM port (e.g. "COM5").
func Dial(dev Device) (Transport, error) {
	path := dev.Address
	if !strings.HasPrefix(strings.ToUpper(path), "COM") {
		found, err := findBluetoothCOMPort(path)
		if err != nil {
			return nil, zerr.Wrap(zerr.KindNotPaired, "no bluetooth COM port found", err)
		}
		path = found
	}

	port, err := openSerial(path)
	if err != nil {
		return nil, zerr.Wrap(zerr.KindUnreachable, "open failed", err)
	}

	return newSerialStream(port), nil
}

// findBluetoothCOMPort returns the first COM port the registry
// reports as Bluetooth-backed. address is accepted for symmetry with
// the Linux Dial signature and for future exact matching, but Windows
// does not expose a MAC-to-COM-port mapping through SERIALCOMM, so
// the match is best-effort by port name only — same limitation the
// label-printer GUI this was adapted from has.
func findBluetoothCOMPort(address string) (string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.READ)
	if err != nil {
		return "", err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return "", err
	}

	for _, name := range names {
		lower := strings.ToLower(name)
		if !strings.Contains(lower, "bth") && !strings.Contains(lower, "bluetooth") {
			continue
		}
		val, _, err := key.GetStringValue(name)
		if err == nil {
			return val, nil
		}
	}

	return "", zerr.New(zerr.KindNotPaired, "no Bluetooth COM port registered for "+address)
}
