//go:build linux

package transport

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tjsw/zinkprint/internal/zerr"
	"github.com/tjsw/zinkprint/internal/zlog"
)

// Dial establishes an RFCOMM byte stream to dev using the system's
// rfcomm(1) tool to bind a /dev/rfcommN device node, then opens that
// node as a serial port. dev.Address may also already be a device
// path (starts with "/dev/"), in which case rfcomm binding is skipped
// and the path is opened directly — useful when the caller has bound
// the channel out-of-band.
func Dial(dev Device) (Transport, error) {
	if strings.HasPrefix(dev.Address, "/dev/") {
		port, err := openSerial(dev.Address)
		if err != nil {
			return nil, zerr.Wrap(zerr.KindUnreachable, "open failed", err)
		}
		return newSerialStream(port), nil
	}

	devPath, err := bindRFCOMM(dev.Address, dev.Channel)
	if err != nil {
		return nil, err
	}

	port, err := openSerial(devPath)
	if err != nil {
		releaseRFCOMM(devPath)
		return nil, zerr.Wrap(zerr.KindUnreachable, "open failed", err)
	}

	return newSerialStream(port), nil
}

// bindRFCOMM shells out to `rfcomm connect` and waits up to
// OpenTimeout for the resulting device node to appear.
func bindRFCOMM(mac string, channel int) (string, error) {
	if _, err := exec.LookPath("rfcomm"); err != nil {
		return "", zerr.Wrap(zerr.KindNotPaired, "rfcomm tool not found", err)
	}

	devPath, err := findFreeRFCOMMDevice()
	if err != nil {
		return "", zerr.Wrap(zerr.KindUnreachable, "no free rfcomm device slot", err)
	}

	cmd := exec.Command("rfcomm", "connect", devPath, mac, fmt.Sprintf("%d", channel))
	if err := cmd.Start(); err != nil {
		return "", zerr.Wrap(zerr.KindUnreachable, "failed to start rfcomm connect", err)
	}

	zlog.Debug("binding rfcomm device", zap.String("mac", mac), zap.String("dev", devPath))

	deadline := time.Now().Add(OpenTimeout)
	for time.Now().Before(deadline) {
		if _, statErr := os.Stat(devPath); statErr == nil {
			return devPath, nil
		}
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	_ = cmd.Process.Kill()
	return "", zerr.New(zerr.KindUnreachable, fmt.Sprintf("timed out waiting for %s", devPath))
}

func releaseRFCOMM(devPath string) {
	_ = exec.Command("rfcomm", "release", devPath).Run()
}

func findFreeRFCOMMDevice() (string, error) {
	for i := 0; i < 16; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		out, _ := exec.Command("rfcomm", "show", devPath).CombinedOutput()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, nil
		}
	}
	return "", fmt.Errorf("no available rfcomm device slots")
}
