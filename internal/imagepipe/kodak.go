package imagepipe

import (
	"fmt"

	"github.com/tjsw/zinkprint/internal/zerr"
)

// KodakMaxImageBytes is the application-level size ceiling the Kodak
// Step firmware accepts, independent of the wire protocol's 24-bit
// size field (which can carry up to 0xFFFFFF). See
// original_source/esp32-cam/lib/KodakStepPrinter/src/KodakStepProtocol.h's
// BTP_MAX_IMAGE_SIZE.
const KodakMaxImageBytes = 2 * 1024 * 1024

var jpegSOI = []byte{0xFF, 0xD8}
var jpegEOI = []byte{0xFF, 0xD9}

// ValidateKodak checks that data is a JPEG the Kodak Step family can
// print as-is: the device does its own resizing/cropping in firmware,
// so this driver only needs to confirm the file is a well-formed JPEG
// that fits within the device's accepted size, not transform it.
func ValidateKodak(data []byte) error {
	if len(data) < 4 {
		return zerr.New(zerr.KindInvalidImage, "image too small to be a valid JPEG")
	}
	if data[0] != jpegSOI[0] || data[1] != jpegSOI[1] {
		return zerr.New(zerr.KindInvalidImage, "missing JPEG start-of-image marker")
	}
	tail := data[len(data)-2:]
	if tail[0] != jpegEOI[0] || tail[1] != jpegEOI[1] {
		return zerr.New(zerr.KindInvalidImage, "missing JPEG end-of-image marker")
	}
	if len(data) > KodakMaxImageBytes {
		return zerr.New(zerr.KindInvalidImage, fmt.Sprintf("image is %d bytes, exceeds the %d-byte device limit", len(data), KodakMaxImageBytes))
	}
	return nil
}
