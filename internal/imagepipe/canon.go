// Package imagepipe prepares source images for transfer to either
// printer family: a geometric transform for Canon Ivy 2's fixed
// print frame, and format/size validation for Kodak Step, which
// prints whatever JPEG it's handed.
package imagepipe

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/tjsw/zinkprint/internal/zerr"
)

// Canon Ivy 2's print geometry, per the device's fixed Zink form
// factor: images are first fit into a 1280x1920 canvas, then
// resampled to the final 640x1616 output (a non-uniform scale, since
// the two sizes have different aspect ratios) and rotated 180
// degrees to match the printer's feed orientation.
const (
	CanonCanvasWidth  = 1280
	CanonCanvasHeight = 1920
	CanonFinalWidth   = 640
	CanonFinalHeight  = 1616
)

// CanonOptions configures Canon Ivy 2 image preparation.
type CanonOptions struct {
	// AutoCrop, when true, scales to fill the canvas (cropping
	// overflow); when false, scales to fit within it (letterboxing).
	AutoCrop bool

	// Quality is the JPEG encode quality, 1-100. Zero means 100.
	Quality int
}

// PrepareCanon decodes src, fits it into the Canon Ivy 2 print frame,
// rotates it 180 degrees, and re-encodes as JPEG at opts.Quality
// (maximum quality, 100, when zero); the caller-visible byte length
// becomes the PrintReady size field.
func PrepareCanon(src io.Reader, opts CanonOptions) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, zerr.Wrap(zerr.KindInvalidImage, "failed to decode source image", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = 100
	}

	canvas := fitCentered(img, CanonCanvasWidth, CanonCanvasHeight, opts.AutoCrop)
	final := resize(canvas, CanonFinalWidth, CanonFinalHeight)
	rotated := rotate180(final)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rotated, &jpeg.Options{Quality: quality}); err != nil {
		return nil, zerr.Wrap(zerr.KindInvalidImage, "failed to encode print image", err)
	}
	return buf.Bytes(), nil
}

// fitCentered scales src to fill or fit within canvasW x canvasH
// (depending on autoCrop) and pastes it centered onto a black canvas
// of that exact size — mirroring PIL's Image.new + paste(offset)
// letterbox/crop behavior.
func fitCentered(src image.Image, canvasW, canvasH int, autoCrop bool) *image.RGBA {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	var scale float64
	scaleW := float64(canvasW) / float64(srcW)
	scaleH := float64(canvasH) / float64(srcH)
	if autoCrop {
		scale = maxF(scaleW, scaleH)
	} else {
		scale = minF(scaleW, scaleH)
	}

	scaledW := int(float64(srcW) * scale)
	scaledH := int(float64(srcH) * scale)
	scaled := resize(src, scaledW, scaledH)

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)

	offsetX := (canvasW - scaledW) / 2
	offsetY := (canvasH - scaledH) / 2
	draw.Draw(canvas, image.Rect(offsetX, offsetY, offsetX+scaledW, offsetY+scaledH), scaled, image.Point{}, draw.Over)

	return canvas
}

// resize performs a high-quality resample using Catmull-Rom
// interpolation — x/image/draw's highest-quality scaler, standing in
// for "Lanczos or equivalent".
func resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// rotate180 rotates an image by 180 degrees.
func rotate180(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			srcPixel := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
			dst.SetRGBA(b.Min.X+(w-1-x), b.Min.Y+(h-1-y), srcPixel)
		}
	}
	return dst
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// register additional decoders the driver's supported_formats list
// promises (JPEG, PNG, BMP, GIF); jpeg/png/gif are stdlib, bmp/webp
// come from golang.org/x/image via blank import above.
var (
	_ = jpeg.Encode
	_ = png.Decode
	_ = gif.Decode
)
