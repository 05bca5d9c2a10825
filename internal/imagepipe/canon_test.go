package imagepipe

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodedPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareCanonProducesFinalDimensions(t *testing.T) {
	src := encodedPNG(t, 800, 600, color.RGBA{R: 200, G: 50, B: 50, A: 255})

	out, err := PrepareCanon(bytes.NewReader(src), CanonOptions{})
	if err != nil {
		t.Fatalf("PrepareCanon: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != CanonFinalWidth || b.Dy() != CanonFinalHeight {
		t.Fatalf("dimensions = %dx%d, want %dx%d", b.Dx(), b.Dy(), CanonFinalWidth, CanonFinalHeight)
	}
}

func TestPrepareCanonRejectsUndecodableInput(t *testing.T) {
	if _, err := PrepareCanon(bytes.NewReader([]byte("not an image")), CanonOptions{}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRotate180IsInvolution(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	once := rotate180(img)
	twice := rotate180(once)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if img.RGBAAt(x, y) != twice.RGBAAt(x, y) {
				t.Fatalf("rotate180 twice did not return to original at (%d,%d)", x, y)
			}
		}
	}
}

func TestFitCenteredLetterboxPreservesAspectRatio(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	canvas := fitCentered(src, CanonCanvasWidth, CanonCanvasHeight, false)
	if canvas.Bounds().Dx() != CanonCanvasWidth || canvas.Bounds().Dy() != CanonCanvasHeight {
		t.Fatalf("canvas dims = %dx%d, want %dx%d", canvas.Bounds().Dx(), canvas.Bounds().Dy(), CanonCanvasWidth, CanonCanvasHeight)
	}

	// A square source scales by min(1280/100, 1920/100) = 12.8 to
	// 1280x1280, centered between 320-pixel black bars.
	black := color.RGBA{A: 255}
	for _, y := range []int{0, 319, 1600, 1919} {
		if got := canvas.RGBAAt(640, y); got != black {
			t.Errorf("pixel (640,%d) = %v, want letterbox black", y, got)
		}
	}
	for _, y := range []int{320, 960, 1599} {
		if got := canvas.RGBAAt(640, y); got == black {
			t.Errorf("pixel (640,%d) is black, want source pixels", y)
		}
	}
}

func TestFitCenteredAutoCropFillsCanvas(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4000, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 4000; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	canvas := fitCentered(src, CanonCanvasWidth, CanonCanvasHeight, true)
	// Auto-crop scales by the larger factor, so every canvas pixel is
	// covered — sample the corners to confirm nothing left the black
	// background showing through where source pixels should land.
	if canvas.Bounds().Dx() != CanonCanvasWidth || canvas.Bounds().Dy() != CanonCanvasHeight {
		t.Fatalf("canvas dims = %dx%d, want %dx%d", canvas.Bounds().Dx(), canvas.Bounds().Dy(), CanonCanvasWidth, CanonCanvasHeight)
	}
	black := color.RGBA{A: 255}
	corners := []image.Point{{0, 0}, {CanonCanvasWidth - 1, 0}, {0, CanonCanvasHeight - 1}, {CanonCanvasWidth - 1, CanonCanvasHeight - 1}}
	for _, c := range corners {
		if canvas.RGBAAt(c.X, c.Y) == black {
			t.Errorf("corner %v is black background, want source pixels", c)
		}
	}
}
