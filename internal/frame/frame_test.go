package frame

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"ppe-cascade/internal/geometry"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	return img
}

func TestCropKeepsOffsetAndPixels(t *testing.T) {
	root := NewRoot(testImage(100, 80), "test.png")
	if !root.IsRoot() || root.Width() != 100 || root.Height() != 80 {
		t.Fatalf("unexpected root frame %+v", root.Region)
	}

	crop, err := root.Crop(geometry.Box{X1: 10, Y1: 20, X2: 40, Y2: 60})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crop.IsRoot() {
		t.Fatalf("crop must not be a root frame")
	}
	want := geometry.Region{OffsetX: 10, OffsetY: 20, Width: 30, Height: 40}
	if crop.Region != want {
		t.Fatalf("expected region %+v, got %+v", want, crop.Region)
	}
	if b := crop.Image.Bounds(); b.Min != (image.Point{}) || b.Dx() != 30 || b.Dy() != 40 {
		t.Fatalf("unexpected crop bounds %v", b)
	}

	r, g, _, _ := crop.Image.At(0, 0).RGBA()
	if uint8(r>>8) != 10 || uint8(g>>8) != 20 {
		t.Fatalf("crop origin pixel mismatch: r=%d g=%d", r>>8, g>>8)
	}
}

func TestCropOfCropAccumulatesOffset(t *testing.T) {
	root := NewRoot(testImage(100, 100), "")
	first, err := root.Crop(geometry.Box{X1: 10, Y1: 10, X2: 60, Y2: 60})
	if err != nil {
		t.Fatal(err)
	}
	second, err := first.Crop(geometry.Box{X1: 5, Y1: 5, X2: 15, Y2: 15})
	if err != nil {
		t.Fatal(err)
	}
	if second.Region.OffsetX != 15 || second.Region.OffsetY != 15 {
		t.Fatalf("expected accumulated offset (15,15), got %+v", second.Region)
	}
}

func TestCropOutsideFrame(t *testing.T) {
	root := NewRoot(testImage(50, 50), "")
	boxes := []geometry.Box{
		{X1: -1, Y1: 0, X2: 10, Y2: 10},
		{X1: 40, Y1: 40, X2: 51, Y2: 50},
		{X1: 10, Y1: 10, X2: 10, Y2: 20},
	}
	for _, b := range boxes {
		if _, err := root.Crop(b); !errors.Is(err, ErrFrameExtraction) {
			t.Errorf("box %v: expected ErrFrameExtraction, got %v", b, err)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := NewRoot(testImage(32, 16), "").Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Width() != 32 || f.Height() != 16 {
		t.Fatalf("unexpected size %dx%d", f.Width(), f.Height())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.jpg")); !errors.Is(err, ErrFrameExtraction) {
		t.Fatalf("expected ErrFrameExtraction, got %v", err)
	}
}
