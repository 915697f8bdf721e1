package geometry

import (
	"errors"
	"testing"
)

func TestNewBoxRejectsDegenerate(t *testing.T) {
	cases := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"zero width", 10, 10, 10, 20},
		{"zero height", 10, 10, 20, 10},
		{"inverted", 20, 20, 10, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBox(tc.x1, tc.y1, tc.x2, tc.y2)
			if !errors.Is(err, ErrInvalidBox) {
				t.Fatalf("expected ErrInvalidBox, got %v", err)
			}
		})
	}

	if _, err := NewBox(0, 0, 1, 1); err != nil {
		t.Fatalf("unexpected error for valid box: %v", err)
	}
}

func TestTranslateRoundTrip(t *testing.T) {
	boxes := []Box{
		{0, 0, 10, 10},
		{5, 7, 100, 90},
		{-3, -4, 2, 8},
	}
	offsets := [][2]int{{0, 0}, {13, 27}, {-50, 400}}

	for _, b := range boxes {
		for _, o := range offsets {
			got := Translate(Translate(b, o[0], o[1]), -o[0], -o[1])
			if got != b {
				t.Errorf("round trip of %v by %v gave %v", b, o, got)
			}
		}
	}
}

func TestClipToFrame(t *testing.T) {
	got, ok := ClipToFrame(Box{-5, -5, 50, 60}, 40, 40)
	if !ok {
		t.Fatalf("expected box to survive clipping")
	}
	if want := (Box{0, 0, 40, 40}); got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, ok := ClipToFrame(Box{50, 50, 60, 60}, 40, 40); ok {
		t.Fatalf("expected box outside the frame to be discarded")
	}
	if _, ok := ClipToFrame(Box{40, 0, 60, 10}, 40, 40); ok {
		t.Fatalf("expected box clipped to zero width to be discarded")
	}
}

func TestClipIdempotent(t *testing.T) {
	boxes := []Box{
		{-10, -10, 30, 30},
		{5, 5, 15, 15},
		{0, 0, 200, 200},
		{90, 90, 150, 150},
	}
	for _, b := range boxes {
		once, ok1 := ClipToFrame(b, 100, 100)
		twice, ok2 := ClipToFrame(once, 100, 100)
		if ok1 != ok2 || once != twice {
			t.Errorf("clip not idempotent for %v: %v/%v vs %v/%v", b, once, ok1, twice, ok2)
		}
	}
}

func TestIntersectsOrContainedBy(t *testing.T) {
	region := Box{0, 0, 50, 50}
	cases := []struct {
		name string
		box  Box
		want bool
	}{
		{"inside", Box{10, 10, 20, 20}, true},
		{"straddling", Box{40, 40, 70, 70}, true},
		{"touching edge", Box{50, 10, 60, 20}, true},
		{"outside", Box{100, 100, 120, 120}, false},
		{"left of region", Box{-20, 0, -1, 10}, false},
	}
	for _, tc := range cases {
		if got := IntersectsOrContainedBy(tc.box, region); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestToNormalizedCenter(t *testing.T) {
	region := Region{OffsetX: 100, OffsetY: 200, Width: 200, Height: 400}

	n, err := ToNormalizedCenter(Box{150, 300, 250, 500}, region)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Normalized{CX: 0.5, CY: 0.5, W: 0.5, H: 0.5}
	if n != want {
		t.Fatalf("expected %+v, got %+v", want, n)
	}

	// clamped against the region
	n, err = ToNormalizedCenter(Box{50, 150, 150, 250}, region)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = Normalized{CX: 0.125, CY: 0.0625, W: 0.25, H: 0.125}
	if n != want {
		t.Fatalf("expected %+v, got %+v", want, n)
	}

	if _, err := ToNormalizedCenter(Box{0, 0, 1, 1}, Region{Width: 0, Height: 10}); !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
}

func TestNormalizationRange(t *testing.T) {
	region := Region{OffsetX: 10, OffsetY: 10, Width: 37, Height: 91}
	for x := 10; x < 47; x += 6 {
		for y := 10; y < 101; y += 13 {
			b := Box{x, y, 47, 101}
			n, err := ToNormalizedCenter(b, region)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, v := range []float64{n.CX, n.CY, n.W, n.H} {
				if v < 0 || v > 1 {
					t.Fatalf("value %v out of [0,1] for %v", v, b)
				}
			}
		}
	}
}

func TestOverlapPolicy(t *testing.T) {
	region := Box{0, 0, 100, 100}
	straddling := Box{80, 80, 140, 140}
	centered := Box{60, 60, 130, 130}

	if !OverlapTouch.Admits(straddling, region) {
		t.Errorf("touch policy should admit straddling box")
	}
	if OverlapCentroid.Admits(straddling, region) {
		t.Errorf("centroid policy should reject box with centroid outside")
	}
	if !OverlapCentroid.Admits(centered, region) {
		t.Errorf("centroid policy should admit box with centroid inside")
	}
	if OverlapContained.Admits(centered, region) {
		t.Errorf("contained policy should reject partially outside box")
	}

	if p, err := ParseOverlapPolicy(""); err != nil || p != OverlapTouch {
		t.Errorf("expected default touch policy, got %q, %v", p, err)
	}
	if _, err := ParseOverlapPolicy("iou"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
