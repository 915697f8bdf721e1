package detection

import (
	"context"
	"errors"
	"image"
	"testing"

	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"
)

func TestNormalizeTruncatesAndDrops(t *testing.T) {
	table := classes.MustNew(classes.DefaultPPE...)
	raws := []Raw{
		{X1: 10.9, Y1: 20.2, X2: 30.7, Y2: 40.99, ClassID: 0, Score: 0.9},
		{X1: 5, Y1: 5, X2: 5.5, Y2: 10, ClassID: 1, Score: 0.8}, // collapses to zero width
		{X1: 0, Y1: 0, X2: 10, Y2: 10, ClassID: 42, Score: 0.7},
		{X1: 1, Y1: 2, X2: 3, Y2: 4, ClassID: 8, Score: 0.6},
	}

	dets, report := Normalize(raws, table)
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(dets), dets)
	}
	if want := (geometry.Box{X1: 10, Y1: 20, X2: 30, Y2: 40}); dets[0].Box != want {
		t.Fatalf("expected truncated box %v, got %v", want, dets[0].Box)
	}
	if dets[1].ClassID != 8 {
		t.Fatalf("expected order to be preserved, got %+v", dets[1])
	}
	if report.InvalidBoxes != 1 || report.ClassOutOfRange != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	dets, _ := Normalize(nil, nil)
	if dets == nil || len(dets) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", dets)
	}
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var d Detector = Func(func(ctx context.Context, f *frame.Frame) ([]Detection, error) {
		called = true
		return nil, nil
	})
	if _, err := d.Detect(context.Background(), frame.NewRoot(image.NewRGBA(image.Rect(0, 0, 1, 1)), "")); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatalf("func adapter was not invoked")
	}
}

func TestLabel(t *testing.T) {
	table := classes.MustNew("hard-hat")
	if name, _ := Label(Detection{ClassID: PersonClassID}, table); name != "person" {
		t.Fatalf("expected person, got %q", name)
	}
	if name, err := Label(Detection{ClassID: 0}, table); err != nil || name != "hard-hat" {
		t.Fatalf("expected hard-hat, got %q (%v)", name, err)
	}
	if _, err := Label(Detection{ClassID: 3}, table); !errors.Is(err, classes.ErrClassIDOutOfRange) {
		t.Fatalf("expected ErrClassIDOutOfRange, got %v", err)
	}
}

func TestCheck(t *testing.T) {
	table := classes.MustNew("hard-hat", "vest")
	valid := Detection{Box: geometry.Box{X1: 1, Y1: 1, X2: 4, Y2: 4}, ClassID: 1}
	if err := Check(valid, table); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Check(Detection{Box: valid.Box, ClassID: 2}, table); !errors.Is(err, classes.ErrClassIDOutOfRange) {
		t.Fatalf("expected ErrClassIDOutOfRange, got %v", err)
	}
	if err := Check(Detection{Box: valid.Box, ClassID: PersonClassID}, table); !errors.Is(err, classes.ErrClassIDOutOfRange) {
		t.Fatalf("person sentinel is not a PPE class, got %v", err)
	}
	if err := Check(Detection{Box: geometry.Box{X1: 4, Y1: 1, X2: 4, Y2: 4}}, table); !errors.Is(err, geometry.ErrInvalidBox) {
		t.Fatalf("expected ErrInvalidBox, got %v", err)
	}
}
