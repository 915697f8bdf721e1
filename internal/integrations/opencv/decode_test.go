package opencv

import (
	"testing"

	"ppe-cascade/internal/detection"
)

// output baut eine Ausgabe im Layout [channels][anchors]
func output(channels int, anchors [][]float32) []float32 {
	data := make([]float32, channels*len(anchors))
	for i, a := range anchors {
		for k, v := range a {
			data[k*len(anchors)+i] = v
		}
	}
	return data
}

func TestDecodeOutputBestClass(t *testing.T) {
	data := output(6, [][]float32{
		{50, 50, 20, 40, 0.1, 0.9}, // Klasse 1
		{10, 10, 4, 4, 0.2, 0.1},   // unter der Schwelle
		{100, 80, 10, 10, 0.6, 0.3},
	})

	raws := decodeOutput(data, 6, 3, 2.0, 0.5, allClasses)
	if len(raws) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(raws))
	}

	want := detection.Raw{X1: 80, Y1: 60, X2: 120, Y2: 140, ClassID: 1, Score: float64(float32(0.9))}
	if raws[0] != want {
		t.Fatalf("unexpected first candidate %+v", raws[0])
	}
	if raws[1].ClassID != 0 || raws[1].X1 != 190 {
		t.Fatalf("unexpected second candidate %+v", raws[1])
	}
}

func TestDecodeOutputSingleClass(t *testing.T) {
	data := output(6, [][]float32{
		{50, 50, 20, 40, 0.8, 0.1},
		{50, 50, 20, 40, 0.1, 0.95},
	})

	raws := decodeOutput(data, 6, 2, 1.0, 0.5, 0)
	if len(raws) != 1 || raws[0].ClassID != 0 {
		t.Fatalf("expected only class 0, got %+v", raws)
	}

	if got := decodeOutput(data, 6, 2, 1.0, 0.5, 5); got != nil {
		t.Fatalf("class outside the model must yield nothing, got %+v", got)
	}
}

func TestDecodeOutputShortBuffer(t *testing.T) {
	if got := decodeOutput(make([]float32, 5), 6, 2, 1, 0, allClasses); got != nil {
		t.Fatalf("expected nil for short buffer, got %+v", got)
	}
}

func TestClipRaw(t *testing.T) {
	raws := []detection.Raw{{X1: -5, Y1: -1, X2: 120, Y2: 50}}
	clipRaw(raws, 100, 40)
	if raws[0].X1 != 0 || raws[0].Y1 != 0 || raws[0].X2 != 100 || raws[0].Y2 != 40 {
		t.Fatalf("unexpected clip %+v", raws[0])
	}
}

func TestSuppressPerClass(t *testing.T) {
	raws := []detection.Raw{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, ClassID: 0, Score: 0.9},
		{X1: 2, Y1: 2, X2: 100, Y2: 100, ClassID: 0, Score: 0.7},
		{X1: 0, Y1: 0, X2: 100, Y2: 100, ClassID: 1, Score: 0.8},
	}

	kept := suppress(raws, 0.25, 0.45)
	if len(kept) != 2 {
		t.Fatalf("expected 2 boxes after NMS, got %+v", kept)
	}
	if kept[0].Score != 0.9 || kept[1].ClassID != 1 {
		t.Fatalf("unexpected order %+v", kept)
	}
}

func TestDebugServiceRing(t *testing.T) {
	s := NewDebugService(2)
	s.AddDebugImage(&DebugImage{ID: "1"})
	s.AddDebugImage(&DebugImage{ID: "2"})
	s.AddDebugImage(&DebugImage{ID: "3"})
	s.AddDebugImage(&DebugImage{ID: "3", Persons: 4})

	if s.GetImage("1") != nil {
		t.Fatal("oldest image must be evicted")
	}
	latest := s.GetLatestImages(0)
	if len(latest) != 2 || latest[0].ID != "2" || latest[1].Persons != 4 {
		t.Fatalf("unexpected images %+v", latest)
	}
}
