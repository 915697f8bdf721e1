package processor

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"ppe-cascade/internal/cascade"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/db"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"
	"ppe-cascade/internal/integrations/mqtt"

	"github.com/disintegration/imaging"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*mqtt.CascadeEvent
}

func (f *fakePublisher) PublishResult(ev *mqtt.CascadeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func newProcessor(t *testing.T, publisher Publisher) (*ImageProcessor, *repository.SQLiteRepository) {
	t.Helper()

	conn, err := db.Open("file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	repo := repository.NewSQLiteRepository(conn)

	persons := detection.Func(func(ctx context.Context, f *frame.Frame) ([]detection.Detection, error) {
		return []detection.Detection{
			{Box: geometry.Box{X1: 0, Y1: 0, X2: 40, Y2: 80}, Score: 0.9},
			{Box: geometry.Box{X1: 50, Y1: 0, X2: 90, Y2: 80}, Score: 0.8},
		}, nil
	})
	ppe := detection.Func(func(ctx context.Context, f *frame.Frame) ([]detection.Detection, error) {
		if f.Region.OffsetX != 0 {
			return nil, nil
		}
		return []detection.Detection{{Box: geometry.Box{X1: 5, Y1: 5, X2: 20, Y2: 15}, ClassID: 0, Score: 0.7}}, nil
	})

	runner, err := cascade.NewRunner(persons, ppe, classes.MustNew(classes.DefaultPPE...), cascade.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	return NewImageProcessor(repo, runner, publisher, t.TempDir()), repo
}

func writeImage(t *testing.T, dir, name string, shade uint8) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := imaging.New(100, 100, color.NRGBA{R: shade, G: 10, B: 10, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessImagePersistsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	p, repo := newProcessor(t, pub)
	path := writeImage(t, t.TempDir(), "a.png", 10)

	res, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{})
	if err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}
	if res.Duplicate || res.Result == nil {
		t.Fatalf("expected fresh result, got %+v", res)
	}
	if res.Inference.PersonCount != 2 || res.Inference.PPECount != 1 {
		t.Fatalf("unexpected counts %+v", res.Inference)
	}

	stored, err := repo.GetInferenceByID(res.Inference.ID)
	if err != nil || stored == nil {
		t.Fatalf("inference not stored: %v", err)
	}
	if got := stored.Persons[0].Items[0]; got.Label != "hard-hat" || got.BoundingBox.Data() != (geometry.Box{X1: 5, Y1: 5, X2: 20, Y2: 15}) {
		t.Fatalf("unexpected stored item %+v", got)
	}

	if len(pub.events) != 1 || pub.events[0].InferenceID != res.Inference.ID {
		t.Fatalf("expected one published event, got %+v", pub.events)
	}

	again, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !again.Duplicate || again.Inference.ID != res.Inference.ID {
		t.Fatalf("expected duplicate of %d, got %+v", res.Inference.ID, again)
	}
	if len(again.Inference.Persons) != 2 {
		t.Fatalf("duplicate must return the stored persons, got %d", len(again.Inference.Persons))
	}

	forced, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{Force: true})
	if err != nil || forced.Duplicate || forced.Inference.ID == res.Inference.ID {
		t.Fatalf("expected a new record with Force, got %+v, %v", forced, err)
	}
}

func TestProcessImageSavesCrops(t *testing.T) {
	p, _ := newProcessor(t, nil)
	path := writeImage(t, t.TempDir(), "crop.png", 99)

	res, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{SaveCrops: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, person := range res.Inference.Persons {
		if person.CropPath == "" {
			t.Fatalf("person %d has no crop", person.Position)
		}
		if _, err := os.Stat(person.CropPath); err != nil {
			t.Fatalf("crop missing: %v", err)
		}
	}
}

func TestProcessImageMissingFile(t *testing.T) {
	p, _ := newProcessor(t, nil)
	if _, err := p.ProcessImage(context.Background(), filepath.Join(t.TempDir(), "none.jpg"), "test", ProcessingOptions{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWorkerPoolProcessDirectory(t *testing.T) {
	p, _ := newProcessor(t, nil)
	pool := NewWorkerPool(p, 2, 4)
	defer pool.Shutdown()

	dir := t.TempDir()
	writeImage(t, dir, "1.png", 1)
	writeImage(t, dir, "2.png", 2)
	writeImage(t, dir, "3.png", 3)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := pool.ProcessDirectory(context.Background(), dir, "batch", nil, ProcessingOptions{})
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if report.Images != 4 || report.Processed != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, ok := report.Failed["broken.png"]; !ok || len(report.Failed) != 1 {
		t.Fatalf("expected broken.png to fail, got %v", report.Failed)
	}
	if report.Persons != 6 || report.PPEItems != 3 {
		t.Fatalf("unexpected totals %+v", report)
	}
	if pool.ActiveJobCount() != 0 {
		t.Fatalf("expected idle pool, got %d active", pool.ActiveJobCount())
	}
}

func TestWorkerPoolShutdown(t *testing.T) {
	p, _ := newProcessor(t, nil)
	pool := NewWorkerPool(p, 1, 1)
	pool.Shutdown()
	pool.Shutdown()

	path := writeImage(t, t.TempDir(), "late.png", 5)
	if _, err := pool.ProcessImage(context.Background(), path, "test", ProcessingOptions{}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

func TestWorkerPoolHandleMessage(t *testing.T) {
	p, repo := newProcessor(t, nil)
	pool := NewWorkerPool(p, 1, 1)
	defer pool.Shutdown()

	path := writeImage(t, t.TempDir(), "mqtt.png", 7)
	pool.HandleMessage("ppe/detect", []byte(`{"path":"`+path+`","source":"cam"}`))

	_, total, err := repo.GetInferences(10, 0)
	if err != nil || total != 1 {
		t.Fatalf("expected one stored inference, got %d, %v", total, err)
	}
}

type fakeAnnotator struct {
	ids []string
}

func (f *fakeAnnotator) AddResult(id string, root *frame.Frame, res *cascade.Result, table *classes.Table) error {
	f.ids = append(f.ids, id)
	return nil
}

func TestProcessImageAnnotates(t *testing.T) {
	p, _ := newProcessor(t, nil)
	a := &fakeAnnotator{}
	p.SetAnnotator(a)

	path := writeImage(t, t.TempDir(), "annotate.png", 42)
	res, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(a.ids) != 1 || a.ids[0] != strconv.FormatUint(uint64(res.Inference.ID), 10) {
		t.Fatalf("unexpected annotations %v", a.ids)
	}

	// Duplikate werden nicht erneut gezeichnet
	if _, err := p.ProcessImage(context.Background(), path, "test", ProcessingOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(a.ids) != 1 {
		t.Fatalf("duplicate must not be annotated, got %v", a.ids)
	}
}

type failingPublisher struct{}

func (failingPublisher) PublishResult(*mqtt.CascadeEvent) error { return errors.New("broker down") }

func TestPublishersFanOut(t *testing.T) {
	a, b := &fakePublisher{}, &fakePublisher{}
	ps := Publishers{a, failingPublisher{}, b}

	err := ps.PublishResult(&mqtt.CascadeEvent{Image: "x.jpg"})
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatal("every publisher must receive the event")
	}
}

func TestNewInferenceSkipsUnknownClass(t *testing.T) {
	p, _ := newProcessor(t, nil)
	res := &cascade.Result{
		Width:  100,
		Height: 100,
		Subjects: []cascade.Subject{{
			Index:  0,
			Person: detection.Detection{Box: geometry.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, ClassID: detection.PersonClassID},
			PPE: []detection.Detection{
				{Box: geometry.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}, ClassID: 1, Score: 0.8},
				{Box: geometry.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}, ClassID: 99, Score: 0.8},
			},
		}},
	}

	inf := p.newInference("x.jpg", "hash", "test", res)
	items := inf.Persons[0].Items
	if len(items) != 1 || items[0].ClassID != 1 || items[0].Label != "gloves" {
		t.Fatalf("unknown class must be skipped, got %+v", items)
	}
	if inf.PPECount != 1 {
		t.Fatalf("PPECount must count stored items, got %d", inf.PPECount)
	}
}

func TestWorkerPoolIdenticalFilesStoredOnce(t *testing.T) {
	p, repo := newProcessor(t, nil)
	pool := NewWorkerPool(p, 4, 8)
	defer pool.Shutdown()

	// gleicher Inhalt unter verschiedenen Namen
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		writeImage(t, dir, name, 7)
	}

	report, err := pool.ProcessDirectory(context.Background(), dir, "batch", nil, ProcessingOptions{})
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if report.Processed != 4 || report.Duplicates != 3 {
		t.Fatalf("expected one fresh image and three duplicates, got %+v", report)
	}
	if _, total, err := repo.GetInferences(10, 0); err != nil || total != 1 {
		t.Fatalf("expected exactly one stored inference, got %d (%v)", total, err)
	}
	if n := p.hashes.size(); n != 0 {
		t.Fatalf("hash locks must be released, %d left", n)
	}
}

func TestHashLocksSerializeSameHash(t *testing.T) {
	locks := newHashLocks()
	unlock := locks.lock("abc")

	acquired := make(chan struct{})
	go func() {
		release := locks.lock("abc")
		close(acquired)
		release()
	}()

	// andere Hashes sind nicht blockiert
	locks.lock("other")()

	select {
	case <-acquired:
		t.Fatal("second lock on the same hash must wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not handed over")
	}
}
