package inference

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"

	"github.com/disintegration/imaging"
)

func testFrame() *frame.Frame {
	return frame.NewRoot(imaging.New(64, 48, color.NRGBA{R: 200, A: 255}), "test")
}

func server(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if _, err := imaging.Decode(file); err != nil {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPersonClient(t *testing.T) {
	srv := server(t, `{"detections":[
		{"box":[1.9,2.2,30.7,40],"class_id":0,"score":0.9},
		{"box":[5,5,10,10],"class_id":2,"score":0.99},
		{"box":[5,5,10,10],"class_id":0,"score":0.1}
	]}`)

	c := NewPersonClient(config.DetectorConfig{URL: srv.URL, ConfidenceThreshold: 0.5, Timeout: 5 * time.Second})
	dets, err := c.Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected one person, got %+v", dets)
	}
	want := detection.Detection{Box: geometry.Box{X1: 1, Y1: 2, X2: 30, Y2: 40}, ClassID: detection.PersonClassID, Score: 0.9}
	if dets[0] != want {
		t.Fatalf("got %+v, want %+v", dets[0], want)
	}
}

func TestPPEClientDropsUnknownClasses(t *testing.T) {
	srv := server(t, `{"detections":[
		{"box":[0,0,10,10],"class_id":5,"score":0.8},
		{"box":[0,0,10,10],"class_id":12,"score":0.8},
		{"box":[10,10,10,20],"class_id":1,"score":0.8}
	]}`)

	c := NewPPEClient(config.DetectorConfig{URL: srv.URL}, classes.MustNew(classes.DefaultPPE...))
	dets, err := c.Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 1 || dets[0].ClassID != 5 {
		t.Fatalf("expected only the vest, got %+v", dets)
	}
	if c.ClassTable().Len() != len(classes.DefaultPPE) {
		t.Fatal("PPE client must expose its class table")
	}
}

func TestClientErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	c := NewPersonClient(config.DetectorConfig{URL: failing.URL})
	if _, err := c.Detect(context.Background(), testFrame()); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected unhealthy server")
	}

	short := server(t, `{"detections":[{"box":[1,2,3],"class_id":0,"score":1}]}`)
	c = NewPersonClient(config.DetectorConfig{URL: short.URL})
	if _, err := c.Detect(context.Background(), testFrame()); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse for short box, got %v", err)
	}
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestClientHonoursContext(t *testing.T) {
	srv := server(t, `{"detections":[]}`)
	c := NewPersonClient(config.DetectorConfig{URL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Detect(ctx, testFrame()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
