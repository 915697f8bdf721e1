package detectors

import (
	"testing"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
)

func TestNewHTTPDetectors(t *testing.T) {
	table := classes.MustNew(classes.DefaultPPE...)

	person, closer, err := NewPerson(config.DetectorConfig{Backend: config.BackendHTTP, URL: "http://localhost:9000"})
	if err != nil || person == nil {
		t.Fatalf("NewPerson: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	ppe, _, err := NewPPE(config.DetectorConfig{Backend: config.BackendHTTP, URL: "http://localhost:9000"}, table)
	if err != nil {
		t.Fatalf("NewPPE: %v", err)
	}
	c, ok := ppe.(detection.Classifier)
	if !ok || !c.ClassTable().Equal(table) {
		t.Fatal("PPE detector must report its class table")
	}
}

func TestUnsupportedBackends(t *testing.T) {
	table := classes.MustNew(classes.DefaultPPE...)

	if _, _, err := NewPPE(config.DetectorConfig{Backend: config.BackendHOG}, table); err == nil {
		t.Fatal("HOG cannot detect PPE")
	}
	if _, _, err := NewPerson(config.DetectorConfig{Backend: "tflite"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, _, err := NewPerson(config.DetectorConfig{Backend: config.BackendDNN, ModelPath: "/does/not/exist.onnx"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestNewRunner(t *testing.T) {
	cfg := &config.Config{}
	cfg.Detection.Person = config.DetectorConfig{Backend: config.BackendHTTP, URL: "http://localhost:9000"}
	cfg.Detection.PPE = config.DetectorConfig{Backend: config.BackendHTTP, URL: "http://localhost:9001"}
	cfg.Cascade.Workers = 2

	table := classes.MustNew(classes.DefaultPPE...)
	runner, closer, err := NewRunner(cfg, table)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	defer closer.Close()
	if runner.ClassTable() != table {
		t.Fatal("runner must use the given table")
	}

	cfg.Detection.PPE.Backend = config.BackendHOG
	if _, _, err := NewRunner(cfg, table); err == nil {
		t.Fatal("expected error for HOG PPE backend")
	}
}
