package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	yaml := strings.Join([]string{
		"server:",
		"  data_dir: " + filepath.Join(dir, "data"),
		"  upload_dir: " + filepath.Join(dir, "data", "uploads"),
		"  crop_dir: " + filepath.Join(dir, "data", "crops"),
		"log:",
		"  file: " + filepath.Join(dir, "logs", "test.log"),
		"db:",
		"  file: " + filepath.Join(dir, "db", "test.db"),
		extra,
	}, "\n")
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 3000 || cfg.Cascade.Workers != 1 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Detection.Person.Backend != BackendDNN || cfg.Detection.Person.InputSize != 640 {
		t.Fatalf("unexpected detector defaults %+v", cfg.Detection.Person)
	}
	if cfg.Detection.PPE.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Detection.PPE.Timeout)
	}
	if cfg.Conversion.OverlapPolicy != "touch" || cfg.Conversion.EmptyLabelPolicy != "omit" {
		t.Fatalf("unexpected conversion defaults %+v", cfg.Conversion)
	}
	if len(cfg.Conversion.Extensions) != 2 {
		t.Fatalf("expected default extensions, got %v", cfg.Conversion.Extensions)
	}
	if _, err := os.Stat(cfg.Server.CropDir); err != nil {
		t.Fatalf("crop dir not created: %v", err)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, "cascade:\n  workers: 3\nconversion:\n  overlap_policy: centroid\n")
	t.Setenv("PPE_CASCADE_CASCADE_WORKERS", "6")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cascade.Workers != 6 {
		t.Fatalf("environment must override file, got %d", cfg.Cascade.Workers)
	}
	if cfg.Conversion.OverlapPolicy != "centroid" {
		t.Fatalf("expected centroid from file, got %q", cfg.Conversion.OverlapPolicy)
	}
}

func TestLoadFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("conversion.person_source", "", "")

	path := writeConfig(t, "")
	if err := fs.Parse([]string{"--config", path, "--conversion.person_source", "ground_truth"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFlags(fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Conversion.PersonSource != "ground_truth" {
		t.Fatalf("expected flag value, got %q", cfg.Conversion.PersonSource)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"policy":       "conversion:\n  overlap_policy: nearest\n",
		"empty labels": "conversion:\n  empty_label_policy: drop\n",
		"backend":      "detection:\n  person:\n    backend: tflite\n",
		"hog for ppe":  "detection:\n  ppe:\n    backend: hog\n",
		"http no url":  "detection:\n  ppe:\n    backend: http\n",
		"workers":      "cascade:\n  workers: 0\n",
	}

	for name, extra := range tests {
		if _, err := Load(writeConfig(t, extra)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
