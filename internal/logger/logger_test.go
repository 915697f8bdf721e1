package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ppe-cascade/config"

	log "github.com/sirupsen/logrus"
)

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	closer, err := Init(config.LogConfig{Level: "verbose"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("level = %v, want info", log.GetLevel())
	}
}

func TestInitWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cascade.log")
	closer, err := Init(config.LogConfig{Level: "debug", Format: "json", File: path})
	if err != nil {
		t.Fatal(err)
	}
	log.WithField("image", "site.jpg").Info("Image processed")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	log.SetOutput(os.Stdout)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"image":"site.jpg"`) {
		t.Fatalf("log file does not contain JSON entry: %s", data)
	}
}

func TestInitUnwritableFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	closer, err := Init(config.LogConfig{Level: "info", File: filepath.Join(blocker, "app.log")})
	if err == nil {
		t.Fatal("expected error for log path below a regular file")
	}
	if closer == nil {
		t.Fatal("closer must not be nil")
	}
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
}
