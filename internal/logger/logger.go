package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ppe-cascade/config"

	log "github.com/sirupsen/logrus"
)

// Init richtet den globalen logrus-Logger ein: Level, Format und Ausgabe.
// Die Ausgabe geht immer nach stdout, bei gesetztem cfg.File zusätzlich in
// die Datei. Ein Fehler beim Öffnen der Datei wird zurückgegeben, der Logger
// bleibt dann auf stdout nutzbar. Der Closer ist nie nil.
func Init(cfg config.LogConfig) (io.Closer, error) {
	log.SetLevel(parseLevel(cfg.Level))
	log.SetFormatter(formatter(cfg.Format))

	file, err := openFile(cfg.File)
	if err != nil {
		log.SetOutput(os.Stdout)
		return nopCloser{}, err
	}
	if file == nil {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.WithField("file", cfg.File).Debug("Log file attached")
	return file, nil
}

// parseLevel fällt bei unbekannten Werten auf info zurück
func parseLevel(value string) log.Level {
	level, err := log.ParseLevel(value)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", value)
		return log.InfoLevel
	}
	return level
}

func formatter(format string) log.Formatter {
	if strings.EqualFold(format, "json") {
		return &log.JSONFormatter{}
	}
	return &log.TextFormatter{FullTimestamp: true}
}

// openFile gibt nil zurück, wenn kein Dateipfad gesetzt ist
func openFile(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
