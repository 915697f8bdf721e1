// Package detectors baut die Detektoren beider Kaskadenstufen aus der Konfiguration
package detectors

import (
	"errors"
	"fmt"
	"io"

	"ppe-cascade/config"
	"ppe-cascade/internal/cascade"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/integrations/inference"
	"ppe-cascade/internal/integrations/opencv"

	log "github.com/sirupsen/logrus"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewPerson erstellt den Personendetektor für Stufe 1
func NewPerson(cfg config.DetectorConfig) (detection.Detector, io.Closer, error) {
	log.Infof("Person detector backend: %s", cfg.Backend)

	switch cfg.Backend {
	case config.BackendDNN:
		d, err := opencv.NewPersonYOLO(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("person detector: %w", err)
		}
		return d, d, nil
	case config.BackendHOG:
		d := opencv.NewHOGDetector(cfg)
		return d, d, nil
	case config.BackendHTTP:
		return inference.NewPersonClient(cfg), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("person detector: unknown backend %q", cfg.Backend)
	}
}

// NewPPE erstellt den PPE-Detektor für Stufe 2
func NewPPE(cfg config.DetectorConfig, table *classes.Table) (detection.Detector, io.Closer, error) {
	log.Infof("PPE detector backend: %s (%d classes)", cfg.Backend, table.Len())

	switch cfg.Backend {
	case config.BackendDNN:
		d, err := opencv.NewPPEYOLO(cfg, table)
		if err != nil {
			return nil, nil, fmt.Errorf("PPE detector: %w", err)
		}
		return d, d, nil
	case config.BackendHTTP:
		return inference.NewPPEClient(cfg, table), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("PPE detector: unsupported backend %q", cfg.Backend)
	}
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// NewRunner baut beide Detektoren und den Kaskaden-Runner. Der Closer gibt
// die Detektoren frei.
func NewRunner(cfg *config.Config, table *classes.Table) (*cascade.Runner, io.Closer, error) {
	persons, personCloser, err := NewPerson(cfg.Detection.Person)
	if err != nil {
		return nil, nil, err
	}

	ppe, ppeCloser, err := NewPPE(cfg.Detection.PPE, table)
	if err != nil {
		personCloser.Close()
		return nil, nil, err
	}
	all := closers{personCloser, ppeCloser}

	runner, err := cascade.NewRunner(persons, ppe, table, cascade.Options{
		Workers:       cfg.Cascade.Workers,
		Stage1Timeout: cfg.Detection.Person.Timeout,
		Stage2Timeout: cfg.Detection.PPE.Timeout,
	})
	if err != nil {
		all.Close()
		return nil, nil, err
	}
	return runner, all, nil
}
