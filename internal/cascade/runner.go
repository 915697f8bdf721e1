package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options steuert die Ausführung der Kaskade
type Options struct {
	// Workers begrenzt die parallelen Stufe-2-Aufrufe (1 = sequentiell)
	Workers int
	// Stage1Timeout gilt pro Personen-Detektoraufruf; ein Timeout bricht den Lauf ab
	Stage1Timeout time.Duration
	// Stage2Timeout gilt pro PPE-Detektoraufruf; ein Timeout zählt als "keine PPE"
	Stage2Timeout time.Duration
}

// Runner führt die zweistufige Erkennung aus: Personen im Root-Frame, danach
// PPE innerhalb jeder Personenregion
type Runner struct {
	persons detection.Detector
	ppe     detection.Detector
	table   *classes.Table
	opts    Options
}

// NewRunner erstellt einen Runner. Kennt der PPE-Detektor seine Klassentabelle,
// muss sie mit table übereinstimmen, sonst würden Labels unbemerkt verrutschen.
func NewRunner(persons, ppe detection.Detector, table *classes.Table, opts Options) (*Runner, error) {
	if persons == nil || ppe == nil {
		return nil, errors.New("cascade: both person and PPE detector are required")
	}
	if table == nil {
		return nil, errors.New("cascade: class table is required")
	}
	if c, ok := ppe.(detection.Classifier); ok {
		if err := table.Check(c.ClassTable()); err != nil {
			return nil, fmt.Errorf("cascade: PPE detector: %w", err)
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Runner{
		persons: persons,
		ppe:     ppe,
		table:   table,
		opts:    opts,
	}, nil
}

// ClassTable gibt die Klassentabelle des Runners zurück
func (r *Runner) ClassTable() *classes.Table {
	return r.table
}

// Run führt die Kaskade auf einem Frame aus. Ein Fehler wird nur bei
// fehlgeschlagener Personenerkennung zurückgegeben; Fehler einzelner Personen
// werden im jeweiligen Subject vermerkt.
func (r *Runner) Run(ctx context.Context, root *frame.Frame) (*Result, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil frame", frame.ErrFrameExtraction)
	}

	logger := log.WithField("source", root.Source)

	stage1Ctx, cancel := withTimeout(ctx, r.opts.Stage1Timeout)
	persons, err := r.persons.Detect(stage1Ctx, root)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("person detection failed: %w", err)
	}

	result := &Result{
		Width:    root.Width(),
		Height:   root.Height(),
		Subjects: make([]Subject, len(persons)),
	}

	if len(persons) == 0 {
		logger.Info("No person detected")
		return result, nil
	}

	logger.Debugf("Detected %d persons, running PPE detection", len(persons))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)

	for i, p := range persons {
		result.Subjects[i] = Subject{
			Index: i,
			Person: detection.Detection{
				Box:     p.Box,
				ClassID: detection.PersonClassID,
				Score:   p.Score,
			},
		}

		g.Go(func() error {
			ppe, dropped, err := r.detectWithin(ctx, root, p.Box)
			if err != nil {
				logger.WithField("person", i).Warnf("PPE detection failed, continuing: %v", err)
				ppe = []detection.Detection{}
			} else if len(ppe) == 0 {
				logger.WithField("person", i).Info("No PPE detected on person")
			}
			// jede Goroutine schreibt nur ihren eigenen Index
			result.Subjects[i].PPE = ppe
			result.Subjects[i].Dropped = dropped
			result.Subjects[i].Err = err
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// detectWithin schneidet die Personenregion aus, erkennt PPE darin und
// verschiebt die lokalen Boxen in den Root-Frame. Detektionen mit
// degenerierter Box oder unbekannter Klassen-ID werden verworfen und gezählt.
func (r *Runner) detectWithin(ctx context.Context, root *frame.Frame, person geometry.Box) ([]detection.Detection, int, error) {
	crop, err := root.Crop(person)
	if err != nil {
		return nil, 0, err
	}

	stage2Ctx, cancel := withTimeout(ctx, r.opts.Stage2Timeout)
	defer cancel()

	local, err := r.ppe.Detect(stage2Ctx, crop)
	if err != nil {
		return nil, 0, fmt.Errorf("stage 2: %w", err)
	}

	dropped := 0
	remapped := make([]detection.Detection, 0, len(local))
	for j, l := range local {
		if err := detection.Check(l, r.table); err != nil {
			dropped++
			log.WithFields(log.Fields{"source": root.Source, "person": person, "index": j}).
				Warnf("Dropping PPE detection: %v", err)
			continue
		}
		remapped = append(remapped, detection.Detection{
			Box:     geometry.Translate(l.Box, person.X1, person.Y1),
			ClassID: l.ClassID,
			Score:   l.Score,
		})
	}
	return remapped, dropped, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
