// Package dataset erzeugt Trainingsdaten pro Person aus Bildannotationen
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/format/voc"
	"ppe-cascade/internal/format/yolo"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PersonSource bestimmt die Herkunft der Personenregionen
type PersonSource string

const (
	// SourceDetector führt den Personendetektor auf jedem Bild aus
	SourceDetector PersonSource = "detector"
	// SourceGroundTruth nutzt die annotierten Personen der VOC-Datei
	SourceGroundTruth PersonSource = "ground_truth"
)

// ParsePersonSource liest einen Konfigurationswert; leer bedeutet SourceDetector
func ParsePersonSource(s string) (PersonSource, error) {
	switch PersonSource(s) {
	case "", SourceDetector:
		return SourceDetector, nil
	case SourceGroundTruth:
		return SourceGroundTruth, nil
	}
	return "", fmt.Errorf("unknown person source %q", s)
}

// Options konfiguriert einen Builder
type Options struct {
	PersonSource PersonSource
	// VOC-Objektname der Personen bei SourceGroundTruth
	PersonClass string
	Overlap     geometry.OverlapPolicy
	EmptyLabels annotation.EmptyLabelPolicy
	// Bildendungen inklusive Punkt
	Extensions []string
}

// Builder schneidet jede Person aus und schreibt Labels relativ zum Ausschnitt
type Builder struct {
	table     *classes.Table
	persons   detection.Detector
	converter *annotation.Converter
	opts      Options
}

// NewBuilder erstellt einen Builder. persons darf bei SourceGroundTruth nil sein.
func NewBuilder(table *classes.Table, persons detection.Detector, opts Options) (*Builder, error) {
	if opts.PersonSource == "" {
		opts.PersonSource = SourceDetector
	}
	if opts.PersonClass == "" {
		opts.PersonClass = "person"
	}
	if opts.EmptyLabels == "" {
		opts.EmptyLabels = annotation.EmptyOmit
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".jpg", ".png"}
	}
	if opts.PersonSource == SourceDetector && persons == nil {
		return nil, errors.New("dataset: person detector required for person source \"detector\"")
	}

	conv, err := annotation.NewConverter(table, opts.Overlap)
	if err != nil {
		return nil, err
	}

	return &Builder{
		table:     table,
		persons:   persons,
		converter: conv,
		opts:      opts,
	}, nil
}

// Run verarbeitet alle Bilder in imageDir. Die Annotation zu "<stem>.<ext>"
// liegt unter annotationDir/<stem>.xml. Ausschnitte landen als
// "<stem>_person_<i>.jpg" in outImages, Labels als "<stem>_person_<i>.txt" in
// outLabels. Fehler einzelner Bilder werden geloggt und gezählt; nur Fehler
// auf Verzeichnisebene und ein beendeter Kontext brechen den Lauf ab.
func (b *Builder) Run(ctx context.Context, imageDir, annotationDir, outImages, outLabels string) (*Report, error) {
	report := newReport(ModePerson, b.table)
	defer report.finish()

	images, err := b.listImages(imageDir)
	if err != nil {
		return report, err
	}
	for _, dir := range []string{outImages, outLabels} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return report, fmt.Errorf("create output directory: %w", err)
		}
	}

	log.WithFields(log.Fields{
		"run":    report.RunID,
		"images": len(images),
		"source": b.opts.PersonSource,
	}).Info("Building person dataset")

	for _, name := range images {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Images++
		if err := b.processImage(ctx, report, name, imageDir, annotationDir, outImages, outLabels); err != nil {
			report.skip(name, err)
		}
	}

	log.WithFields(log.Fields{
		"run":     report.RunID,
		"persons": report.Persons,
		"labels":  report.LabelFiles,
		"skipped": report.SkippedImages,
	}).Info("All persons cropped and annotations converted")

	return report, nil
}

func (b *Builder) processImage(ctx context.Context, report *Report, name, imageDir, annotationDir, outImages, outLabels string) error {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	logger := log.WithField("image", name)

	ann, err := voc.DecodeFile(filepath.Join(annotationDir, stem+".xml"))
	if err != nil {
		if errors.Is(err, voc.ErrMissingAnnotationSource) {
			report.MissingAnnotations++
		}
		return err
	}
	report.DroppedRecords += ann.Dropped

	root, err := frame.Load(filepath.Join(imageDir, name))
	if err != nil {
		return err
	}

	regions, err := b.personRegions(ctx, root, ann)
	if err != nil {
		return err
	}
	if len(regions) == 0 {
		report.NoPersonImages++
		return errors.New("no person detected")
	}

	for i, person := range regions {
		base := fmt.Sprintf("%s_person_%d", stem, i)
		plog := logger.WithField("person", i)

		crop, err := root.Crop(person)
		if err != nil {
			plog.Warnf("Skipping person: %v", err)
			report.FailedPersons++
			continue
		}
		if err := crop.Save(filepath.Join(outImages, base+".jpg")); err != nil {
			plog.Warnf("Skipping person: %v", err)
			report.FailedPersons++
			continue
		}
		report.Persons++

		conv, err := b.converter.Convert(ann.Objects, person)
		if err != nil {
			plog.Warnf("Skipping labels: %v", err)
			report.FailedPersons++
			continue
		}
		report.add(conv)

		if err := b.writeLabels(report, filepath.Join(outLabels, base+".txt"), conv, plog); err != nil {
			plog.Warnf("Writing labels failed: %v", err)
			report.FailedPersons++
		}
	}

	return nil
}

func (b *Builder) personRegions(ctx context.Context, root *frame.Frame, ann *voc.Annotation) ([]geometry.Box, error) {
	if b.opts.PersonSource == SourceGroundTruth {
		return ann.Persons(b.opts.PersonClass), nil
	}

	dets, err := b.persons.Detect(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("person detection failed: %w", err)
	}
	boxes := make([]geometry.Box, 0, len(dets))
	for _, d := range dets {
		boxes = append(boxes, d.Box)
	}
	return boxes, nil
}

// ConvertDirectory wandelt jede VOC-Datei in annotationDir in eine
// Label-Datei für das ganze Bild um, benannt nach dem annotierten Bild.
func (b *Builder) ConvertDirectory(annotationDir, outLabels string) (*Report, error) {
	report := newReport(ModeFullFrame, b.table)
	defer report.finish()

	entries, err := os.ReadDir(annotationDir)
	if err != nil {
		return report, fmt.Errorf("read annotation directory: %w", err)
	}
	if err := os.MkdirAll(outLabels, 0o755); err != nil {
		return report, fmt.Errorf("create output directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		report.Images++

		ann, err := voc.DecodeFile(filepath.Join(annotationDir, e.Name()))
		if err != nil {
			report.skip(e.Name(), err)
			continue
		}
		report.DroppedRecords += ann.Dropped

		conv, err := b.converter.ConvertFullFrame(ann.Objects, ann.Width, ann.Height)
		if err != nil {
			report.skip(e.Name(), err)
			continue
		}
		report.add(conv)

		stem := strings.TrimSuffix(ann.Filename, filepath.Ext(ann.Filename))
		if stem == "" {
			stem = strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		}
		logger := log.WithField("annotation", e.Name())
		if err := b.writeLabels(report, filepath.Join(outLabels, stem+".txt"), conv, logger); err != nil {
			report.skip(e.Name(), err)
		}
	}

	log.WithFields(log.Fields{
		"run":    report.RunID,
		"labels": report.LabelFiles,
		"output": outLabels,
	}).Info("Conversion completed")

	return report, nil
}

func (b *Builder) writeLabels(report *Report, path string, conv *annotation.Conversion, logger *log.Entry) error {
	if conv.Empty() && b.opts.EmptyLabels == annotation.EmptyOmit {
		report.EmptyOmitted++
		logger.Warnf("No PPE annotations found, skipping label creation for %s", filepath.Base(path))
		return nil
	}
	if err := yolo.WriteFile(path, conv.Labels); err != nil {
		return err
	}
	report.LabelFiles++
	logger.Debugf("Saved %s with %d annotations", filepath.Base(path), len(conv.Labels))
	return nil
}

func (b *Builder) listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range b.opts.Extensions {
			if ext == strings.ToLower(want) {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func newReport(mode Mode, table *classes.Table) *Report {
	return &Report{
		RunID:            uuid.NewString(),
		Mode:             mode,
		ClassFingerprint: table.Fingerprint(),
		StartedAt:        time.Now(),
	}
}
