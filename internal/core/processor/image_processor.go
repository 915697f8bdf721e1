package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ppe-cascade/internal/cascade"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/core/models"
	"ppe-cascade/internal/db/repository"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ProcessingOptions enthält Optionen für die Bildverarbeitung
type ProcessingOptions struct {
	SaveCrops bool // Personen-Crops im Crop-Verzeichnis ablegen
	Force     bool // Deduplizierung überspringen
}

// Publisher veröffentlicht Kaskadenergebnisse, z.B. über MQTT
type Publisher interface {
	PublishResult(event *mqtt.CascadeEvent) error
}

// Publishers verteilt ein Ergebnis an mehrere Publisher; Fehler werden gesammelt
type Publishers []Publisher

// PublishResult implementiert Publisher
func (ps Publishers) PublishResult(event *mqtt.CascadeEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishResult(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Annotator erhält jedes frische Ergebnis zusammen mit dem Root-Frame,
// z.B. um ein Debug-Bild zu zeichnen
type Annotator interface {
	AddResult(id string, root *frame.Frame, res *cascade.Result, table *classes.Table) error
}

// ProcessResult enthält das Ergebnis der Bildverarbeitung
type ProcessResult struct {
	Inference *models.Inference
	Result    *cascade.Result // nil bei Duplikaten
	Duplicate bool
	Err       error
}

// ImageProcessor führt die Kaskade auf einem Bild aus und speichert das Ergebnis
type ImageProcessor struct {
	repo      repository.Repository
	runner    *cascade.Runner
	publisher Publisher
	annotator Annotator
	cropDir   string
	hashes    *hashLocks
}

// NewImageProcessor erstellt einen neuen Bildverarbeitungsprozessor. publisher darf nil sein.
func NewImageProcessor(repo repository.Repository, runner *cascade.Runner, publisher Publisher, cropDir string) *ImageProcessor {
	return &ImageProcessor{
		repo:      repo,
		runner:    runner,
		publisher: publisher,
		cropDir:   cropDir,
		hashes:    newHashLocks(),
	}
}

// SetAnnotator setzt einen optionalen Annotator
func (p *ImageProcessor) SetAnnotator(a Annotator) {
	p.annotator = a
}

// ProcessImage verarbeitet ein Bild: Deduplizierung, Kaskade, Speicherung, Veröffentlichung
func (p *ImageProcessor) ProcessImage(ctx context.Context, imagePath, source string, options ProcessingOptions) (*ProcessResult, error) {
	logger := log.WithFields(log.Fields{"image": imagePath, "source": source})
	logger.Debug("Processing image")

	// 1. Überprüfen, ob die Datei existiert
	if _, err := os.Stat(imagePath); err != nil {
		return nil, fmt.Errorf("image file does not exist: %w", err)
	}

	// 2. Datei-Hash berechnen für Deduplizierung
	hash, err := calculateFileHash(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate file hash: %w", err)
	}

	// Gleicher Inhalt wird nacheinander verarbeitet, bis der Datensatz gespeichert ist
	unlock := p.hashes.lock(hash)
	defer unlock()

	// 3. Prüfen, ob Bild bereits verarbeitet wurde
	if !options.Force {
		existing, err := p.repo.FindInferenceByHash(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to look up image hash: %w", err)
		}
		if existing != nil {
			logger.Infof("Image with hash %s already processed (ID: %d), skipping", hash[:12], existing.ID)
			full, err := p.repo.GetInferenceByID(existing.ID)
			if err != nil {
				return nil, err
			}
			return &ProcessResult{Inference: full, Duplicate: true}, nil
		}
	}

	// 4. Bild laden und Kaskade ausführen
	root, err := frame.Load(imagePath)
	if err != nil {
		return nil, err
	}
	root.Source = source

	res, err := p.runner.Run(ctx, root)
	if err != nil {
		return nil, err
	}

	if res.NoSubjects() {
		logger.Info("No person detected")
	}
	for _, idx := range res.EmptySubjects() {
		logger.WithField("person", idx).Info("No PPE detected on person")
	}

	inference := p.newInference(imagePath, hash, source, res)

	// 5. Crops speichern, falls gewünscht
	if options.SaveCrops && p.cropDir != "" {
		p.saveCrops(root, hash, inference, logger)
	}

	// 6. In die Datenbank schreiben
	if err := p.repo.SaveInference(inference); err != nil {
		return nil, fmt.Errorf("failed to create inference record: %w", err)
	}

	logger.WithFields(log.Fields{
		"id":      inference.ID,
		"persons": inference.PersonCount,
		"ppe":     inference.PPECount,
	}).Info("Image processed")

	if p.annotator != nil {
		if err := p.annotator.AddResult(strconv.FormatUint(uint64(inference.ID), 10), root, res, p.runner.ClassTable()); err != nil {
			logger.Warnf("Failed to annotate result: %v", err)
		}
	}

	// 7. Ergebnis veröffentlichen
	if p.publisher != nil {
		ev := mqtt.NewCascadeEvent(inference.ID, imagePath, source, res, p.runner.ClassTable())
		if err := p.publisher.PublishResult(ev); err != nil {
			logger.Warnf("Failed to publish result: %v", err)
		}
	}

	return &ProcessResult{Inference: inference, Result: res}, nil
}

func (p *ImageProcessor) newInference(imagePath, hash, source string, res *cascade.Result) *models.Inference {
	table := p.runner.ClassTable()

	inference := &models.Inference{
		FilePath:         imagePath,
		ContentHash:      hash,
		Source:           source,
		Width:            res.Width,
		Height:           res.Height,
		ClassFingerprint: table.Fingerprint(),
		PersonCount:      len(res.Subjects),
		Failures:         len(res.Failures()),
		ProcessedAt:      time.Now(),
		Persons:          make([]models.Person, 0, len(res.Subjects)),
	}

	for _, s := range res.Subjects {
		person := models.Person{
			Position:    s.Index,
			BoundingBox: datatypes.NewJSONType(s.Person.Box),
			Confidence:  s.Person.Score,
			Items:       make([]models.PPEItem, 0, len(s.PPE)),
		}
		if s.Err != nil {
			person.FailureMsg = s.Err.Error()
		}
		for _, d := range s.PPE {
			name, err := detection.Label(d, table)
			if err != nil {
				log.WithFields(log.Fields{"image": imagePath, "person": s.Index}).Warnf("Skipping PPE item: %v", err)
				continue
			}
			person.Items = append(person.Items, models.PPEItem{
				ClassID:     d.ClassID,
				Label:       name,
				BoundingBox: datatypes.NewJSONType(d.Box),
				Confidence:  d.Score,
			})
		}
		inference.PPECount += len(person.Items)
		inference.Persons = append(inference.Persons, person)
	}

	return inference
}

func (p *ImageProcessor) saveCrops(root *frame.Frame, hash string, inference *models.Inference, logger *log.Entry) {
	for i := range inference.Persons {
		person := &inference.Persons[i]
		crop, err := root.Crop(person.BoundingBox.Data())
		if err != nil {
			logger.WithField("person", person.Position).Warnf("Cannot save crop: %v", err)
			continue
		}
		path := filepath.Join(p.cropDir, fmt.Sprintf("%s_person_%d.jpg", hash[:16], person.Position))
		if err := crop.Save(path); err != nil {
			logger.WithField("person", person.Position).Warnf("Cannot save crop: %v", err)
			continue
		}
		person.CropPath = path
	}
}

// calculateFileHash berechnet den SHA-256-Hash einer Datei
func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
