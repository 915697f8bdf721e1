package dataset

import (
	"encoding/json"
	"time"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Mode bezeichnet die Art der Konvertierung
type Mode string

const (
	ModePerson    Mode = "person"
	ModeFullFrame Mode = "full_frame"
)

// Report fasst einen Dataset-Lauf zusammen
type Report struct {
	RunID            string    `json:"run_id"`
	Mode             Mode      `json:"mode"`
	ClassFingerprint string    `json:"class_fingerprint"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`

	Images             int `json:"images"`
	SkippedImages      int `json:"skipped_images"`
	MissingAnnotations int `json:"missing_annotations"`
	NoPersonImages     int `json:"no_person_images"`
	Persons            int `json:"persons"`
	FailedPersons      int `json:"failed_persons"`
	LabelFiles         int `json:"label_files"`
	EmptyOmitted       int `json:"empty_omitted"`

	SkippedUnknown      int `json:"skipped_unknown"`
	DiscardedOutside    int `json:"discarded_outside"`
	DiscardedDegenerate int `json:"discarded_degenerate"`
	DroppedRecords      int `json:"dropped_records"`
}

func (r *Report) add(c *annotation.Conversion) {
	r.SkippedUnknown += c.SkippedUnknown
	r.DiscardedOutside += c.DiscardedOutside
	r.DiscardedDegenerate += c.DiscardedDegenerate
}

func (r *Report) skip(name string, err error) {
	r.SkippedImages++
	log.WithField("image", name).Warnf("Skipping: %v", err)
}

func (r *Report) finish() {
	r.FinishedAt = time.Now()
}

// Model wandelt den Bericht in einen Datenbankeintrag um; der vollständige Bericht wird als JSON abgelegt
func (r *Report) Model() (*models.ConversionRun, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &models.ConversionRun{
		RunID:            r.RunID,
		Mode:             string(r.Mode),
		ClassFingerprint: r.ClassFingerprint,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Images:           r.Images,
		Persons:          r.Persons,
		LabelFiles:       r.LabelFiles,
		SkippedImages:    r.SkippedImages,
		Report:           datatypes.JSON(raw),
	}, nil
}
