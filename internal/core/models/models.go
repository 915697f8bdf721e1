package models

import (
	"time"

	"ppe-cascade/internal/geometry"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Inference repräsentiert einen Kaskadenlauf auf einem Bild
type Inference struct {
	gorm.Model
	FilePath         string    `gorm:"index;not null"` // Pfad zum verarbeiteten Bild
	ContentHash      string    `gorm:"index"`          // Hash des Bildinhalts zur Deduplizierung
	Source           string    `gorm:"index"`          // Herkunft: api, batch, cli
	Width            int       // Breite des Root-Frames
	Height           int       // Höhe des Root-Frames
	ClassFingerprint string    `gorm:"index"` // Fingerabdruck der verwendeten Klassentabelle
	PersonCount      int       // Anzahl erkannter Personen
	PPECount         int       // Anzahl PPE-Detektionen
	Failures         int       // Personen mit fehlgeschlagener PPE-Erkennung
	ProcessedAt      time.Time `gorm:"index"`
	Persons          []Person  `gorm:"foreignKey:InferenceID;constraint:OnDelete:CASCADE;"`
}

// Person repräsentiert eine erkannte Person eines Laufs
type Person struct {
	gorm.Model
	InferenceID uint                             `gorm:"index;not null"` // Fremdschlüssel zur Inference-Tabelle
	Position    int                              // Reihenfolge der Personenerkennung
	BoundingBox datatypes.JSONType[geometry.Box] `gorm:"type:json"` // Root-Koordinaten
	Confidence  float64
	CropPath    string    // gespeicherter Crop, optional
	FailureMsg  string    // Fehler der PPE-Erkennung, leer bei Erfolg
	Items       []PPEItem `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE;"`
}

// PPEItem repräsentiert eine PPE-Detektion, bereits in Root-Koordinaten
type PPEItem struct {
	gorm.Model
	PersonID    uint                             `gorm:"index;not null"` // Fremdschlüssel zur Person-Tabelle
	ClassID     int                              `gorm:"index"`
	Label       string                           `gorm:"index"`
	BoundingBox datatypes.JSONType[geometry.Box] `gorm:"type:json"`
	Confidence  float64
}

// ConversionRun protokolliert einen Lauf des Dataset-Builders
type ConversionRun struct {
	gorm.Model
	RunID            string    `gorm:"uniqueIndex;not null"`
	Mode             string    `gorm:"index"` // person, full_frame
	ClassFingerprint string    `gorm:"index"`
	StartedAt        time.Time `gorm:"index"`
	FinishedAt       time.Time
	Images           int
	Persons          int
	LabelFiles       int
	SkippedImages    int
	Report           datatypes.JSON `gorm:"type:json"` // vollständiger Bericht
}

// Statistics fasst die gespeicherten Läufe zusammen
type Statistics struct {
	TotalInferences   int64            `json:"total_inferences"`
	TotalPersons      int64            `json:"total_persons"`
	TotalPPEItems     int64            `json:"total_ppe_items"`
	PersonsWithoutPPE int64            `json:"persons_without_ppe"`
	FailedPersons     int64            `json:"failed_persons"`
	ItemsByLabel      map[string]int64 `json:"items_by_label"`
	ConversionRuns    int64            `json:"conversion_runs"`
	LatestInference   time.Time        `json:"latest_inference"`
}
