package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"ppe-cascade/internal/cascade"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
)

// CascadeEvent ist die Nutzlast auf "<topic>/result"
type CascadeEvent struct {
	InferenceID uint          `json:"inference_id,omitempty"`
	Image       string        `json:"image"`
	Source      string        `json:"source"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	PersonCount int           `json:"person_count"`
	PPECount    int           `json:"ppe_count"`
	Persons     []PersonEvent `json:"persons"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// PersonEvent beschreibt eine Person mit ihren PPE-Detektionen
type PersonEvent struct {
	Index  int          `json:"index"`
	Box    geometry.Box `json:"box"`
	Score  float64      `json:"score"`
	Failed bool         `json:"failed,omitempty"`
	PPE    []ItemEvent  `json:"ppe"`
}

// ItemEvent ist eine PPE-Detektion in Root-Koordinaten
type ItemEvent struct {
	ClassID int          `json:"class_id"`
	Label   string       `json:"label"`
	Box     geometry.Box `json:"box"`
	Score   float64      `json:"score"`
}

// DetectRequest ist die Nutzlast auf "<topic>/detect"
type DetectRequest struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// ParseDetectRequest dekodiert einen Erkennungsauftrag; reiner Text gilt als Pfad
func ParseDetectRequest(payload []byte) (DetectRequest, error) {
	var req DetectRequest
	if len(payload) > 0 && payload[0] == '{' {
		if err := json.Unmarshal(payload, &req); err != nil {
			return req, fmt.Errorf("invalid detect request: %w", err)
		}
	} else {
		req.Path = string(payload)
	}
	if req.Path == "" {
		return req, fmt.Errorf("invalid detect request: empty path")
	}
	if req.Source == "" {
		req.Source = "mqtt"
	}
	return req, nil
}

// NewCascadeEvent baut die Nutzlast aus einem Kaskadenergebnis
func NewCascadeEvent(inferenceID uint, image, source string, res *cascade.Result, table *classes.Table) *CascadeEvent {
	ev := &CascadeEvent{
		InferenceID: inferenceID,
		Image:       image,
		Source:      source,
		Width:       res.Width,
		Height:      res.Height,
		PersonCount: len(res.Subjects),
		Persons:     make([]PersonEvent, 0, len(res.Subjects)),
		ProcessedAt: time.Now(),
	}

	for _, s := range res.Subjects {
		pe := PersonEvent{
			Index:  s.Index,
			Box:    s.Person.Box,
			Score:  s.Person.Score,
			Failed: s.Failed(),
			PPE:    make([]ItemEvent, 0, len(s.PPE)),
		}
		for _, d := range s.PPE {
			name, err := detection.Label(d, table)
			if err != nil {
				// kein geratenes Label, die Detektion wird nicht veröffentlicht
				log.WithFields(log.Fields{"image": image, "person": s.Index}).Warnf("Skipping PPE item: %v", err)
				continue
			}
			pe.PPE = append(pe.PPE, ItemEvent{
				ClassID: d.ClassID,
				Label:   name,
				Box:     d.Box,
				Score:   d.Score,
			})
		}
		ev.PPECount += len(pe.PPE)
		ev.Persons = append(ev.Persons, pe)
	}

	return ev
}
