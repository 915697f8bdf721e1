package annotation

import (
	"errors"
	"fmt"

	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
)

// Record ist ein annotiertes Objekt eines Bildes: Klassenname und absolute
// Box in Root-Koordinaten
type Record struct {
	ClassName string       `json:"class_name"`
	Box       geometry.Box `json:"box"`
}

// Label ist eine Zeile des normalisierten Label-Formats
type Label struct {
	ClassID int     `json:"class_id"`
	CX      float64 `json:"cx"`
	CY      float64 `json:"cy"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
}

// String formatiert das Label als "<classId> <cx> <cy> <w> <h>" mit sechs Nachkommastellen
func (l Label) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.ClassID, l.CX, l.CY, l.W, l.H)
}

// Conversion ist das Ergebnis für ein Bild und eine Region
type Conversion struct {
	Labels []Label `json:"labels"`

	SkippedUnknown      int `json:"skipped_unknown"`      // Klasse nicht in der Tabelle
	DiscardedOutside    int `json:"discarded_outside"`    // von der Overlap-Policy verworfen
	DiscardedDegenerate int `json:"discarded_degenerate"` // keine Fläche nach dem Begrenzen
}

// Empty gibt an, ob kein Label erzeugt wurde
func (c *Conversion) Empty() bool {
	return len(c.Labels) == 0
}

// Converter rechnet Bildannotationen in normalisierte Labels relativ zu einer Region um
type Converter struct {
	table  *classes.Table
	policy geometry.OverlapPolicy
}

// NewConverter erstellt einen Converter. Eine leere Policy bedeutet geometry.OverlapTouch.
func NewConverter(table *classes.Table, policy geometry.OverlapPolicy) (*Converter, error) {
	if table == nil {
		return nil, errors.New("annotation: class table is required")
	}
	if policy == "" {
		policy = geometry.OverlapTouch
	}
	return &Converter{table: table, policy: policy}, nil
}

func (c *Converter) ClassTable() *classes.Table {
	return c.table
}

// Convert erzeugt ein Label pro Objekt der Personenregion, in der Reihenfolge der Records
func (c *Converter) Convert(records []Record, person geometry.Box) (*Conversion, error) {
	if !person.Valid() {
		return nil, fmt.Errorf("annotation: person region: %w %v", geometry.ErrInvalidBox, person)
	}
	return c.convert(records, person, geometry.RegionOf(person))
}

// ConvertFullFrame rechnet relativ zum ganzen Bild um. Boxen werden wie bei
// Personen auf das Bild begrenzt.
func (c *Converter) ConvertFullFrame(records []Record, width, height int) (*Conversion, error) {
	region := geometry.Region{Width: width, Height: height}
	if !region.Valid() {
		return nil, fmt.Errorf("annotation: image size %dx%d: %w", width, height, geometry.ErrInvalidRegion)
	}
	return c.convert(records, region.Bounds(), region)
}

func (c *Converter) convert(records []Record, bounds geometry.Box, region geometry.Region) (*Conversion, error) {
	conv := &Conversion{Labels: make([]Label, 0, len(records))}

	for _, r := range records {
		id, ok := c.table.ID(r.ClassName)
		if !ok {
			conv.SkippedUnknown++
			continue
		}

		if !c.policy.Admits(r.Box, bounds) {
			conv.DiscardedOutside++
			continue
		}

		if _, ok := geometry.ClipToFrame(region.ToLocal(r.Box), region.Width, region.Height); !ok {
			conv.DiscardedDegenerate++
			log.WithField("class", r.ClassName).Warnf("Discarding box %v: no area inside region %v", r.Box, bounds)
			continue
		}

		n, err := geometry.ToNormalizedCenter(r.Box, region)
		if err != nil {
			return nil, err
		}

		conv.Labels = append(conv.Labels, Label{ClassID: id, CX: n.CX, CY: n.CY, W: n.W, H: n.H})
	}

	return conv, nil
}
