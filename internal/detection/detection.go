package detection

import (
	"context"
	"fmt"

	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
)

// PersonClassID markiert Personen-Detektionen im zusammengeführten Ergebnis.
// Der Wert liegt außerhalb jeder PPE-Klassentabelle.
const PersonClassID = -1

// Detection ist eine Detektion in Koordinaten des Frames, für den sie erzeugt wurde
type Detection struct {
	Box     geometry.Box `json:"box"`
	ClassID int          `json:"class_id"`
	Score   float64      `json:"score"`
}

// Detector kapselt ein externes Erkennungsmodell. Null Detektionen sind ein
// leeres Ergebnis, kein Fehler.
type Detector interface {
	Detect(ctx context.Context, f *frame.Frame) ([]Detection, error)
}

// Classifier wird von Detektoren implementiert, die ihre Klassentabelle kennen
type Classifier interface {
	ClassTable() *classes.Table
}

// Func erlaubt es, eine einfache Funktion als Detector zu verwenden
type Func func(ctx context.Context, f *frame.Frame) ([]Detection, error)

// Detect ruft f auf
func (fn Func) Detect(ctx context.Context, f *frame.Frame) ([]Detection, error) {
	return fn(ctx, f)
}

// Raw ist die unbearbeitete Ausgabe eines Modells
type Raw struct {
	X1, Y1, X2, Y2 float64
	ClassID        int
	Score          float64
}

// Report zählt die bei der Normalisierung verworfenen Detektionen
type Report struct {
	InvalidBoxes    int
	ClassOutOfRange int
}

// Normalize wandelt Rohdetektionen in Detections um. Koordinaten werden wie
// bei int() in Richtung Null abgeschnitten. Degenerierte Boxen und
// Klassen-IDs außerhalb der Tabelle werden mit Warnung verworfen; ist table
// nil, wird die Klassen-ID nicht geprüft.
func Normalize(raws []Raw, table *classes.Table) ([]Detection, Report) {
	var report Report
	out := make([]Detection, 0, len(raws))

	for i, r := range raws {
		box, err := geometry.NewBox(int(r.X1), int(r.Y1), int(r.X2), int(r.Y2))
		if err != nil {
			report.InvalidBoxes++
			log.WithField("index", i).Warnf("Dropping detection: %v", err)
			continue
		}

		if table != nil && !table.Valid(r.ClassID) {
			report.ClassOutOfRange++
			log.WithField("index", i).Warnf("Dropping detection: %v",
				fmt.Errorf("%w: %d", classes.ErrClassIDOutOfRange, r.ClassID))
			continue
		}

		out = append(out, Detection{Box: box, ClassID: r.ClassID, Score: r.Score})
	}

	return out, report
}

// Check prüft eine fertige Detektion gegen die Tabelle: die Box darf nicht
// degeneriert sein und die Klassen-ID muss in der Tabelle liegen.
func Check(d Detection, table *classes.Table) error {
	if !d.Box.Valid() {
		return fmt.Errorf("%w: %v", geometry.ErrInvalidBox, d.Box)
	}
	if !table.Valid(d.ClassID) {
		return fmt.Errorf("%w: %d", classes.ErrClassIDOutOfRange, d.ClassID)
	}
	return nil
}

// Label gibt den Klassennamen einer Detektion zurück. Personen erhalten "person".
func Label(d Detection, table *classes.Table) (string, error) {
	if d.ClassID == PersonClassID {
		return "person", nil
	}
	return table.Name(d.ClassID)
}
