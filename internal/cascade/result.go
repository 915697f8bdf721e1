package cascade

import "ppe-cascade/internal/detection"

// Subject ist eine erkannte Person mit den ihr zugeordneten PPE-Detektionen
// (in Root-Koordinaten)
type Subject struct {
	Index  int                   `json:"index"`
	Person detection.Detection   `json:"person"`
	PPE    []detection.Detection `json:"ppe"`
	// Dropped zählt Stufe-2-Detektionen mit ungültiger Box oder Klassen-ID
	Dropped int   `json:"dropped,omitempty"`
	Err     error `json:"-"`
}

// Failed gibt an, ob die PPE-Erkennung für diese Person fehlgeschlagen ist
func (s Subject) Failed() bool {
	return s.Err != nil
}

// Result ist das Ergebnis eines Kaskadenlaufs, in der Reihenfolge der Personenerkennung
type Result struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Subjects []Subject `json:"subjects"`
}

// NoSubjects gibt an, ob keine Person erkannt wurde
func (r *Result) NoSubjects() bool {
	return len(r.Subjects) == 0
}

// Merged gibt alle Personen (Klasse detection.PersonClassID) gefolgt von den
// PPE-Detektionen jeder Person zurück
func (r *Result) Merged() []detection.Detection {
	out := make([]detection.Detection, 0, len(r.Subjects)+r.PPECount())
	for _, s := range r.Subjects {
		out = append(out, s.Person)
	}
	for _, s := range r.Subjects {
		out = append(out, s.PPE...)
	}
	return out
}

// PPECount zählt alle PPE-Detektionen
func (r *Result) PPECount() int {
	n := 0
	for _, s := range r.Subjects {
		n += len(s.PPE)
	}
	return n
}

// EmptySubjects gibt die Indizes der Personen ohne PPE-Detektion zurück
func (r *Result) EmptySubjects() []int {
	var idx []int
	for _, s := range r.Subjects {
		if len(s.PPE) == 0 {
			idx = append(idx, s.Index)
		}
	}
	return idx
}

// Failures gibt die Personen zurück, deren PPE-Erkennung fehlgeschlagen ist
func (r *Result) Failures() []Subject {
	var failed []Subject
	for _, s := range r.Subjects {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// DroppedCount zählt alle verworfenen Stufe-2-Detektionen
func (r *Result) DroppedCount() int {
	n := 0
	for _, s := range r.Subjects {
		n += s.Dropped
	}
	return n
}
