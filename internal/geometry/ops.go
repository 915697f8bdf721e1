package geometry

import "fmt"

// Normalized ist eine Box im normalisierten Zentrums-Format (cx, cy, w, h),
// relativ zur Breite/Höhe eines Referenz-Frames
type Normalized struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

// Translate verschiebt alle vier Koordinaten um (dx, dy)
func Translate(b Box, dx, dy int) Box {
	return Box{
		X1: b.X1 + dx,
		Y1: b.Y1 + dy,
		X2: b.X2 + dx,
		Y2: b.Y2 + dy,
	}
}

// ClipToFrame klemmt die Box auf [0,w]x[0,h]. Ist das Ergebnis degeneriert,
// wird false zurückgegeben (Signal zum Verwerfen, kein Fehler).
func ClipToFrame(b Box, w, h int) (Box, bool) {
	c := Box{
		X1: max(b.X1, 0),
		Y1: max(b.Y1, 0),
		X2: min(b.X2, w),
		Y2: min(b.Y2, h),
	}
	if !c.Valid() {
		return Box{}, false
	}
	return c, true
}

// IntersectsOrContainedBy ist ein grober Überlappungstest: false nur, wenn die
// Box vollständig außerhalb der Region liegt. Eine Box, die die Region nur
// berührt, gilt als überlappend.
func IntersectsOrContainedBy(b, region Box) bool {
	if b.X2 < region.X1 || b.X1 > region.X2 || b.Y2 < region.Y1 || b.Y1 > region.Y2 {
		return false
	}
	return true
}

// ContainedBy prüft strikte Enthaltenheit der Box in der Region
func ContainedBy(b, region Box) bool {
	return b.X1 >= region.X1 && b.Y1 >= region.Y1 && b.X2 <= region.X2 && b.Y2 <= region.Y2
}

// CentroidIn prüft, ob der Mittelpunkt der Box innerhalb der Region liegt
func CentroidIn(b, region Box) bool {
	// doppelte Koordinaten vermeiden Rundung bei ungeraden Breiten
	cx2 := b.X1 + b.X2
	cy2 := b.Y1 + b.Y2
	return cx2 >= 2*region.X1 && cx2 <= 2*region.X2 && cy2 >= 2*region.Y1 && cy2 <= 2*region.Y2
}

// ToNormalizedCenter rechnet eine Box des übergeordneten Frames in das
// normalisierte Zentrums-Format relativ zur Region um. Die Box wird zuerst in
// lokale Koordinaten verschoben und auf [0,W]x[0,H] geklemmt.
func ToNormalizedCenter(b Box, region Region) (Normalized, error) {
	if !region.Valid() {
		return Normalized{}, fmt.Errorf("%w: %dx%d", ErrInvalidRegion, region.Width, region.Height)
	}

	local := region.ToLocal(b)
	x1 := max(local.X1, 0)
	y1 := max(local.Y1, 0)
	x2 := min(local.X2, region.Width)
	y2 := min(local.Y2, region.Height)

	w := float64(region.Width)
	h := float64(region.Height)

	return Normalized{
		CX: float64(x1+x2) / 2 / w,
		CY: float64(y1+y2) / 2 / h,
		W:  float64(x2-x1) / w,
		H:  float64(y2-y1) / h,
	}, nil
}
