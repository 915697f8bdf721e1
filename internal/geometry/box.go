package geometry

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrInvalidBox wird bei degenerierten Boxen (x1>=x2 oder y1>=y2) zurückgegeben
	ErrInvalidBox = errors.New("invalid box")
	// ErrInvalidRegion wird zurückgegeben, wenn eine Referenzregion keine Fläche hat
	ErrInvalidRegion = errors.New("invalid region")
)

// Box ist eine achsenparallele Box in absoluten Pixelkoordinaten (Ecken-Format)
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// NewBox erstellt eine Box und lehnt degenerierte Boxen ab
func NewBox(x1, y1, x2, y2 int) (Box, error) {
	b := Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if !b.Valid() {
		return Box{}, fmt.Errorf("%w: (%d,%d,%d,%d)", ErrInvalidBox, x1, y1, x2, y2)
	}
	return b, nil
}

// FromRect konvertiert ein image.Rectangle (z.B. aus gocv) in eine Box
func FromRect(r image.Rectangle) (Box, error) {
	return NewBox(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

// Valid prüft x1<x2 und y1<y2
func (b Box) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Width gibt die Breite der Box zurück
func (b Box) Width() int {
	return b.X2 - b.X1
}

// Height gibt die Höhe der Box zurück
func (b Box) Height() int {
	return b.Y2 - b.Y1
}

// Rect gibt die Box als image.Rectangle zurück
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", b.X1, b.Y1, b.X2, b.Y2)
}

// Region beschreibt ein Koordinatensystem: den Ursprung eines Frames innerhalb
// des Root-Frames sowie seine Größe. Ein Root-Frame hat den Offset (0,0).
type Region struct {
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// RegionOf gibt die Region zurück, die eine Box im übergeordneten Frame abdeckt
func RegionOf(b Box) Region {
	return Region{OffsetX: b.X1, OffsetY: b.Y1, Width: b.Width(), Height: b.Height()}
}

// Bounds gibt die Region als Box im übergeordneten Frame zurück
func (r Region) Bounds() Box {
	return Box{X1: r.OffsetX, Y1: r.OffsetY, X2: r.OffsetX + r.Width, Y2: r.OffsetY + r.Height}
}

// Valid prüft, ob die Region eine positive Fläche hat
func (r Region) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// ToParent verschiebt eine lokale Box dieser Region in den übergeordneten Frame
func (r Region) ToParent(b Box) Box {
	return Translate(b, r.OffsetX, r.OffsetY)
}

// ToLocal verschiebt eine Box des übergeordneten Frames in die Koordinaten dieser Region
func (r Region) ToLocal(b Box) Box {
	return Translate(b, -r.OffsetX, -r.OffsetY)
}
