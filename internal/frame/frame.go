package frame

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"ppe-cascade/internal/geometry"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webp-Decoder registrieren
)

// ErrFrameExtraction wird zurückgegeben, wenn ein Bild nicht geladen oder ein
// Ausschnitt nicht aus dem Root-Frame extrahiert werden kann
var ErrFrameExtraction = errors.New("frame extraction failed")

// Frame ist ein Bildpuffer mit seiner Lage im Root-Frame. Ein Root-Frame hat
// den Offset (0,0) und die volle Bildgröße, ein Crop-Frame merkt sich seinen
// Offset innerhalb des Root-Frames.
type Frame struct {
	Image  image.Image
	Region geometry.Region
	Source string // Dateipfad oder Upload-Name, nur für Logging
	root   bool
}

// NewRoot erstellt einen Root-Frame aus einem Bild
func NewRoot(img image.Image, source string) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:  img,
		Region: geometry.Region{Width: b.Dx(), Height: b.Dy()},
		Source: source,
		root:   true,
	}
}

// Load lädt ein Bild von der Festplatte als Root-Frame. Die EXIF-Orientierung
// wird berücksichtigt, damit Annotationen und Pixel übereinstimmen.
func Load(path string) (*Frame, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFrameExtraction, filepath.Base(path), err)
	}
	return NewRoot(img, path), nil
}

// Width gibt die Breite des Frames zurück
func (f *Frame) Width() int {
	return f.Region.Width
}

// Height gibt die Höhe des Frames zurück
func (f *Frame) Height() int {
	return f.Region.Height
}

// IsRoot gibt an, ob es sich um den Originalframe handelt
func (f *Frame) IsRoot() bool {
	return f.root
}

// Crop extrahiert den Ausschnitt exakt an der Box (in Koordinaten dieses
// Frames), ohne Padding oder Seitenverhältnis-Anpassung. Der Ausschnitt
// beginnt bei (0,0); der Offset wird in Region gespeichert.
func (f *Frame) Crop(box geometry.Box) (*Frame, error) {
	if !box.Valid() {
		return nil, fmt.Errorf("%w: %w %v", ErrFrameExtraction, geometry.ErrInvalidBox, box)
	}
	if box.X1 < 0 || box.Y1 < 0 || box.X2 > f.Width() || box.Y2 > f.Height() {
		return nil, fmt.Errorf("%w: box %v outside frame %dx%d", ErrFrameExtraction, box, f.Width(), f.Height())
	}

	rect := box.Rect().Add(f.Image.Bounds().Min)
	cropped := imaging.Crop(f.Image, rect)

	return &Frame{
		Image: cropped,
		Region: geometry.Region{
			OffsetX: f.Region.OffsetX + box.X1,
			OffsetY: f.Region.OffsetY + box.Y1,
			Width:   box.Width(),
			Height:  box.Height(),
		},
		Source: f.Source,
	}, nil
}

// Save schreibt den Frame als Bild; das Format ergibt sich aus der Dateiendung
func (f *Frame) Save(path string) error {
	if err := imaging.Save(f.Image, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to save frame to %s: %w", path, err)
	}
	return nil
}
