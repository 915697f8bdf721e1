package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"ppe-cascade/config"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	// HOG liefert keine Konfidenz
	hogConfidence = 0.8
	// größere Bilder werden für HOG verkleinert
	hogMaxDimension = 800
)

// HOGDetector erkennt Personen mit dem HOG-Personendetektor von OpenCV.
// Er braucht kein Modell und dient als CPU-Fallback für Stufe 1.
type HOGDetector struct {
	hog         gocv.HOGDescriptor
	mutex       sync.Mutex
	scaleFactor float64
}

// NewHOGDetector erstellt einen HOG-Personendetektor
func NewHOGDetector(cfg config.DetectorConfig) *HOGDetector {
	hog := gocv.NewHOGDescriptor()
	hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector())

	scale := cfg.ScaleFactor
	if scale <= 1 {
		scale = 1.05
	}

	log.Info("HOG-Personen-Detektor erfolgreich initialisiert")
	return &HOGDetector{hog: hog, scaleFactor: scale}
}

// Detect erkennt Personen im Frame
func (d *HOGDetector) Detect(ctx context.Context, f *frame.Frame) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	width, height := img.Cols(), img.Rows()
	if width == 0 || height == 0 {
		return nil, nil
	}

	// Bild für Performance skalieren wenn nötig
	ratio := 1.0
	processImg := img
	if width > hogMaxDimension || height > hogMaxDimension {
		ratio = float64(hogMaxDimension) / float64(max(width, height))
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(img, &resized, image.Pt(int(float64(width)*ratio), int(float64(height)*ratio)), 0, 0, gocv.InterpolationLinear)
		processImg = resized
	}

	d.mutex.Lock()
	rects := d.hog.DetectMultiScaleWithParams(processImg, 0, image.Pt(8, 8), image.Pt(0, 0), d.scaleFactor, 2, false)
	d.mutex.Unlock()

	raws := make([]detection.Raw, 0, len(rects))
	for _, r := range rects {
		raws = append(raws, detection.Raw{
			X1:      float64(r.Min.X) / ratio,
			Y1:      float64(r.Min.Y) / ratio,
			X2:      float64(r.Max.X) / ratio,
			Y2:      float64(r.Max.Y) / ratio,
			ClassID: detection.PersonClassID,
			Score:   hogConfidence,
		})
	}
	clipRaw(raws, width, height)

	dets, _ := detection.Normalize(raws, nil)
	return dets, nil
}

// Close gibt den Deskriptor frei
func (d *HOGDetector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.hog.Close()
}
