package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// YOLODetector führt ein YOLOv8-ONNX-Modell mit dem OpenCV-DNN-Modul aus.
// Als Personendetektor (table == nil) liefert er nur die konfigurierte
// Personenklasse, als PPE-Detektor alle Klassen der Tabelle.
type YOLODetector struct {
	net                 gocv.Net
	mutex               sync.Mutex // gocv.Net ist nicht threadsicher
	modelPath           string
	inputSize           int
	confidenceThreshold float64
	nmsThreshold        float64
	personClassID       int
	table               *classes.Table
}

// NewPersonYOLO lädt ein Personenmodell für Stufe 1
func NewPersonYOLO(cfg config.DetectorConfig) (*YOLODetector, error) {
	return newYOLO(cfg, nil)
}

// NewPPEYOLO lädt ein PPE-Modell für Stufe 2. Die Klassenanzahl des Modells
// wird beim ersten Aufruf gegen table geprüft.
func NewPPEYOLO(cfg config.DetectorConfig, table *classes.Table) (*YOLODetector, error) {
	if table == nil {
		return nil, errors.New("PPE detector requires a class table")
	}
	return newYOLO(cfg, table)
}

func newYOLO(cfg config.DetectorConfig, table *classes.Table) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("konnte DNN-Modell nicht laden: %s", cfg.ModelPath)
	}

	backend, target := netBackend(cfg.UseGPU)
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("set DNN backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, fmt.Errorf("set DNN target: %w", err)
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = 640
	}

	log.WithFields(log.Fields{
		"model":   cfg.ModelPath,
		"input":   inputSize,
		"backend": backend,
		"target":  target,
	}).Info("YOLO-Modell geladen")

	return &YOLODetector{
		net:                 net,
		modelPath:           cfg.ModelPath,
		inputSize:           inputSize,
		confidenceThreshold: cfg.ConfidenceThreshold,
		nmsThreshold:        cfg.NMSThreshold,
		personClassID:       cfg.ClassID,
		table:               table,
	}, nil
}

// ClassTable gibt die Klassentabelle des PPE-Modells zurück, nil für Personenmodelle
func (d *YOLODetector) ClassTable() *classes.Table {
	return d.table
}

// Detect führt das Modell auf dem Frame aus. Boxen liegen in Frame-Koordinaten.
func (d *YOLODetector) Detect(ctx context.Context, f *frame.Frame) ([]detection.Detection, error) {
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

	// Auf ein Quadrat auffüllen, damit das Seitenverhältnis erhalten bleibt
	maxDim := max(width, height)
	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, width, height))
	img.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(d.inputSize, d.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	raws, err := d.forward(blob, float64(maxDim)/float64(d.inputSize))
	if err != nil {
		return nil, err
	}

	clipRaw(raws, width, height)
	if d.table == nil {
		for i := range raws {
			raws[i].ClassID = detection.PersonClassID
		}
	}

	dets, report := detection.Normalize(raws, d.table)
	if report.InvalidBoxes > 0 || report.ClassOutOfRange > 0 {
		log.WithField("source", f.Source).Debugf("YOLO dropped %d invalid boxes, %d unknown classes",
			report.InvalidBoxes, report.ClassOutOfRange)
	}
	return dets, nil
}

// forward hält den Mutex, bis die Ausgabe gelesen ist; sie teilt sich den
// Speicher mit dem Netz
func (d *YOLODetector) forward(blob gocv.Mat, scale float64) ([]detection.Raw, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	sizes := out.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output shape %v", sizes)
	}
	channels, anchors := sizes[1], sizes[2]

	only := allClasses
	if d.table == nil {
		only = d.personClassID
	} else if channels-4 != d.table.Len() {
		return nil, fmt.Errorf("%w: model %s has %d classes, table has %d",
			classes.ErrTableMismatch, d.modelPath, channels-4, d.table.Len())
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read YOLO output: %w", err)
	}

	raws := decodeOutput(data, channels, anchors, scale, d.confidenceThreshold, only)
	return suppress(raws, d.confidenceThreshold, d.nmsThreshold), nil
}

// Close gibt das Netz frei
func (d *YOLODetector) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.net.Close()
}
