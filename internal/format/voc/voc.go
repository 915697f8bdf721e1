// Package voc liest PascalVOC-Annotationen (XML)
package voc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/geometry"

	log "github.com/sirupsen/logrus"
)

// ErrMissingAnnotationSource: zu einem Bild existiert keine Annotationsdatei
var ErrMissingAnnotationSource = errors.New("annotation source missing")

// Annotation ist eine dekodierte VOC-Datei, Objekte in Dokumentreihenfolge
type Annotation struct {
	Filename string
	Width    int
	Height   int
	Objects  []annotation.Record
	// Objekte ohne vollständige Box
	Dropped int
}

type document struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Size     struct {
		Width  string `xml:"width"`
		Height string `xml:"height"`
	} `xml:"size"`
	Objects []object `xml:"object"`
}

type object struct {
	Name   string  `xml:"name"`
	BndBox *bndbox `xml:"bndbox"`
}

type bndbox struct {
	XMin *string `xml:"xmin"`
	YMin *string `xml:"ymin"`
	XMax *string `xml:"xmax"`
	YMax *string `xml:"ymax"`
}

// Decode parst ein VOC-Dokument. Objekte mit fehlender oder ungültiger
// Koordinate werden mit Warnung verworfen und in Dropped gezählt.
func Decode(r io.Reader) (*Annotation, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode voc annotation: %w", err)
	}

	a := &Annotation{
		Filename: strings.TrimSpace(doc.Filename),
		Objects:  make([]annotation.Record, 0, len(doc.Objects)),
	}

	// size ist optional, nur die Vollbild-Konvertierung braucht es
	if doc.Size.Width != "" || doc.Size.Height != "" {
		w, err := parseCoord(&doc.Size.Width)
		if err != nil {
			return nil, fmt.Errorf("voc size/width: %w", err)
		}
		h, err := parseCoord(&doc.Size.Height)
		if err != nil {
			return nil, fmt.Errorf("voc size/height: %w", err)
		}
		a.Width, a.Height = w, h
	}

	for i, obj := range doc.Objects {
		name := strings.TrimSpace(obj.Name)
		box, err := obj.box()
		if err != nil {
			a.Dropped++
			log.WithFields(log.Fields{
				"file":   a.Filename,
				"object": i,
				"class":  name,
			}).Warnf("Skipping object: %v", err)
			continue
		}
		a.Objects = append(a.Objects, annotation.Record{ClassName: name, Box: box})
	}

	return a, nil
}

// DecodeFile öffnet und dekodiert eine VOC-Datei
func DecodeFile(path string) (*Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAnnotationSource, path)
		}
		return nil, err
	}
	defer f.Close()

	a, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// PPE gibt die Objekte mit Klasse aus der Tabelle zurück, dazu die Anzahl
// übersprungener Objekte
func (a *Annotation) PPE(table *classes.Table) ([]annotation.Record, int) {
	out := make([]annotation.Record, 0, len(a.Objects))
	for _, o := range a.Objects {
		if table.Contains(o.ClassName) {
			out = append(out, o)
		}
	}
	return out, len(a.Objects) - len(out)
}

// Persons gibt die Boxen aller Objekte mit Namen className zurück
func (a *Annotation) Persons(className string) []geometry.Box {
	var out []geometry.Box
	for _, o := range a.Objects {
		if o.ClassName == className && o.Box.Valid() {
			out = append(out, o.Box)
		}
	}
	return out
}

func (o object) box() (geometry.Box, error) {
	if o.BndBox == nil {
		return geometry.Box{}, errors.New("missing bndbox")
	}
	var (
		b   geometry.Box
		err error
	)
	if b.X1, err = parseCoord(o.BndBox.XMin); err != nil {
		return b, fmt.Errorf("xmin: %w", err)
	}
	if b.Y1, err = parseCoord(o.BndBox.YMin); err != nil {
		return b, fmt.Errorf("ymin: %w", err)
	}
	if b.X2, err = parseCoord(o.BndBox.XMax); err != nil {
		return b, fmt.Errorf("xmax: %w", err)
	}
	if b.Y2, err = parseCoord(o.BndBox.YMax); err != nil {
		return b, fmt.Errorf("ymax: %w", err)
	}
	return b, nil
}

// parseCoord akzeptiert "12" und "12.7" und schneidet Richtung Null ab
func parseCoord(s *string) (int, error) {
	if s == nil {
		return 0, errors.New("missing value")
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return 0, errors.New("empty value")
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return int(f), nil
}
