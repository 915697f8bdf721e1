// Package yolo liest und schreibt normalisierte Label-Dateien
// ("<classId> <cx> <cy> <w> <h>" pro Zeile)
package yolo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/classes"

	log "github.com/sirupsen/logrus"
)

// Encode verbindet die Labels mit je einem Zeilenumbruch, ohne Umbruch am Ende
func Encode(labels []annotation.Label) []byte {
	lines := make([]string, len(labels))
	for i, l := range labels {
		lines[i] = l.String()
	}
	return []byte(strings.Join(lines, "\n"))
}

func WriteFile(path string, labels []annotation.Label) error {
	if err := os.WriteFile(path, Encode(labels), 0o644); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	return nil
}

// Decode parst Label-Zeilen. Zeilen mit Klassen-ID außerhalb der Tabelle werden
// mit Warnung verworfen, fehlerhafte Zeilen sind ein Fehler. Ohne Tabelle
// entfällt die Klassenprüfung.
func Decode(r io.Reader, table *classes.Table) ([]annotation.Label, error) {
	var labels []annotation.Label

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		l, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if table != nil && !table.Valid(l.ClassID) {
			log.WithField("line", lineNo).Warnf("Dropping label: %v: %d", classes.ErrClassIDOutOfRange, l.ClassID)
			continue
		}
		labels = append(labels, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return labels, nil
}

// ReadFile dekodiert die Label-Datei unter path
func ReadFile(path string, table *classes.Table) ([]annotation.Label, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, table)
}

func parseLine(line string) (annotation.Label, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return annotation.Label{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return annotation.Label{}, fmt.Errorf("class id: %w", err)
	}

	var v [4]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
			return annotation.Label{}, fmt.Errorf("field %d: %w", i+2, err)
		}
	}

	return annotation.Label{ClassID: id, CX: v[0], CY: v[1], W: v[2], H: v[3]}, nil
}
