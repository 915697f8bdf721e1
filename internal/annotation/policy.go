package annotation

import "fmt"

// EmptyLabelPolicy legt fest, was mit einer Region ohne Labels passiert
type EmptyLabelPolicy string

const (
	// EmptyOmit schreibt keine Datei und loggt eine Warnung
	EmptyOmit EmptyLabelPolicy = "omit"
	// EmptyWrite schreibt eine leere Datei (Negativbeispiel fürs Training)
	EmptyWrite EmptyLabelPolicy = "write"
)

// ParseEmptyLabelPolicy liest einen Konfigurationswert; leer bedeutet EmptyOmit
func ParseEmptyLabelPolicy(s string) (EmptyLabelPolicy, error) {
	switch EmptyLabelPolicy(s) {
	case "", EmptyOmit:
		return EmptyOmit, nil
	case EmptyWrite:
		return EmptyWrite, nil
	}
	return "", fmt.Errorf("unknown empty label policy %q", s)
}
