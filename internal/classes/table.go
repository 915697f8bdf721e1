package classes

import (
	"bufio"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrClassIDOutOfRange: die Klassen-ID hat keinen Eintrag in der Tabelle
	ErrClassIDOutOfRange = errors.New("class id out of range")
	// ErrTableMismatch: zwei Komponenten verwenden unterschiedliche Tabellen
	ErrTableMismatch = errors.New("class table mismatch")
)

// DefaultPPE ist die Klassenliste, mit der die mitgelieferten Modelle trainiert wurden
var DefaultPPE = []string{
	"hard-hat", "gloves", "mask", "glasses", "boots",
	"vest", "ppe-suit", "ear-protector", "safety-harness",
}

// Table ist eine geordnete, unveränderliche Liste von Klassennamen. Der Index ist die Klassen-ID.
type Table struct {
	names []string
	index map[string]int
}

// New baut eine Tabelle. Leere oder doppelte Namen werden abgelehnt.
func New(names ...string) (*Table, error) {
	t := &Table{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("class table: empty name at index %d", i)
		}
		if prev, ok := t.index[name]; ok {
			return nil, fmt.Errorf("class table: duplicate name %q at index %d and %d", name, prev, i)
		}
		t.names[i] = name
		t.index[name] = i
	}
	return t, nil
}

// MustNew wie New, aber mit panic bei Fehlern
func MustNew(names ...string) *Table {
	t, err := New(names...)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse liest einen Klassennamen pro Zeile. Leerzeilen am Ende werden ignoriert,
// eine Leerzeile vor weiteren Namen ist ein Fehler, da sie alle folgenden IDs verschiebt.
func Parse(r io.Reader) (*Table, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("class table: read: %w", err)
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, errors.New("class table: no classes defined")
	}
	return New(lines...)
}

// Load liest eine Klassendatei (z.B. classes.txt)
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("class table: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// LoadOrDefault lädt path oder liefert DefaultPPE, wenn path leer ist
func LoadOrDefault(path string) (*Table, error) {
	if path == "" {
		return New(DefaultPPE...)
	}
	return Load(path)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Names gibt eine Kopie der Namen in ID-Reihenfolge zurück
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Table) ID(name string) (int, bool) {
	id, ok := t.index[name]
	return id, ok
}

func (t *Table) Contains(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Name gibt den Namen zu id zurück oder ErrClassIDOutOfRange
func (t *Table) Name(id int) (string, error) {
	if !t.Valid(id) {
		return "", fmt.Errorf("%w: %d (table has %d classes)", ErrClassIDOutOfRange, id, len(t.names))
	}
	return t.names[id], nil
}

// Valid prüft, ob id ein gültiger Index ist
func (t *Table) Valid(id int) bool {
	return t != nil && id >= 0 && id < len(t.names)
}

// Equal prüft, ob beide Tabellen dieselben Namen in derselben Reihenfolge enthalten
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.names) != len(other.names) {
		return false
	}
	for i := range t.names {
		if t.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

// Fingerprint ist ein stabiler Hash der Tabelle, gespeichert mit jedem Lauf
func (t *Table) Fingerprint() string {
	h := sha256.New()
	for _, name := range t.names {
		io.WriteString(h, name)
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Check liefert ErrTableMismatch, wenn other von t abweicht
func (t *Table) Check(other *Table) error {
	if !t.Equal(other) {
		return fmt.Errorf("%w: %d vs %d classes", ErrTableMismatch, t.Len(), other.Len())
	}
	return nil
}
