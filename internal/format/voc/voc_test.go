package voc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/geometry"
)

const sample = `<annotation>
	<folder>images</folder>
	<filename>site_01.jpg</filename>
	<size><width>640</width><height>480</height><depth>3</depth></size>
	<object>
		<name>person</name>
		<bndbox><xmin>100</xmin><ymin>50</ymin><xmax>300</xmax><ymax>450</ymax></bndbox>
	</object>
	<object>
		<name>hard-hat</name>
		<bndbox><xmin>150</xmin><ymin>60</ymin><xmax>220.0</xmax><ymax>110.7</ymax></bndbox>
	</object>
	<object>
		<name>vest</name>
		<bndbox><xmin>120</xmin><ymin>200</ymin><xmax>280</xmax></bndbox>
	</object>
	<object>
		<name>gloves</name>
	</object>
</annotation>`

func TestDecode(t *testing.T) {
	a, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if a.Filename != "site_01.jpg" || a.Width != 640 || a.Height != 480 {
		t.Fatalf("unexpected header %+v", a)
	}
	if a.Dropped != 2 {
		t.Fatalf("expected 2 dropped objects, got %d", a.Dropped)
	}
	if len(a.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %+v", a.Objects)
	}
	if want := (geometry.Box{X1: 150, Y1: 60, X2: 220, Y2: 110}); a.Objects[1].Box != want {
		t.Fatalf("decimal coordinates must be truncated: expected %v, got %v", want, a.Objects[1].Box)
	}
}

func TestAnnotationPPEAndPersons(t *testing.T) {
	a, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}

	ppe, skipped := a.PPE(classes.MustNew(classes.DefaultPPE...))
	if len(ppe) != 1 || ppe[0].ClassName != "hard-hat" || skipped != 1 {
		t.Fatalf("unexpected PPE selection %+v (skipped %d)", ppe, skipped)
	}

	persons := a.Persons("person")
	if len(persons) != 1 || persons[0] != (geometry.Box{X1: 100, Y1: 50, X2: 300, Y2: 450}) {
		t.Fatalf("unexpected persons %v", persons)
	}
}

func TestDecodeRejectsMalformedXML(t *testing.T) {
	if _, err := Decode(strings.NewReader("<annotation><object>")); err == nil {
		t.Fatal("expected error for truncated document")
	}
	if _, err := Decode(strings.NewReader("<annotation><size><width>wide</width><height>1</height></size></annotation>")); err == nil {
		t.Fatal("expected error for invalid size")
	}
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "nope.xml"))
	if !errors.Is(err, ErrMissingAnnotationSource) {
		t.Fatalf("expected ErrMissingAnnotationSource, got %v", err)
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site_01.xml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := DecodeFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(a.Objects))
	}
}
