package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ppe-cascade/internal/annotation"
	"ppe-cascade/internal/format/voc"
	"ppe-cascade/internal/format/yolo"
	"ppe-cascade/internal/geometry"

	"github.com/gin-gonic/gin"
)

// regionConversion ist das Ergebnis für eine Personenregion oder das ganze Bild
type regionConversion struct {
	Person *geometry.Box `json:"person,omitempty"` // nil bei Vollbild-Konvertierung
	Text   string        `json:"text"`
	*annotation.Conversion
}

// Convert wandelt eine hochgeladene PascalVOC-Datei in normalisierte Labels um.
//
// Formularfelder: "annotation" (XML-Datei), optional "box" ("x1,y1,x2,y2"),
// "full_frame" und "overlap_policy". Ohne box werden die Personen-Objekte
// der Datei als Regionen verwendet.
func (h *APIHandler) Convert(c *gin.Context) {
	header, err := c.FormFile("annotation")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No annotation uploaded or invalid form data"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to read annotation: %v", err)})
		return
	}
	defer f.Close()

	ann, err := voc.Decode(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := geometry.ParseOverlapPolicy(c.DefaultPostForm("overlap_policy", h.cfg.Conversion.OverlapPolicy))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	converter, err := annotation.NewConverter(h.table, policy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var results []regionConversion

	switch {
	case formBool(c, "full_frame"):
		conv, err := converter.ConvertFullFrame(ann.Objects, ann.Width, ann.Height)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		results = append(results, regionConversion{Text: string(yolo.Encode(conv.Labels)), Conversion: conv})

	default:
		var persons []geometry.Box
		if raw := c.PostForm("box"); raw != "" {
			box, err := parseBox(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			persons = append(persons, box)
		} else {
			persons = ann.Persons(h.cfg.Classes.PersonClass)
		}

		for _, person := range persons {
			conv, err := converter.Convert(ann.Objects, person)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			results = append(results, regionConversion{Person: &person, Text: string(yolo.Encode(conv.Labels)), Conversion: conv})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"filename":    ann.Filename,
		"dropped":     ann.Dropped,
		"conversions": results,
	})
}

// parseBox liest "x1,y1,x2,y2"
func parseBox(s string) (geometry.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Box{}, fmt.Errorf("box must be x1,y1,x2,y2, got %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geometry.Box{}, fmt.Errorf("box coordinate %q: %w", p, err)
		}
		v[i] = n
	}
	return geometry.NewBox(v[0], v[1], v[2], v[3])
}
