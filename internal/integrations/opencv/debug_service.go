package opencv

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ppe-cascade/internal/cascade"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"
	"ppe-cascade/internal/geometry"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

var (
	personColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	ppeColor    = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	labelBG     = color.RGBA{R: 0, G: 0, B: 0, A: 0}
)

// DebugImage ist ein Ergebnisbild mit eingezeichneten Erkennungen
type DebugImage struct {
	ID        string    // Inferenz-ID
	Timestamp time.Time // Zeitstempel des Bildes
	ImagePath string    // Originalpfad des Bildes
	ImageData []byte    // JPEG mit eingezeichneten Erkennungen
	Persons   int       // Anzahl erkannter Personen
	PPEItems  int       // Anzahl erkannter PPE
}

// DebugService speichert die letzten annotierten Ergebnisbilder im Speicher
type DebugService struct {
	images     map[string]*DebugImage // Map von Debug-Bildern, indiziert nach ID
	imagesList []*DebugImage          // Liste für zeitliche Sortierung
	maxImages  int                    // Maximale Anzahl zu speichernder Bilder
	mutex      sync.RWMutex
}

// NewDebugService erstellt einen neuen Debug-Service
func NewDebugService(maxImages int) *DebugService {
	if maxImages <= 0 {
		maxImages = 20 // Standardwert falls nicht angegeben
	}

	return &DebugService{
		images:     make(map[string]*DebugImage),
		imagesList: make([]*DebugImage, 0, maxImages),
		maxImages:  maxImages,
	}
}

// AddResult zeichnet Personen (blau) und PPE (grün) in den Root-Frame und
// speichert das Bild unter id
func (s *DebugService) AddResult(id string, root *frame.Frame, res *cascade.Result, table *classes.Table) error {
	data, err := RenderResult(root, res, table)
	if err != nil {
		return err
	}
	s.AddDebugImage(&DebugImage{
		ID:        id,
		Timestamp: time.Now(),
		ImagePath: root.Source,
		ImageData: data,
		Persons:   len(res.Subjects),
		PPEItems:  res.PPECount(),
	})
	return nil
}

// RenderResult zeichnet ein Kaskadenergebnis und gibt es als JPEG zurück.
// Detektionen mit unbekannter Klasse werden nicht gezeichnet.
func RenderResult(root *frame.Frame, res *cascade.Result, table *classes.Table) ([]byte, error) {
	img, err := gocv.ImageToMatRGB(root.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	for _, s := range res.Subjects {
		drawBox(&img, s.Person.Box, "Person", personColor)
	}
	for _, d := range res.Merged() {
		if d.ClassID == detection.PersonClassID {
			continue
		}
		label, err := detection.Label(d, table)
		if err != nil {
			log.Warnf("Debug-Bild: PPE-Detektion übersprungen: %v", err)
			continue
		}
		drawBox(&img, d.Box, label, ppeColor)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode debug image: %w", err)
	}
	defer buf.Close()

	// Puffer gehört gocv, daher kopieren
	return append([]byte(nil), buf.GetBytes()...), nil
}

// drawBox zeichnet eine Box mit hinterlegter Beschriftung
func drawBox(img *gocv.Mat, box geometry.Box, text string, c color.RGBA) {
	gocv.Rectangle(img, box.Rect(), c, 2)

	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.7, 2)
	bg := image.Rect(box.X1, box.Y1-size.Y-5, box.X1+size.X+10, box.Y1+5)
	gocv.Rectangle(img, bg, labelBG, -1)
	gocv.PutText(img, text, image.Pt(box.X1+5, box.Y1-5), gocv.FontHersheySimplex, 0.7, c, 2)
}

// AddDebugImage fügt ein Debug-Bild hinzu oder ersetzt eines mit gleicher ID
func (s *DebugService) AddDebugImage(debugImg *DebugImage) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.images[debugImg.ID]; exists {
		s.images[debugImg.ID] = debugImg
		for i, img := range s.imagesList {
			if img.ID == debugImg.ID {
				s.imagesList[i] = debugImg
				break
			}
		}
	} else {
		s.images[debugImg.ID] = debugImg
		s.imagesList = append(s.imagesList, debugImg)

		// Ältestes Bild entfernen
		if len(s.imagesList) > s.maxImages {
			oldest := s.imagesList[0]
			delete(s.images, oldest.ID)
			s.imagesList = s.imagesList[1:]
		}
	}

	log.Debugf("Debug-Bild hinzugefügt/aktualisiert: %s mit %d Personen", debugImg.ID, debugImg.Persons)
}

// GetLatestImages gibt die neuesten Debug-Bilder zurück, das neueste zuletzt
func (s *DebugService) GetLatestImages(count int) []*DebugImage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.imagesList) {
		count = len(s.imagesList)
	}

	result := make([]*DebugImage, count)
	copy(result, s.imagesList[len(s.imagesList)-count:])
	return result
}

// GetImage gibt ein bestimmtes Bild anhand seiner ID zurück
func (s *DebugService) GetImage(id string) *DebugImage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.images[id]
}

// RegisterRoutes registriert die API-Routen für den Debug-Service
func (s *DebugService) RegisterRoutes(router gin.IRouter) {
	router.GET("/debug/results", s.handleGetLatestImages)
	router.GET("/debug/results/:id", s.handleGetImage)
}

// handleGetLatestImages gibt die Metadaten der neuesten Bilder als JSON zurück
func (s *DebugService) handleGetLatestImages(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	type imageMetadata struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		ImagePath string    `json:"image_path"`
		Persons   int       `json:"persons"`
		PPEItems  int       `json:"ppe_items"`
		URL       string    `json:"url"`
	}

	images := s.GetLatestImages(count)
	metadata := make([]imageMetadata, len(images))
	for i, img := range images {
		metadata[i] = imageMetadata{
			ID:        img.ID,
			Timestamp: img.Timestamp,
			ImagePath: img.ImagePath,
			Persons:   img.Persons,
			PPEItems:  img.PPEItems,
			URL:       c.Request.URL.Path + "/" + img.ID,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(metadata),
		"images": metadata,
	})
}

// handleGetImage gibt ein bestimmtes Bild als JPEG zurück
func (s *DebugService) handleGetImage(c *gin.Context) {
	image := s.GetImage(c.Param("id"))
	if image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found", "id": c.Param("id")})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", image.ImageData)
}
