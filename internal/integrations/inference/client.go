// Package inference spricht einen externen Inferenzserver per HTTP an.
// Der Server erhält den Frame als JPEG (Multipart-Feld "file") und antwortet
// mit {"detections":[{"box":[x1,y1,x2,y2],"class_id":n,"score":s}]}.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"ppe-cascade/config"
	"ppe-cascade/internal/classes"
	"ppe-cascade/internal/detection"
	"ppe-cascade/internal/frame"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// ErrBadResponse wird bei unerwarteten Antworten des Servers zurückgegeben
var ErrBadResponse = errors.New("inference server returned an invalid response")

type response struct {
	Detections []struct {
		Box     []float64 `json:"box"`
		ClassID int       `json:"class_id"`
		Score   float64   `json:"score"`
	} `json:"detections"`
}

// Client ist ein Detector, der einen Inferenzserver aufruft
type Client struct {
	url        string
	httpClient *http.Client
	table      *classes.Table
	threshold  float64
	classID    int // Personenklasse des Servers, nur ohne table
}

// NewPersonClient erstellt einen Client für Stufe 1. Nur Detektionen der
// konfigurierten Personenklasse werden übernommen.
func NewPersonClient(cfg config.DetectorConfig) *Client {
	return newClient(cfg, nil)
}

// NewPPEClient erstellt einen Client für Stufe 2
func NewPPEClient(cfg config.DetectorConfig, table *classes.Table) *Client {
	return newClient(cfg, table)
}

func newClient(cfg config.DetectorConfig, table *classes.Table) *Client {
	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		table:      table,
		threshold:  cfg.ConfidenceThreshold,
		classID:    cfg.ClassID,
	}
}

// ClassTable gibt die Klassentabelle zurück, nil für Personen-Clients
func (c *Client) ClassTable() *classes.Table {
	return c.table
}

// Detect sendet den Frame an den Server und wandelt die Antwort in Detections um
func (c *Client) Detect(ctx context.Context, f *frame.Frame) ([]detection.Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := imaging.Encode(part, f.Image, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	raws := make([]detection.Raw, 0, len(result.Detections))
	for i, d := range result.Detections {
		if len(d.Box) != 4 {
			return nil, fmt.Errorf("%w: detection %d has %d coordinates", ErrBadResponse, i, len(d.Box))
		}
		if d.Score < c.threshold {
			continue
		}
		raw := detection.Raw{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3], ClassID: d.ClassID, Score: d.Score}
		if c.table == nil {
			if d.ClassID != c.classID {
				continue
			}
			raw.ClassID = detection.PersonClassID
		}
		raws = append(raws, raw)
	}

	dets, report := detection.Normalize(raws, c.table)
	log.WithFields(log.Fields{
		"source":     f.Source,
		"detections": len(dets),
		"dropped":    report.InvalidBoxes + report.ClassOutOfRange,
		"took":       time.Since(start),
	}).Debug("Inference request done")

	return dets, nil
}

// CheckHealth prüft, ob der Server unter <url>/health erreichbar ist
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server unhealthy: %d", resp.StatusCode)
	}
	return nil
}
