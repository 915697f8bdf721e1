package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchReport fasst die Verarbeitung eines Verzeichnisses zusammen
type BatchReport struct {
	RunID      string            `json:"run_id"`
	Images     int               `json:"images"`
	Processed  int               `json:"processed"`
	Duplicates int               `json:"duplicates"`
	NoPerson   int               `json:"no_person"`
	Persons    int               `json:"persons"`
	PPEItems   int               `json:"ppe_items"`
	Failed     map[string]string `json:"failed,omitempty"` // Bild -> Fehler
	Duration   time.Duration     `json:"duration"`
}

// ProcessDirectory schickt alle Bilder eines Verzeichnisses durch den Pool.
// Fehler einzelner Bilder werden im Bericht vermerkt und brechen den Lauf nicht ab.
func (p *WorkerPool) ProcessDirectory(ctx context.Context, dir, source string, extensions []string, options ProcessingOptions) (*BatchReport, error) {
	images, err := listImages(dir, extensions)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{
		RunID:  uuid.NewString(),
		Images: len(images),
		Failed: map[string]string{},
	}
	start := time.Now()

	log.WithFields(log.Fields{
		"run":    report.RunID,
		"dir":    dir,
		"images": len(images),
	}).Info("Starting batch inference")

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.workerCount + p.GetQueueCapacity())

	for _, name := range images {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(dir, name)
		g.Go(func() error {
			res, err := p.ProcessImage(ctx, path, source, options)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[name] = err.Error()
				log.WithField("image", name).Warnf("Batch item failed: %v", err)
				return nil
			}
			report.Processed++
			if res.Duplicate {
				report.Duplicates++
			}
			report.Persons += res.Inference.PersonCount
			report.PPEItems += res.Inference.PPECount
			if res.Inference.PersonCount == 0 {
				report.NoPerson++
			}
			return nil
		})
	}
	g.Wait()

	report.Duration = time.Since(start)

	log.WithFields(log.Fields{
		"run":       report.RunID,
		"processed": report.Processed,
		"failed":    len(report.Failed),
		"persons":   report.Persons,
		"ppe":       report.PPEItems,
	}).Info("Batch inference finished")

	return report, ctx.Err()
}

func listImages(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}
	if len(extensions) == 0 {
		extensions = []string{".jpg", ".png"}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range extensions {
			if ext == strings.ToLower(want) {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
