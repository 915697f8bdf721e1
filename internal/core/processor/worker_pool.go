package processor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"ppe-cascade/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed wird zurückgegeben, wenn der Pool bereits heruntergefahren wurde
var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool verwaltet einen Pool von Worker-Goroutinen für die Bildverarbeitung
type WorkerPool struct {
	processor       *ImageProcessor
	jobs            chan *ProcessJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

// ProcessJob repräsentiert einen Bildverarbeitungsjob
type ProcessJob struct {
	ctx       context.Context
	imagePath string
	source    string
	options   ProcessingOptions
	resultCh  chan *ProcessResult // Individueller Ergebniskanal pro Job
}

// NewWorkerPool erstellt einen neuen Worker-Pool. workerCount <= 0 wählt 75% der CPUs, mindestens 2.
func NewWorkerPool(processor *ImageProcessor, workerCount, queueSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = max(2, (runtime.NumCPU()*3)/4)
	}
	if queueSize <= 0 {
		queueSize = workerCount * 2
	}

	log.Infof("Initializing image processing worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		processor:   processor,
		jobs:        make(chan *ProcessJob, queueSize),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}

	pool.startWorkers()

	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, job *ProcessJob) {
	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d processing image from %s (active jobs: %d)", workerID, job.source, jobCount)
	startTime := time.Now()

	var result *ProcessResult
	if err := job.ctx.Err(); err != nil {
		// Auftraggeber wartet nicht mehr
		result = &ProcessResult{Err: err}
	} else {
		res, err := p.processor.ProcessImage(job.ctx, job.imagePath, job.source, job.options)
		if res == nil {
			res = &ProcessResult{}
		}
		res.Err = err
		result = res
	}

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.activeJobsMutex.Unlock()

	// resultCh ist gepuffert, der Versand blockiert nie
	job.resultCh <- result

	log.Debugf("Worker %d completed image processing in %v", workerID, time.Since(startTime))
}

// ProcessImage verarbeitet ein Bild über den Worker-Pool und wartet auf das Ergebnis
func (p *WorkerPool) ProcessImage(ctx context.Context, imagePath, source string, options ProcessingOptions) (*ProcessResult, error) {
	resultCh := make(chan *ProcessResult, 1)

	job := &ProcessJob{
		ctx:       ctx,
		imagePath: imagePath,
		source:    source,
		options:   options,
		resultCh:  resultCh,
	}

	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	// Job an den Pool senden
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}

	// Auf Ergebnis warten
	select {
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}
}

// HandleMessage nimmt Erkennungsaufträge per MQTT entgegen
func (p *WorkerPool) HandleMessage(topic string, payload []byte) {
	req, err := mqtt.ParseDetectRequest(payload)
	if err != nil {
		log.WithField("topic", topic).Warn(err)
		return
	}

	res, err := p.ProcessImage(context.Background(), req.Path, req.Source, ProcessingOptions{})
	if err != nil {
		log.WithField("image", req.Path).Errorf("Detect request failed: %v", err)
		return
	}
	log.WithField("image", req.Path).Debugf("Detect request done (inference %d)", res.Inference.ID)
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity gibt die Kapazität der Job-Queue zurück
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// QueueLength gibt die Anzahl wartender Jobs zurück
func (p *WorkerPool) QueueLength() int {
	return len(p.jobs)
}

// Shutdown fährt den Worker-Pool herunter und wartet auf laufende Jobs
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
