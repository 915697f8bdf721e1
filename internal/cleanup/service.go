package cleanup

import (
	"sync"
	"time"

	"ppe-cascade/internal/core/models"
	"ppe-cascade/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service handles the automatic cleanup of old inference records and the
// files the server created for them.
type Service struct {
	repo          repository.Repository
	retentionDays int
	files         *Files
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// CycleReport summarises one cleanup cycle.
type CycleReport struct {
	Deleted      int
	Failed       int
	FilesRemoved int
}

// NewService creates a new cleanup Service. It returns nil if cleanup is disabled.
// Uploads and crops live in managedDirs; images processed in place (batch
// runs) are never deleted.
func NewService(repo repository.Repository, retentionDays int, checkInterval time.Duration, managedDirs ...string) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if repo == nil {
		log.Error("Cannot initialize CleanupService: repository is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}

	files := NewFiles(managedDirs...)

	log.Infof("Initializing CleanupService: RetentionDays=%d, ManagedDirs=%v, CheckInterval=%s", retentionDays, files.dirs, checkInterval)
	return &Service{
		repo:          repo,
		retentionDays: retentionDays,
		files:         files,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup starts a goroutine that periodically runs the cleanup cycle.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine...")

	ticker := time.NewTicker(s.checkInterval)

	go func() {
		defer ticker.Stop()

		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()

		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background cleanup routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunCleanupCycle deletes inferences older than the retention period.
func (s *Service) RunCleanupCycle() CycleReport {
	var report CycleReport
	if s == nil {
		return report
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: Deleting inferences older than %s", cutoff.Format(time.RFC3339))

	old, err := s.repo.GetInferencesOlderThan(cutoff)
	if err != nil {
		log.Errorf("Cleanup: Error finding old inferences: %v", err)
		return report
	}
	if len(old) == 0 {
		log.Info("Cleanup: No old inferences found to delete.")
		return report
	}

	for _, inf := range old {
		deleted, err := s.repo.DeleteInference(inf.ID)
		if err != nil {
			log.Errorf("Cleanup: Failed to delete inference ID %d (Path: %s): %v", inf.ID, inf.FilePath, err)
			report.Failed++
			continue
		}
		if deleted == nil {
			continue
		}
		report.Deleted++
		report.FilesRemoved += s.RemoveFiles(deleted)
	}

	log.Infof("Cleanup cycle finished. Deleted: %d, Failed: %d, Files removed: %d",
		report.Deleted, report.Failed, report.FilesRemoved)
	return report
}

// RemoveFiles removes the files of a deleted inference, see Files.Remove.
func (s *Service) RemoveFiles(inf *models.Inference) int {
	if s == nil {
		return 0
	}
	return s.files.Remove(inf)
}
