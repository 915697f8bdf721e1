package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"ppe-cascade/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Files removes files that belong to an inference, but only below the
// directories the server manages (uploads, crops). Images processed in place
// are never touched.
type Files struct {
	dirs []string
}

// NewFiles creates a Files for the given directories. Empty entries are ignored.
func NewFiles(managedDirs ...string) *Files {
	dirs := make([]string, 0, len(managedDirs))
	for _, d := range managedDirs {
		if d == "" {
			continue
		}
		if abs, err := filepath.Abs(d); err == nil {
			dirs = append(dirs, abs)
		}
	}
	return &Files{dirs: dirs}
}

// Remove deletes the uploaded image and the crops of inf and returns the
// number of removed files.
func (f *Files) Remove(inf *models.Inference) int {
	if f == nil || inf == nil {
		return 0
	}

	paths := []string{inf.FilePath}
	for _, p := range inf.Persons {
		paths = append(paths, p.CropPath)
	}

	removed := 0
	for _, path := range paths {
		if path == "" || !f.managed(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warnf("Cleanup: Failed to delete file '%s' of inference %d: %v", path, inf.ID, err)
			}
			continue
		}
		log.Debugf("Cleanup: Deleted file '%s' of inference %d", path, inf.ID)
		removed++
	}
	return removed
}

// Managed reports whether path lies below one of the managed directories.
func (f *Files) Managed(path string) bool {
	return f.managed(path)
}

func (f *Files) managed(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range f.dirs {
		if strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
