package processor

import "sync"

// hashLocks serialisiert die Verarbeitung gleicher Bildinhalte, damit
// Deduplizierung und Speichern nicht von parallelen Workern überholt werden
type hashLocks struct {
	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int
}

func newHashLocks() *hashLocks {
	return &hashLocks{locks: make(map[string]*hashLock)}
}

// lock sperrt hash und gibt die Freigabefunktion zurück
func (h *hashLocks) lock(hash string) func() {
	h.mu.Lock()
	l, ok := h.locks[hash]
	if !ok {
		l = &hashLock{}
		h.locks[hash] = l
	}
	l.refs++
	h.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, hash)
		}
		h.mu.Unlock()
	}
}

// size gibt die Anzahl gerade belegter Einträge zurück
func (h *hashLocks) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.locks)
}
