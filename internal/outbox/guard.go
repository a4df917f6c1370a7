package outbox

import (
	"sync"
	"time"
)

// DefaultLockWindow is how long a bib stays locked after an admission
// attempt. Long enough to swallow a burst of camera frames or a double tap,
// short enough that a genuine re-scan after a failed enqueue is not blocked.
const DefaultLockWindow = 5 * time.Second

// admissionGuard rejects rapid repeated enqueue attempts for the same bib
// before any queue I/O happens. The lock map is in-memory only - it protects
// against input bursts within a process, while the queue's persisted-set
// check protects against duplicates across sessions.
//
// The timestamp is recorded at admission time, before the queue is consulted,
// so two near-simultaneous attempts cannot both pass the window check.
type admissionGuard struct {
	mu     sync.Mutex
	window time.Duration
	last   map[int]time.Time
}

func newAdmissionGuard(window time.Duration) *admissionGuard {
	if window <= 0 {
		window = DefaultLockWindow
	}
	return &admissionGuard{
		window: window,
		last:   make(map[int]time.Time),
	}
}

// admit reports whether an enqueue attempt for bib at time now may proceed.
// A true result records now as the bib's admission time immediately.
func (g *admissionGuard) admit(bibNumber int, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[bibNumber]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[bibNumber] = now
	return true
}
