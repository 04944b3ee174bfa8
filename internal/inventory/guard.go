package inventory

import (
	"errors"
	"sync"
)

// ErrScanInProgress is returned when a screen starts a scan while its
// previous one is still being saved.
var ErrScanInProgress = errors.New("a scan is already being processed")

// ScanGuard allows at most one in-flight scan per key. A second attempt is
// rejected rather than queued.
type ScanGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewScanGuard() *ScanGuard {
	return &ScanGuard{busy: make(map[string]struct{})}
}

// TryBegin claims key. When ok is true the caller must call release once
// the scan has finished; release is idempotent.
func (g *ScanGuard) TryBegin(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, taken := g.busy[key]; taken {
		return nil, false
	}
	g.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, true
}

// InFlight returns the number of keys currently held.
func (g *ScanGuard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.busy)
}
