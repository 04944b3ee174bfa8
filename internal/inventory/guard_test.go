package inventory

import (
	"sync"
	"testing"
)

func TestScanGuardRejectsSecondScan(t *testing.T) {
	g := NewScanGuard()

	release, ok := g.TryBegin("screen-1")
	if !ok {
		t.Fatal("expected first scan to begin")
	}
	if _, ok := g.TryBegin("screen-1"); ok {
		t.Error("expected second scan on the same screen to be rejected")
	}
	if _, ok := g.TryBegin("screen-2"); !ok {
		t.Error("expected another screen to scan independently")
	}

	release()
	release()

	if _, ok := g.TryBegin("screen-1"); !ok {
		t.Error("expected scan to begin after release")
	}
}

func TestScanGuardConcurrent(t *testing.T) {
	g := NewScanGuard()
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryBegin("screen"); ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if won != 1 {
		t.Errorf("winners = %d, want 1", won)
	}
	if g.InFlight() != 1 {
		t.Errorf("in flight = %d, want 1", g.InFlight())
	}
}
