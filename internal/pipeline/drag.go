package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDragInterval is how often the drag counter advances while the
// pointer is held.
const DefaultDragInterval = 200 * time.Millisecond

// DragGuard tracks a continuous pointer gesture. While the pointer is held
// a counter advances every interval; the guard is active once it moved, so
// a quick click never suppresses recomputation.
type DragGuard struct {
	interval time.Duration
	counter  atomic.Int64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewDragGuard returns an idle guard. A non-positive interval uses
// DefaultDragInterval.
func NewDragGuard(interval time.Duration) *DragGuard {
	if interval <= 0 {
		interval = DefaultDragInterval
	}
	return &DragGuard{interval: interval}
}

// Press starts a gesture. A gesture already in progress restarts.
func (g *DragGuard) Press() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
	g.counter.Store(0)

	stop := make(chan struct{})
	done := make(chan struct{})
	g.stop, g.done = stop, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				g.counter.Add(1)
			}
		}
	}()
}

// Release ends the gesture and resets the counter.
func (g *DragGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
	g.counter.Store(0)
}

// Active reports whether a drag is in progress.
func (g *DragGuard) Active() bool {
	return g.counter.Load() > 0
}

// Close stops the ticker goroutine.
func (g *DragGuard) Close() {
	g.Release()
}

func (g *DragGuard) step() {
	g.counter.Add(1)
}

func (g *DragGuard) stopLocked() {
	if g.stop == nil {
		return
	}
	close(g.stop)
	<-g.done
	g.stop, g.done = nil, nil
}
