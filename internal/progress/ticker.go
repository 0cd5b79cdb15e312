package progress

import (
	"sync"
	"time"
)

const (
	// DefaultInterval is how often a percentage is emitted.
	DefaultInterval = time.Second
	// approachFactor drives the asymptotic update:
	// next = prev + (100 - prev) * approachFactor.
	approachFactor = 0.05
)

// Ticker emits a simulated, monotonically non-decreasing percentage
// while an operation is in flight. It starts at 0, approaches but never
// reaches 100 on its own, snaps to exactly 100 on Done, and carries no
// correctness guarantee — it exists for perceived responsiveness only.
type Ticker struct {
	mu      sync.Mutex
	current float64
	ch      chan float64
	stopCh  chan struct{}
	done    bool
}

// Start begins ticking at the given interval (DefaultInterval when
// interval <= 0) and returns the ticker. Updates arrive on C.
func Start(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Ticker{
		ch:     make(chan float64, 16),
		stopCh: make(chan struct{}),
	}
	t.emit(0)
	go t.loop(interval)
	return t
}

// C streams percentages. It is closed after Done or Stop.
func (t *Ticker) C() <-chan float64 {
	return t.ch
}

// Current returns the latest emitted percentage.
func (t *Ticker) Current() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Done snaps progress to exactly 100 and closes the stream. Safe to
// call more than once.
func (t *Ticker) Done() {
	t.finish(true)
}

// Stop abandons the operation without completing it.
func (t *Ticker) Stop() {
	t.finish(false)
}

func (t *Ticker) finish(complete bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	if complete {
		t.current = 100
		select {
		case t.ch <- 100:
		default:
		}
	}
	close(t.stopCh)
	close(t.ch)
	t.mu.Unlock()
}

func (t *Ticker) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.done {
				t.mu.Unlock()
				return
			}
			next := t.current + (100-t.current)*approachFactor
			t.current = next
			select {
			case t.ch <- next:
			default:
				// receiver is slow; skip this tick
			}
			t.mu.Unlock()
		}
	}
}

func (t *Ticker) emit(value float64) {
	t.mu.Lock()
	t.current = value
	select {
	case t.ch <- value:
	default:
	}
	t.mu.Unlock()
}
