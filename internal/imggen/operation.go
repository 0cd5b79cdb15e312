package imggen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"imggen/internal/progress"
)

// Event is one progress or terminal update for a tracked request.
type Event struct {
	RequestID string  `json:"requestId"`
	State     string  `json:"state"`
	Progress  float64 `json:"progress"`
	DocID     string  `json:"docId,omitempty"`
	Error     string  `json:"error,omitempty"`
	Terminal  bool    `json:"terminal"`
}

// operation tracks one in-flight request: its state, simulated
// progress, and terminal outcome.
type operation struct {
	id     string
	ticker *progress.Ticker

	mu     sync.Mutex
	state  State
	docID  string
	err    error
	doneCh chan struct{}
}

func newOperation(id string, tickInterval time.Duration) *operation {
	return &operation{
		id:     id,
		state:  StateIdle,
		ticker: progress.Start(tickInterval),
		doneCh: make(chan struct{}),
	}
}

// begin moves the operation out of idle into its working state.
func (op *operation) begin(state State) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !transition(op.state, state) {
		return false
	}
	op.state = state
	return true
}

func (op *operation) snapshot() Event {
	op.mu.Lock()
	defer op.mu.Unlock()
	evt := Event{
		RequestID: op.id,
		State:     op.state.String(),
		Progress:  op.ticker.Current(),
		DocID:     op.docID,
		Terminal:  op.state.Terminal(),
	}
	if op.err != nil {
		evt.Error = op.err.Error()
	}
	return evt
}

func (op *operation) complete(docID string) {
	op.mu.Lock()
	if op.state.Terminal() || !transition(op.state, StateLoaded) {
		op.mu.Unlock()
		return
	}
	op.state = StateLoaded
	op.docID = docID
	op.mu.Unlock()
	op.ticker.Done()
	close(op.doneCh)
}

func (op *operation) fail(err error) {
	op.mu.Lock()
	if op.state.Terminal() || !transition(op.state, StateFailed) {
		op.mu.Unlock()
		return
	}
	op.state = StateFailed
	op.err = err
	op.mu.Unlock()
	op.ticker.Stop()
	close(op.doneCh)
}

// Watch streams progress and the terminal event for a tracked request.
// The channel closes after the terminal event or when ctx is canceled.
func (s *Service) Watch(ctx context.Context, requestID string) (<-chan Event, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("request id is required")
	}
	op, ok := s.ops.Get(requestID)
	if !ok {
		return nil, fmt.Errorf("request %s not found", requestID)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-op.doneCh:
				select {
				case out <- op.snapshot():
				case <-ctx.Done():
				}
				return
			case _, ok := <-op.ticker.C():
				if !ok {
					// ticker closed; wait for the terminal marker
					<-op.doneCh
					select {
					case out <- op.snapshot():
					case <-ctx.Done():
					}
					return
				}
				select {
				case out <- op.snapshot():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Status returns the latest snapshot for a tracked request.
func (s *Service) Status(requestID string) (Event, bool) {
	op, ok := s.ops.Get(strings.TrimSpace(requestID))
	if !ok {
		return Event{}, false
	}
	return op.snapshot(), true
}
