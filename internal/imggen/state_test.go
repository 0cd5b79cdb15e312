package imggen

import (
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateLoadingExisting, true},
		{StateIdle, StateGeneratingNew, true},
		{StateIdle, StateRegenerating, true},
		{StateIdle, StateLoaded, false},
		{StateIdle, StateFailed, false},
		{StateGeneratingNew, StateLoaded, true},
		{StateGeneratingNew, StateFailed, true},
		{StateLoadingExisting, StateLoaded, true},
		{StateRegenerating, StateFailed, true},
		{StateLoaded, StateGeneratingNew, false},
		{StateFailed, StateLoaded, false},
	}
	for _, tc := range cases {
		if got := transition(tc.from, tc.to); got != tc.want {
			t.Fatalf("transition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOperationBeginsIdleThenTransitions(t *testing.T) {
	op := newOperation("req-1", time.Millisecond)
	if got := op.snapshot().State; got != StateIdle.String() {
		t.Fatalf("initial state = %q, want idle", got)
	}
	if !op.begin(StateGeneratingNew) {
		t.Fatalf("begin from idle rejected")
	}
	if op.begin(StateRegenerating) {
		t.Fatalf("begin must be rejected once the operation is working")
	}

	op.complete("doc-1")
	if op.begin(StateLoadingExisting) {
		t.Fatalf("begin must be rejected after a terminal state")
	}
	evt := op.snapshot()
	if evt.State != StateLoaded.String() || !evt.Terminal {
		t.Fatalf("snapshot = %+v, want terminal loaded", evt)
	}
	if evt.DocID != "doc-1" {
		t.Fatalf("docID = %q, want doc-1", evt.DocID)
	}
}
