package progress

import (
	"testing"
	"time"
)

func TestTickerMonotoneAndBelow100(t *testing.T) {
	ticker := Start(5 * time.Millisecond)
	defer ticker.Stop()

	prev := -1.0
	for i := 0; i < 10; i++ {
		select {
		case v, ok := <-ticker.C():
			if !ok {
				t.Fatalf("stream closed early")
			}
			if v < prev {
				t.Fatalf("progress decreased: %v after %v", v, prev)
			}
			if v >= 100 {
				t.Fatalf("progress reached 100 without completion: %v", v)
			}
			prev = v
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for tick %d", i)
		}
	}
	if prev <= 0 {
		t.Fatalf("progress never advanced past 0")
	}
}

func TestTickerStartsAtZero(t *testing.T) {
	ticker := Start(time.Hour)
	defer ticker.Stop()

	select {
	case v := <-ticker.C():
		if v != 0 {
			t.Fatalf("first value = %v, want 0", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("no initial value emitted")
	}
}

func TestTickerDoneSnapsTo100(t *testing.T) {
	ticker := Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	ticker.Done()

	last := -1.0
	for v := range ticker.C() {
		last = v
	}
	if last != 100 {
		t.Fatalf("final value = %v, want exactly 100", last)
	}
	if ticker.Current() != 100 {
		t.Fatalf("Current() = %v, want 100", ticker.Current())
	}

	// Idempotent.
	ticker.Done()
	ticker.Stop()
}

func TestTickerStopDoesNotComplete(t *testing.T) {
	ticker := Start(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	ticker.Stop()

	for v := range ticker.C() {
		if v == 100 {
			t.Fatalf("Stop must not snap to 100")
		}
	}
	if ticker.Current() >= 100 {
		t.Fatalf("Current() = %v after Stop, want < 100", ticker.Current())
	}
}

func TestTickerApproachFormula(t *testing.T) {
	prev := 0.0
	for i := 0; i < 500; i++ {
		next := prev + (100-prev)*approachFactor
		if next <= prev && prev < 100 {
			t.Fatalf("formula stalled at %v", prev)
		}
		if next >= 100 {
			t.Fatalf("formula reached 100 at step %d", i)
		}
		prev = next
	}
}
