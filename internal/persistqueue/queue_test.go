package persistqueue

import (
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestBackoffDoublesWithAttempt(t *testing.T) {
	if got, want := backoff(1), 100*time.Millisecond; got != want {
		t.Errorf("backoff(1) = %v, want %v", got, want)
	}
	if got, want := backoff(3), 400*time.Millisecond; got != want {
		t.Errorf("backoff(3) = %v, want %v", got, want)
	}
	if backoff(2) >= backoff(3) {
		t.Errorf("expected backoff to increase with attempt, got backoff(2)=%v backoff(3)=%v", backoff(2), backoff(3))
	}
}

func TestIsDeadlockRecognizesPostgresCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock_detected", &pq.Error{Code: "40P01"}, true},
		{"lock_not_available", &pq.Error{Code: "55P03"}, true},
		{"unique_violation", &pq.Error{Code: "23505"}, false},
		{"non-pq error", errString("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isDeadlock(tc.err); got != tc.want {
				t.Errorf("isDeadlock(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestUpdateBackpressureHysteresis(t *testing.T) {
	q := &Queue{highWater: 10, lowWater: 2}

	q.depth = 5
	q.updateBackpressure()
	if q.IsPaused() {
		t.Fatalf("expected not paused below high water mark")
	}

	q.depth = 10
	q.updateBackpressure()
	if !q.IsPaused() {
		t.Fatalf("expected paused at high water mark")
	}

	// Draining below high water but still above low water should not
	// resume yet; the point of hysteresis is to avoid flapping.
	q.depth = 5
	q.updateBackpressure()
	if !q.IsPaused() {
		t.Fatalf("expected still paused between low and high water marks")
	}

	q.depth = 2
	q.updateBackpressure()
	if q.IsPaused() {
		t.Fatalf("expected resumed at or below low water mark")
	}
}

func TestAppendToBatchFlushesAtThreshold(t *testing.T) {
	q := &Queue{batchThreshold: 3, batchBuffer: make(map[string][]*Unit)}

	batch, flush := q.appendToBatch(&Unit{BatchKey: "k"})
	if flush || len(batch) != 1 {
		t.Fatalf("expected no flush after the first unit, got flush=%v len=%d", flush, len(batch))
	}

	batch, flush = q.appendToBatch(&Unit{BatchKey: "k"})
	if flush || len(batch) != 2 {
		t.Fatalf("expected no flush after the second unit, got flush=%v len=%d", flush, len(batch))
	}

	batch, flush = q.appendToBatch(&Unit{BatchKey: "k"})
	if !flush || len(batch) != 3 {
		t.Fatalf("expected a flush once the threshold is reached, got flush=%v len=%d", flush, len(batch))
	}
	if pending := q.batchBuffer["k"]; len(pending) != 0 {
		t.Errorf("expected the pending batch to be cleared after flushing, got %d left", len(pending))
	}

	batch, flush = q.appendToBatch(&Unit{BatchKey: "other"})
	if flush || len(batch) != 1 {
		t.Errorf("expected a distinct batch key to start its own fresh batch, got flush=%v len=%d", flush, len(batch))
	}
}
