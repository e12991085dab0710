package resilience

import (
	goerrors "errors"
	"testing"
	"time"
)

var errBackend = goerrors.New("backend down")

func mustAllow(t *testing.T, b *Breaker) func(error) {
	t.Helper()
	done, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow() rejected: %v", err)
	}
	return done
}

func TestBreakerStaysClosedUnderThreshold(t *testing.T) {
	b := NewBreaker(4, 50, time.Minute)

	// 2 failures out of 4 is exactly 50%, not above it.
	outcomes := []error{errBackend, nil, errBackend, nil}
	for _, out := range outcomes {
		mustAllow(t, b)(out)
	}

	if got := b.Snapshot().State; got != "closed" {
		t.Errorf("state = %q, want closed", got)
	}
}

func TestBreakerOpensAboveThreshold(t *testing.T) {
	b := NewBreaker(4, 50, time.Minute)

	outcomes := []error{errBackend, errBackend, errBackend, nil}
	for _, out := range outcomes {
		mustAllow(t, b)(out)
	}

	if got := b.Snapshot().State; got != "open" {
		t.Fatalf("state = %q, want open", got)
	}
	if _, err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerIgnoresPartialWindow(t *testing.T) {
	b := NewBreaker(10, 50, time.Minute)

	// 5 straight failures, but the window holds 10 slots: no verdict yet.
	for i := 0; i < 5; i++ {
		mustAllow(t, b)(errBackend)
	}

	if got := b.Snapshot().State; got != "closed" {
		t.Errorf("state = %q, want closed", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(2, 50, 10*time.Millisecond)

	mustAllow(t, b)(errBackend)
	mustAllow(t, b)(errBackend)
	if got := b.Snapshot().State; got != "open" {
		t.Fatalf("state = %q, want open", got)
	}

	time.Sleep(20 * time.Millisecond)

	// First call after the cooldown is the probe; it succeeds and closes
	// the circuit with a fresh window.
	mustAllow(t, b)(nil)
	if got := b.Snapshot().State; got != "closed" {
		t.Fatalf("state after probe = %q, want closed", got)
	}

	// One failure in the fresh window must not re-open immediately.
	mustAllow(t, b)(errBackend)
	if got := b.Snapshot().State; got != "closed" {
		t.Errorf("state = %q, want closed", got)
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker(2, 50, 10*time.Millisecond)

	mustAllow(t, b)(errBackend)
	mustAllow(t, b)(errBackend)
	time.Sleep(20 * time.Millisecond)

	mustAllow(t, b)(errBackend)
	if got := b.Snapshot().State; got != "open" {
		t.Fatalf("state after failed probe = %q, want open", got)
	}
	if _, err := b.Allow(); err != ErrOpen {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := NewBreaker(2, 50, 10*time.Millisecond)

	mustAllow(t, b)(errBackend)
	mustAllow(t, b)(errBackend)
	time.Sleep(20 * time.Millisecond)

	done := mustAllow(t, b)
	// While the probe is in flight, further calls are rejected.
	if _, err := b.Allow(); err != ErrOpen {
		t.Errorf("concurrent call during probe: %v, want ErrOpen", err)
	}
	done(nil)

	if got := b.Snapshot().State; got != "closed" {
		t.Errorf("state = %q, want closed", got)
	}
}

func TestBreakerSnapshotCounters(t *testing.T) {
	b := NewBreaker(2, 50, time.Minute)

	mustAllow(t, b)(nil)
	mustAllow(t, b)(errBackend)

	s := b.Snapshot()
	if s.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", s.TotalRequests)
	}
	if s.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", s.TotalFailures)
	}
	if s.WindowSize != 2 {
		t.Errorf("WindowSize = %d, want 2", s.WindowSize)
	}
}
