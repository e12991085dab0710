// Package resilience builds and caches per-route retry and circuit breaker
// policies around backend calls.
package resilience

import (
	goerrors "errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOpen is returned by Breaker.Allow while the circuit is open.
var ErrOpen = goerrors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker implements a count-based sliding window circuit breaker: it opens
// when the failure rate over the last windowSize calls exceeds the threshold,
// rejects calls for waitOpen, then half-opens to probe with a single call.
type Breaker struct {
	mu            sync.Mutex
	state         State
	window        []bool // true = failure, ring buffer of recent outcomes
	windowIdx     int
	windowFilled  int
	thresholdPct  int
	waitOpen      time.Duration
	openedAt      time.Time
	probeInFlight bool

	// Metrics (atomic for lock-free reads)
	totalRequests atomic.Int64
	totalFailures atomic.Int64
	totalRejected atomic.Int64
}

// NewBreaker creates a circuit breaker.
func NewBreaker(windowSize, thresholdPct int, waitOpen time.Duration) *Breaker {
	if windowSize < 1 {
		windowSize = 1
	}
	return &Breaker{
		state:        StateClosed,
		window:       make([]bool, windowSize),
		thresholdPct: thresholdPct,
		waitOpen:     waitOpen,
	}
}

// Allow checks whether a call may proceed. When it may, the returned done
// function must be invoked with the call's outcome; a nil error counts as
// success. When the circuit is open, Allow returns ErrOpen.
func (b *Breaker) Allow() (func(err error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests.Add(1)

	switch b.state {
	case StateClosed:
		return b.record, nil

	case StateOpen:
		if time.Since(b.openedAt) >= b.waitOpen {
			b.state = StateHalfOpen
			b.probeInFlight = true
			return b.recordProbe, nil
		}
		b.totalRejected.Add(1)
		return nil, ErrOpen

	case StateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return b.recordProbe, nil
		}
		b.totalRejected.Add(1)
		return nil, ErrOpen
	}

	b.totalRejected.Add(1)
	return nil, ErrOpen
}

// record stores a closed-state outcome and opens the circuit when the
// sliding window's failure rate crosses the threshold.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil
	if failed {
		b.totalFailures.Add(1)
	}

	b.window[b.windowIdx] = failed
	b.windowIdx = (b.windowIdx + 1) % len(b.window)
	if b.windowFilled < len(b.window) {
		b.windowFilled++
	}

	// Rate is only meaningful once a full window has been observed.
	if b.windowFilled < len(b.window) {
		return
	}
	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	rate := failures * 100 / len(b.window)
	if rate > b.thresholdPct {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

// recordProbe resolves a half-open probe: success closes the circuit with a
// fresh window, failure re-opens it.
func (b *Breaker) recordProbe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probeInFlight = false
	if err != nil {
		b.totalFailures.Add(1)
		b.state = StateOpen
		b.openedAt = time.Now()
		return
	}
	b.state = StateClosed
	b.resetWindow()
}

func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.windowIdx = 0
	b.windowFilled = 0
}

// Snapshot returns a point-in-time view of the breaker state
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerSnapshot{
		State:         b.state.String(),
		WindowSize:    len(b.window),
		ThresholdPct:  b.thresholdPct,
		TotalRequests: b.totalRequests.Load(),
		TotalFailures: b.totalFailures.Load(),
		TotalRejected: b.totalRejected.Load(),
	}
}

// BreakerSnapshot is a point-in-time view of a circuit breaker
type BreakerSnapshot struct {
	State         string `json:"state"`
	WindowSize    int    `json:"window_size"`
	ThresholdPct  int    `json:"threshold_pct"`
	TotalRequests int64  `json:"total_requests"`
	TotalFailures int64  `json:"total_failures"`
	TotalRejected int64  `json:"total_rejected"`
}
