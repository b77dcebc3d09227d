// Package breaker implements the three-state circuit breaker shared by the
// K8s layer service and the L2 persistence layer.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the thresholds that drive state transitions.
type Config struct {
	FailureThreshold      int
	OpenDuration          time.Duration
	SuccessThreshold      int
	SuppressedLogInterval time.Duration
}

// Breaker is a mutex-serialised three-state circuit breaker. The zero value
// is not usable; construct with New.
type Breaker struct {
	cfg    Config
	logger *slog.Logger

	mu               sync.Mutex
	state            State
	consecutiveFails int
	consecutiveOK    int
	openedAt         time.Time
	lastLogAt        time.Time
	suppressedCount  int
}

// New creates a Breaker starting in the Closed state.
func New(cfg Config, logger *slog.Logger) *Breaker {
	return &Breaker{cfg: cfg, logger: logger, state: Closed}
}

// State returns the current state, advancing Open -> HalfOpen if
// openDurationSeconds has elapsed since the breaker tripped.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

// IsAllowed reports whether a protected call may proceed.
func (b *Breaker) IsAllowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state != Open
}

func (b *Breaker) maybeTransitionToHalfOpenLocked() {
	if b.state != Open {
		return
	}
	if time.Since(b.openedAt) < b.cfg.OpenDuration {
		return
	}
	b.state = HalfOpen
	b.consecutiveOK = 0
	if b.suppressedCount > 0 {
		b.logger.Info("circuit breaker half-open", "suppressed_log_count", b.suppressedCount)
		b.suppressedCount = 0
	}
}

// RecordSuccess reports a successful protected call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()

	switch b.state {
	case Closed:
		b.consecutiveFails = 0
	case HalfOpen:
		b.consecutiveOK++
		if b.consecutiveOK >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveFails = 0
			b.consecutiveOK = 0
		}
	case Open:
		// a success while open should not occur (IsAllowed would refuse the
		// call); ignore defensively.
	}
}

// RecordFailure reports a failed protected call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()

	switch b.state {
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	case Open:
		// already open
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.consecutiveFails = 0
	b.consecutiveOK = 0
}

// ShouldLog reports whether the caller should emit a log line for the
// current event. While Closed or HalfOpen it always returns true. While Open
// it returns true at most once per SuppressedLogInterval and increments the
// suppressed-occurrence counter on every call it refuses.
func (b *Breaker) ShouldLog() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()

	if b.state != Open {
		return true
	}
	if b.lastLogAt.IsZero() || time.Since(b.lastLogAt) >= b.cfg.SuppressedLogInterval {
		b.lastLogAt = time.Now()
		return true
	}
	b.suppressedCount++
	return false
}
