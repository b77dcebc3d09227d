// Package restarttracker keeps a sliding window of pod restart counts per pod
// and flags pods whose restart rate exceeds a threshold, with a startup
// grace period during which instability is never reported.
package restarttracker

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the thresholds used to judge stability.
type Config struct {
	WindowSize        int
	RestartThreshold  int
	NormalGracePeriod time.Duration
}

// Tracker is safe for concurrent use.
type Tracker struct {
	cfg           Config
	logger        *slog.Logger
	startedAt     time.Time
	crashRecovery bool

	mu          sync.Mutex
	windows     map[string][]int
	graceLogged bool
}

// New creates a Tracker. crashRecovery disables the grace period entirely:
// a crash-recovered instance is already past its real startup churn.
func New(cfg Config, crashRecovery bool, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:           cfg,
		logger:        logger,
		startedAt:     time.Now(),
		crashRecovery: crashRecovery,
		windows:       make(map[string][]int),
	}
}

// inGracePeriod reports whether the tracker is still within its grace window.
// Logs exactly once when the grace period first expires.
func (t *Tracker) inGracePeriod() bool {
	if t.crashRecovery {
		return false
	}
	if time.Since(t.startedAt) < t.cfg.NormalGracePeriod {
		return true
	}
	if !t.graceLogged {
		t.graceLogged = true
		t.logger.Info("restart tracker grace period expired")
	}
	return false
}

// Observe records a restart-count observation for a pod and reports whether
// the pod is currently stable.
func (t *Tracker) Observe(podID string, currentRestartCount int) (stable bool, restartsInWindow int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := append(t.windows[podID], currentRestartCount)
	if len(w) > t.cfg.WindowSize {
		w = w[len(w)-t.cfg.WindowSize:]
	}
	t.windows[podID] = w

	if len(w) >= 2 {
		restartsInWindow = w[len(w)-1] - w[0]
	}

	if t.inGracePeriod() {
		return true, restartsInWindow
	}
	if len(w) < t.cfg.WindowSize {
		return true, restartsInWindow
	}
	return restartsInWindow < t.cfg.RestartThreshold, restartsInWindow
}

// Reset clears the window for a pod, e.g. when the pod is no longer observed.
func (t *Tracker) Reset(podID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, podID)
}
