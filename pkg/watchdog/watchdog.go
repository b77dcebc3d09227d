// Package watchdog implements the heartbeat-driven one-shot re-armable
// timer shared by the coordinator's watchdog and the pupil sidecar's
// watchdog. The two call sites differ only in what happens on expiry,
// supplied as a callback.
package watchdog

import (
	"log/slog"
	"sync"
	"time"
)

// Config holds the watchdog's timeout and grace-period policy.
type Config struct {
	Timeout                  time.Duration
	NormalGracePeriod        time.Duration
	CrashRecoveryGracePeriod time.Duration
}

// State is a snapshot of the watchdog's condition, returned by State() and
// exposed over GET /api/watchdog.
type State struct {
	LastHeartbeat     time.Time
	Expired           bool
	GracePeriodActive bool
}

// Watchdog is a mutex-guarded (lastHeartbeat, expired, timer) triple plus a
// grace period derived from boot mode.
type Watchdog struct {
	cfg           Config
	logger        *slog.Logger
	startedAt     time.Time
	crashRecovery bool
	onExpire      func()
	onHeartbeat   func()

	mu            sync.Mutex
	lastHeartbeat time.Time
	expired       bool
	timer         *time.Timer
	graceLogged   bool
}

// New creates a Watchdog. onExpire is invoked (on its own goroutine) every
// time the timer fires without an intervening heartbeat. onHeartbeat, if
// non-nil, is invoked synchronously at the end of every RecordHeartbeat call
// (the Coordinator uses this to emit an IGNORE alert into the vector;
// pupil's watchdog leaves it nil).
func New(cfg Config, crashRecovery bool, onExpire func(), onHeartbeat func(), logger *slog.Logger) *Watchdog {
	return &Watchdog{
		cfg:           cfg,
		logger:        logger,
		startedAt:     time.Now(),
		crashRecovery: crashRecovery,
		onExpire:      onExpire,
		onHeartbeat:   onHeartbeat,
	}
}

// Start arms the expiry timer to fire Timeout after the grace period ends,
// covering the case where no heartbeat is ever received. If a heartbeat
// arrives first, RecordHeartbeat has already armed its own timer and this
// no-ops.
func (w *Watchdog) Start() {
	time.AfterFunc(w.gracePeriod(), func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.timer == nil {
			w.timer = time.AfterFunc(w.cfg.Timeout, w.fire)
		}
	})
}

// gracePeriod returns the configured grace duration for the current boot
// mode.
func (w *Watchdog) gracePeriod() time.Duration {
	if w.crashRecovery {
		return w.cfg.CrashRecoveryGracePeriod
	}
	return w.cfg.NormalGracePeriod
}

// inGracePeriod reports whether the watchdog is still within its grace
// window, derived from (now - startTime); no timer is armed during grace.
func (w *Watchdog) inGracePeriod() bool {
	active := time.Since(w.startedAt) < w.gracePeriod()
	if !active && !w.graceLogged {
		w.graceLogged = true
		w.logger.Info("watchdog grace period expired")
	}
	return active
}

// RecordHeartbeat resets the expiry clock: clears the expired flag, cancels
// any armed timer, and (if the grace period has elapsed) arms a fresh timer
// for Timeout.
func (w *Watchdog) RecordHeartbeat() {
	w.RecordHeartbeatWithTimeout(0)
}

// RecordHeartbeatWithTimeout is RecordHeartbeat with a per-call timeout
// override, used by the pupil listener's Heartbeat message, which may carry
// its own timeoutSeconds. A zero override uses the configured Timeout.
func (w *Watchdog) RecordHeartbeatWithTimeout(override time.Duration) {
	timeout := w.cfg.Timeout
	if override > 0 {
		timeout = override
	}

	w.mu.Lock()
	w.lastHeartbeat = time.Now()
	w.expired = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if !w.inGracePeriod() {
		w.timer = time.AfterFunc(timeout, w.fire)
	}
	w.mu.Unlock()

	if w.onHeartbeat != nil {
		w.onHeartbeat()
	}
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	w.expired = true
	w.mu.Unlock()

	if w.onExpire != nil {
		w.onExpire()
	}
}

// IsExpired reports the current expired flag.
func (w *Watchdog) IsExpired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

// State returns a snapshot of the watchdog's condition.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		LastHeartbeat:     w.lastHeartbeat,
		Expired:           w.expired,
		GracePeriodActive: time.Since(w.startedAt) < w.gracePeriod(),
	}
}

// Stop cancels any armed timer, e.g. on shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
