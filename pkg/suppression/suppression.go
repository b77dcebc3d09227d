// Package suppression implements the per-fingerprint duplicate-dispatch
// suppression cache used by the NOC queue worker.
package suppression

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/durationfmt"
)

type entry struct {
	lastSent time.Time
	window   time.Duration
}

// Cache is a concurrent fingerprint -> {lastSent, window} map.
type Cache struct {
	defaultWindow time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a Cache with the given default suppression window.
func New(defaultWindow time.Duration, logger *slog.Logger) *Cache {
	return &Cache{defaultWindow: defaultWindow, logger: logger, entries: make(map[string]entry)}
}

// GetSuppressionWindow resolves the effective window for an alert, in
// precedence order: the alert's own SuppressWindow (truncated to whole
// seconds), then its "suppress_window" annotation (empty string means 0 =
// no suppression; invalid format falls through to the default with a
// warning), then the configured default.
func (c *Cache) GetSuppressionWindow(a alert.Alert) time.Duration {
	if a.SuppressWindow != nil {
		return a.SuppressWindow.Truncate(time.Second)
	}

	if raw, ok := a.Annotations["suppress_window"]; ok {
		if raw == "" {
			return 0
		}
		if d, err := durationfmt.Parse(raw); err == nil {
			return d
		}
		c.logger.Warn("invalid suppress_window annotation, using default", "fingerprint", a.Fingerprint, "value", raw)
		return c.defaultWindow
	}

	return c.defaultWindow
}

// ShouldSuppress reports whether a dispatch for this alert should be
// suppressed: false if its window is 0, false if no prior send is recorded,
// else true iff the window has not yet elapsed since the last send.
func (c *Cache) ShouldSuppress(a alert.Alert) bool {
	window := c.GetSuppressionWindow(a)
	if window == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[a.Fingerprint]
	if !ok {
		return false
	}
	return time.Since(e.lastSent) < window
}

// MarkAsSent records a dispatch timestamp, only when the effective window is
// greater than zero.
func (c *Cache) MarkAsSent(a alert.Alert) {
	window := c.GetSuppressionWindow(a)
	if window == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[a.Fingerprint] = entry{lastSent: time.Now(), window: window}
}

// Cleanup removes entries whose window has elapsed since their last send.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for fp, e := range c.entries {
		if now.Sub(e.lastSent) > e.window {
			delete(c.entries, fp)
		}
	}
}
