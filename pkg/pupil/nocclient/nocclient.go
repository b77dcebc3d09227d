// Package nocclient wraps the shared pkg/nocclient.Client with the pupil's
// retry/backoff policy: retry up to MaxRetries times with exponentially
// growing delay, and on final failure persist a recovery record to disk
// and request the process shut down gracefully, since a pupil that can no
// longer reach the NOC is no longer useful.
package nocclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/pupil/recovery"
)

// Poster is the subset of nocclient.Client this package wraps.
type Poster interface {
	Post(ctx context.Context, msg nocclient.Message) error
}

// ShutdownRequester asks the host process to begin a graceful shutdown.
// cmd/pupil/main.go supplies this as a cancel of the root context.
type ShutdownRequester interface {
	RequestShutdown(reason string)
}

// Config is the retry policy, taken from config.NocClientConfig.
type Config struct {
	MaxRetries      int
	RetryDelay      time.Duration
	RetryMultiplier float64
}

// Client retries Post against the wrapped Poster, persisting a recovery
// record and requesting shutdown when every attempt is exhausted.
type Client struct {
	inner    Poster
	cfg      Config
	recovery *recovery.Store
	shutdown ShutdownRequester
	source   string
	logger   *slog.Logger
}

// New creates a Client. recoveryStore and shutdown may be nil in tests that
// don't exercise the failure path.
func New(inner Poster, cfg Config, recoveryStore *recovery.Store, shutdown ShutdownRequester, source string, logger *slog.Logger) *Client {
	return &Client{
		inner:    inner,
		cfg:      cfg,
		recovery: recoveryStore,
		shutdown: shutdown,
		source:   source,
		logger:   logger,
	}
}

// Send posts msg, retrying per the configured policy. sendToNoc=false is a
// no-op success, matching the same "skip quietly" behaviour the coordinator's
// NOC worker uses for alerts not meant to reach the NOC.
func (c *Client) Send(ctx context.Context, msg nocclient.Message, sendToNoc bool, correlationID string) error {
	if !sendToNoc {
		return nil
	}

	var lastErr error
	delay := c.cfg.RetryDelay
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * c.cfg.RetryMultiplier)
		}

		lastErr = c.inner.Post(ctx, msg)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("noc post attempt failed", "attempt", attempt, "correlation_id", correlationID, "error", lastErr)
	}

	c.logger.Error("noc post exhausted retries, persisting recovery record", "correlation_id", correlationID, "error", lastErr)
	c.persistFailure(msg, correlationID, lastErr)
	if c.shutdown != nil {
		c.shutdown.RequestShutdown("noc client exhausted retries")
	}
	return lastErr
}

func (c *Client) persistFailure(msg nocclient.Message, correlationID string, cause error) {
	if c.recovery == nil {
		return
	}
	detail, _ := json.Marshal(msg)
	rec := recovery.Record{
		FailedAt:      time.Now(),
		CorrelationID: correlationID,
		Source:        c.source,
		FailureReason: cause.Error(),
		NocDetails:    detail,
	}
	if err := c.recovery.Persist(rec); err != nil {
		c.logger.Error("failed to persist recovery record", "error", err)
	}
}

// ReplayRecovery is run once at startup: if a recovery record exists, it
// rewrites the message with a "[RECOVERY]" summary prefix and the original
// failure time annotated, attempts one POST, and deletes the file on
// success. On failure it leaves the file in place for the next restart.
func (c *Client) ReplayRecovery(ctx context.Context) error {
	if c.recovery == nil {
		return nil
	}
	rec, ok, err := c.recovery.Load()
	if err != nil {
		if errors.Is(err, recovery.ErrCorrupt) {
			c.logger.Error("recovery file corrupt, deleting", "error", err)
			return c.recovery.Delete()
		}
		return err
	}
	if !ok {
		return nil
	}

	var msg nocclient.Message
	if err := json.Unmarshal(rec.NocDetails, &msg); err != nil {
		c.logger.Error("recovery record has unreadable noc details, discarding", "error", err)
		return c.recovery.Delete()
	}

	msg.Summary = "[RECOVERY] " + msg.Summary
	msg.Description = msg.Description + "\noriginal failure at " + rec.FailedAt.Format(time.RFC3339) + ": " + rec.FailureReason

	if err := c.inner.Post(ctx, msg); err != nil {
		c.logger.Error("recovery replay post failed, leaving recovery file in place", "error", err)
		return err
	}

	c.logger.Info("recovery replay succeeded", "correlation_id", rec.CorrelationID)
	return c.recovery.Delete()
}
