package config

import (
	"log/slog"
	"time"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/durationfmt"
	"github.com/wisbric/argusd/pkg/nocauth"
	"github.com/wisbric/argusd/pkg/podhealth"
)

// seconds converts a whole-seconds int into a time.Duration.
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// millis converts a whole-milliseconds int into a time.Duration.
func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// parseOrDefault parses s with the <n>{s,m,h,d} duration grammar, falling back to def
// and logging a warning if s is non-empty but invalid. An empty s also
// yields def.
func parseOrDefault(s string, def time.Duration, field string, logger *slog.Logger) time.Duration {
	if s == "" {
		return def
	}
	d, err := durationfmt.Parse(s)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid duration in config, using default", "field", field, "value", s, "error", err)
		}
		return def
	}
	return d
}

// Timeout is the NOC client's per-request timeout.
func (c NocClientConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

// RetryDelay is the NOC client's base retry delay.
func (c NocClientConfig) RetryDelay() time.Duration { return millis(c.RetryDelayMs) }

// Timeout is the watchdog's expiry timeout.
func (c WatchdogConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }

// NormalGracePeriod is the watchdog's normal-boot grace period.
func (c WatchdogConfig) NormalGracePeriod() time.Duration { return seconds(c.NormalGracePeriodSeconds) }

// CrashRecoveryGracePeriod is the watchdog's crash-recovery-boot grace period.
func (c WatchdogConfig) CrashRecoveryGracePeriod() time.Duration {
	return seconds(c.CrashRecoveryGracePeriodSeconds)
}

// SuppressWindowDuration parses the configured suppression window, falling
// back to zero (no suppression) on an empty or invalid string.
func (c WatchdogConfig) SuppressWindowDuration(logger *slog.Logger) *time.Duration {
	d := parseOrDefault(c.SuppressWindow, 0, "watchdog.suppressWindow", logger)
	return &d
}

// NocBehavior builds the {sendToNoc, payload, suppressWindow} triple the
// watchdog attaches to its CREATE alert.
func (c WatchdogConfig) NocBehavior(logger *slog.Logger) alert.NocBehavior {
	return alert.NocBehavior{
		SendToNoc:      c.SendToNoc,
		Payload:        c.Payload,
		SuppressWindow: c.SuppressWindowDuration(logger),
	}
}

// HandlerTimeout is the per-handler timeout for the pupil's event dispatcher.
func (c EventHandlerConfig) HandlerTimeout() time.Duration { return seconds(c.HandlerTimeoutSeconds) }

// SnapshotInterval is the coordinator's recurring snapshot tick.
func (c CoordinatorConfig) SnapshotInterval() time.Duration {
	return seconds(c.SnapshotIntervalSeconds)
}

// APITimeout is the Kubernetes API call timeout.
func (c KubernetesConfig) APITimeout() time.Duration { return seconds(c.APITimeoutSeconds) }

func (p PodConfig) nocBehavior(sendToNoc bool, payload, suppressWindow string, logger *slog.Logger) alert.NocBehavior {
	d := parseOrDefault(suppressWindow, 0, "k8sLayer.pod.suppressWindow", logger)
	return alert.NocBehavior{SendToNoc: sendToNoc, Payload: payload, SuppressWindow: &d}
}

// CreateNocBehavior builds the NOC behaviour attached to this pod's CREATE
// alert.
func (p PodConfig) CreateNocBehavior(logger *slog.Logger) alert.NocBehavior {
	return p.nocBehavior(p.CreateSendToNoc, p.CreatePayload, p.CreateSuppressWindow, logger)
}

// UnknownNocBehavior builds the NOC behaviour attached to this pod's
// UNKNOWN alert.
func (p PodConfig) UnknownNocBehavior(logger *slog.Logger) alert.NocBehavior {
	return p.nocBehavior(p.UnknownSendToNoc, p.UnknownPayload, p.UnknownSuppressWindow, logger)
}

// ToRetryConfig converts to the pod checker's retry policy, one duration
// per configured delay step.
func (c K8sRetryConfig) ToRetryConfig() podhealth.RetryConfig {
	delays := make([]time.Duration, 0, len(c.DelayMilliseconds))
	for _, ms := range c.DelayMilliseconds {
		delays = append(delays, millis(ms))
	}
	return podhealth.RetryConfig{MaxRetries: c.MaxRetries, Delays: delays}
}

// OpenDuration is the circuit breaker's open-state duration.
func (c CircuitBreakerConfig) OpenDuration() time.Duration { return seconds(c.OpenDurationSeconds) }

// SuppressedLogInterval is the circuit breaker's suppressed-log interval.
func (c CircuitBreakerConfig) SuppressedLogInterval() time.Duration {
	return seconds(c.SuppressedLogIntervalSeconds)
}

// ToBreakerConfig converts to the domain breaker.Config.
func (c CircuitBreakerConfig) ToBreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold:      c.FailureThreshold,
		OpenDuration:          c.OpenDuration(),
		SuccessThreshold:      c.SuccessThreshold,
		SuppressedLogInterval: c.SuppressedLogInterval(),
	}
}

// NormalGracePeriod is the restart tracker's boot grace period.
func (c RestartTrackingConfig) NormalGracePeriod() time.Duration {
	return seconds(c.NormalGracePeriodSeconds)
}

// PollingInterval is the K8s layer's poll tick.
func (c K8sLayerConfig) PollingInterval() time.Duration { return seconds(c.PollingIntervalSeconds) }

// DefaultWindowDuration parses Noc.defaultWindow, falling back to 10m.
func (c NocConfig) DefaultWindowDuration(logger *slog.Logger) time.Duration {
	return parseOrDefault(c.DefaultWindow, 10*time.Minute, "noc.defaultWindow", logger)
}

// CleanupIntervalDuration parses Noc.cleanupInterval, falling back to 30s.
func (c NocConfig) CleanupIntervalDuration(logger *slog.Logger) time.Duration {
	return parseOrDefault(c.CleanupInterval, 30*time.Second, "noc.cleanupInterval", logger)
}

// DuplicateWindowDuration parses Noc.duplicateWindow, falling back to 1m.
func (c NocConfig) DuplicateWindowDuration(logger *slog.Logger) time.Duration {
	return parseOrDefault(c.DuplicateWindow, time.Minute, "noc.duplicateWindow", logger)
}

// TTL parses AlertsVector.alertTtl, falling back to 1h.
func (c AlertsVectorConfig) TTL(logger *slog.Logger) time.Duration {
	return parseOrDefault(c.AlertTTL, time.Hour, "alertsVector.alertTtl", logger)
}

// BatchWindow is the L2 batch writer's flush interval.
func (c HazelcastConfig) BatchWindow() time.Duration { return millis(c.BatchWindowMs) }

// WriteRetryDelay is the L2 store's linear retry base delay.
func (c HazelcastConfig) WriteRetryDelay() time.Duration { return millis(c.WriteRetryDelayMs) }

// Enabled reports whether OAuth2 auth to the NOC endpoint is configured.
func (c NocOAuth2Config) Enabled() bool { return c.ClientID != "" }

// ToNocAuthConfig converts to the domain nocauth.Config.
func (c NocOAuth2Config) ToNocAuthConfig() nocauth.Config {
	return nocauth.Config{
		TokenURL:     c.TokenURL,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Scopes:       c.Scopes,
	}
}
