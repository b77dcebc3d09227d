// Package app wires together the coordinator and pupil binaries: config,
// infrastructure clients, and every domain package, bottom-up.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisbric/argusd/internal/audit"
	"github.com/wisbric/argusd/internal/config"
	"github.com/wisbric/argusd/internal/httpserver"
	"github.com/wisbric/argusd/internal/platform"
	"github.com/wisbric/argusd/internal/telemetry"
	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/coordinator"
	"github.com/wisbric/argusd/pkg/k8slayer"
	"github.com/wisbric/argusd/pkg/l2cache"
	"github.com/wisbric/argusd/pkg/nocauth"
	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/nocqueue"
	"github.com/wisbric/argusd/pkg/podhealth"
	"github.com/wisbric/argusd/pkg/restarttracker"
	"github.com/wisbric/argusd/pkg/slack"
	"github.com/wisbric/argusd/pkg/snapshot"
	"github.com/wisbric/argusd/pkg/suppression"
	"github.com/wisbric/argusd/pkg/vector"
	"github.com/wisbric/argusd/pkg/watchdog"
)

// RunCoordinator is the coordinator binary's entry point: it connects to
// infrastructure, wires every domain package, and serves the ingress HTTP
// API until ctx is cancelled.
func RunCoordinator(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting argus coordinator", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := audit.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensuring audit schema: %w", err)
	}
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metrics := telemetry.New()

	// L2 write-behind persistence.
	mapClient := l2cache.NewRedisMapClient(rdb, cfg.Hazelcast.AlertsMapName)
	l2Store := l2cache.NewStore(mapClient, l2cache.Config{
		MaxWriteRetries: cfg.Hazelcast.MaxWriteRetries,
		WriteRetryDelay: cfg.Hazelcast.WriteRetryDelay(),
		CircuitBreaker:  cfg.Hazelcast.CircuitBreaker.ToBreakerConfig(),
	}, logger, metrics)

	// L1 alerts vector, booted from L2 (a non-empty load puts it into
	// crash-recovery mode).
	vec := vector.New(logger, metrics)
	vec.InitializeFromL2(ctx, l2Store)

	batchWriter := l2cache.NewBatchWriter(l2Store, vec, cfg.Hazelcast.BatchWindow(), logger)
	go batchWriter.Run(ctx)

	// Kubernetes pod health layer: one checker (shared breaker and restart
	// tracker) drives both the Prometheus-pod and KSM-pod checks.
	podLister, err := platform.NewPodLister(cfg.K8sLayer.Kubernetes.UseInClusterConfig)
	if err != nil {
		return fmt.Errorf("building kubernetes pod lister: %w", err)
	}
	restartTracker := restarttracker.New(restarttracker.Config{
		WindowSize:        cfg.K8sLayer.RestartTracking.WindowSize,
		RestartThreshold:  cfg.K8sLayer.RestartTracking.RestartThreshold,
		NormalGracePeriod: cfg.K8sLayer.RestartTracking.NormalGracePeriod(),
	}, vec.CrashRecovery(), logger)
	k8sBreaker := breaker.New(cfg.K8sLayer.CircuitBreaker.ToBreakerConfig(), logger)
	podChecker := podhealth.NewChecker(podLister, restartTracker, cfg.K8sLayer.Kubernetes.Namespace, k8sBreaker, cfg.K8sLayer.Retry.ToRetryConfig())
	k8s := k8slayer.New(podChecker,
		k8slayer.PodConfig{
			LabelSelector:      cfg.K8sLayer.PrometheusPod.LabelSelector,
			ContainerName:      cfg.K8sLayer.PrometheusPod.ContainerName,
			CreateNocBehavior:  cfg.K8sLayer.PrometheusPod.CreateNocBehavior(logger),
			UnknownNocBehavior: cfg.K8sLayer.PrometheusPod.UnknownNocBehavior(logger),
		},
		k8slayer.PodConfig{
			LabelSelector:      cfg.K8sLayer.KSMPod.LabelSelector,
			ContainerName:      cfg.K8sLayer.KSMPod.ContainerName,
			CreateNocBehavior:  cfg.K8sLayer.KSMPod.CreateNocBehavior(logger),
			UnknownNocBehavior: cfg.K8sLayer.KSMPod.UnknownNocBehavior(logger),
		},
	)

	// NOC egress: optional OAuth2 client-credentials auth, HTTP transport,
	// suppression cache, and the FIFO dispatch worker.
	var authenticator nocclient.Authenticator
	if cfg.NocOAuth2.Enabled() {
		authenticator = nocauth.New(ctx, cfg.NocOAuth2.ToNocAuthConfig())
		logger.Info("noc oauth2 authentication enabled")
	}
	baseNocClient := nocclient.New(cfg.NocClient.Endpoint, cfg.NocClient.Timeout(), authenticator)
	transport := nocqueue.NewHTTPTransport(baseNocClient, "argus-coordinator")

	suppressionCache := suppression.New(cfg.Noc.DefaultWindowDuration(logger), logger)

	var notifier *slack.Notifier
	if cfg.SlackBotToken != "" {
		notifier = slack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
		logger.Info("slack mirror enabled", "channel", cfg.SlackAlertChannel)
	}

	nocWorker := nocqueue.New(vec, transport, suppressionCache, metrics, logger,
		cfg.Noc.DuplicateWindowDuration(logger), cfg.Noc.CleanupIntervalDuration(logger))
	nocWorker.WithAudit(auditWriter)
	if notifier != nil {
		nocWorker.WithNotifier(notifier)
	}
	go nocWorker.Run(ctx)

	snapshotSvc := snapshot.New(vec, nocWorker, metrics, cfg.AlertsVector.TTL(logger))
	snapshotSvc.WithAudit(auditWriter)

	wd := watchdog.New(watchdog.Config{
		Timeout:                  cfg.Watchdog.Timeout(),
		NormalGracePeriod:        cfg.Watchdog.NormalGracePeriod(),
		CrashRecoveryGracePeriod: cfg.Watchdog.CrashRecoveryGracePeriod(),
	}, vec.CrashRecovery(), func() {
		auditWriter.LogWatchdogTransition("expired", nil)
		vec.UpdateAlert(watchdogExpiryAlert(cfg, logger))
	}, func() {
		auditWriter.LogWatchdogTransition("armed", nil)
		vec.UpdateAlert(watchdogHeartbeatAlert(cfg))
	}, logger)

	coord := coordinator.New(coordinator.Config{
		WatchdogAlertName: cfg.Watchdog.AlertName,
		K8sPollInterval:   cfg.K8sLayer.PollingInterval(),
		SnapshotInterval:  cfg.Coordinator.SnapshotInterval(),
		NormalGracePeriod: cfg.Watchdog.NormalGracePeriod(),
	}, vec, k8s, snapshotSvc, wd, metrics, logger)
	go coord.Run(ctx)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metrics, coord, vec, wd)
	return serveHTTP(ctx, cfg.ListenAddr(), srv, logger, "coordinator ingress")
}

// watchdogFingerprint is the single fingerprint shared by the coordinator's
// own watchdog's heartbeat (IGNORE) and expiry (CREATE) entries: a fresh
// heartbeat after an expiry overwrites the CREATE in place.
const watchdogFingerprint = "watchdog"

// watchdogExpiryAlert builds the CREATE alert the coordinator's own
// watchdog emits into the vector when no heartbeat arrives in time.
func watchdogExpiryAlert(cfg *config.Config, logger *slog.Logger) alert.Alert {
	behavior := cfg.Watchdog.NocBehavior(logger)
	now := time.Now()
	return alert.Alert{
		Priority:       alert.PriorityWatchdogExpired,
		Name:           cfg.Watchdog.AlertName,
		Summary:        "watchdog heartbeat expired",
		Source:         "watchdog",
		Fingerprint:    watchdogFingerprint,
		Status:         alert.StatusCreate,
		SendToNoc:      behavior.SendToNoc,
		Payload:        behavior.Payload,
		SuppressWindow: behavior.SuppressWindow,
		Timestamp:      now,
		LastSeen:       now,
	}
}

// watchdogHeartbeatAlert builds the IGNORE alert recorded into the vector
// on every received heartbeat, keeping the vector's view of the watchdog
// in sync even though IGNORE entries are never dispatched to NOC.
func watchdogHeartbeatAlert(cfg *config.Config) alert.Alert {
	now := time.Now()
	return alert.Alert{
		Priority:    alert.PriorityWatchdogExpired,
		Name:        cfg.Watchdog.AlertName,
		Summary:     "watchdog heartbeat received",
		Source:      "watchdog",
		Fingerprint: watchdogFingerprint,
		Status:      alert.StatusIgnore,
		Timestamp:   now,
		LastSeen:    now,
	}
}

// serveHTTP runs handler behind an http.Server: listen in a goroutine,
// shut down gracefully when ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger, what string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(what+" listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s: %w", what, err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down " + what)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
