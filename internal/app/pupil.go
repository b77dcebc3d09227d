package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wisbric/argusd/internal/config"
	"github.com/wisbric/argusd/internal/telemetry"
	"github.com/wisbric/argusd/pkg/nocauth"
	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/pupil"
	"github.com/wisbric/argusd/pkg/pupil/events"
	"github.com/wisbric/argusd/pkg/pupil/listener"
	pupilnocclient "github.com/wisbric/argusd/pkg/pupil/nocclient"
	"github.com/wisbric/argusd/pkg/pupil/recovery"
	"github.com/wisbric/argusd/pkg/watchdog"
)

// shutdownRequester cancels the process's root context, which unwinds
// RunPupil's listener and event registry and returns control to main.go.
type shutdownRequester struct {
	cancel context.CancelFunc
	logger *slog.Logger
}

func (s *shutdownRequester) RequestShutdown(reason string) {
	s.logger.Error("pupil requesting shutdown", "reason", reason)
	s.cancel()
}

// RunPupil is the pupil sidecar binary's entry point: it wires the NOC
// client's retry/recovery wrapper, the sidecar's own watchdog, the event
// dispatch registry, and the HTTP(S) ingress listener, then replays any
// undelivered recovery record before serving.
func RunPupil(ctx context.Context, cancel context.CancelFunc, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting argus pupil", "listen", cfg.Listener.ListenAddr())

	var authenticator nocclient.Authenticator
	if cfg.NocOAuth2.Enabled() {
		authenticator = nocauth.New(ctx, cfg.NocOAuth2.ToNocAuthConfig())
		logger.Info("noc oauth2 authentication enabled")
	}
	baseNocClient := nocclient.New(cfg.NocClient.Endpoint, cfg.NocClient.Timeout(), authenticator)

	recoveryStore := recovery.New(cfg.Persistence.StoragePath, cfg.Persistence.RecoveryFileName)
	shutdown := &shutdownRequester{cancel: cancel, logger: logger}

	nocClient := pupilnocclient.New(baseNocClient, pupilnocclient.Config{
		MaxRetries:      cfg.NocClient.MaxRetries,
		RetryDelay:      cfg.NocClient.RetryDelay(),
		RetryMultiplier: cfg.NocClient.RetryMultiplier,
	}, recoveryStore, shutdown, "argus-pupil", logger)

	if err := nocClient.ReplayRecovery(ctx); err != nil {
		logger.Error("recovery replay failed, continuing startup", "error", err)
	}

	sidecar := pupil.NewSidecar(watchdog.Config{
		Timeout:                  cfg.Watchdog.Timeout(),
		NormalGracePeriod:        cfg.Watchdog.NormalGracePeriod(),
		CrashRecoveryGracePeriod: cfg.Watchdog.CrashRecoveryGracePeriod(),
	}, false, nocClient, "argus-pupil", logger)
	sidecar.Start()
	defer sidecar.Stop()

	registry := events.New(cfg.EventHandler.MaxConcurrentHandlers, cfg.EventHandler.HandlerTimeout(), logger)
	sidecar.RegisterHandlers(registry)
	registry.Start(ctx)
	defer registry.Stop()

	l := listener.New(listener.Config{
		Port:                cfg.Listener.Port,
		UseHTTPS:            cfg.Listener.UseHTTPS,
		CertificatePath:     cfg.Listener.CertificatePath,
		CertificatePassword: cfg.Listener.CertificatePassword,
		EndpointPath:        cfg.Listener.EndpointPath,
		APIKey:              cfg.Listener.APIKey,
	}, registry, logger)

	if err := l.Run(ctx); err != nil {
		return fmt.Errorf("pupil listener: %w", err)
	}
	return nil
}
