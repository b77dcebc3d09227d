package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/argusd/internal/config"
	"github.com/wisbric/argusd/internal/telemetry"
	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/breaker"
	"github.com/wisbric/argusd/pkg/k8slayer"
	"github.com/wisbric/argusd/pkg/watchdog"
)

// Coordinator is the subset of pkg/coordinator.Coordinator the ingress HTTP
// layer needs.
type Coordinator interface {
	ReceiveAlerts(alerts []alert.PushAlert, correlationID string)
	LastAlertReceivedAt() time.Time
	LastK8sState() k8slayer.State
	K8sBreakerState() breaker.State
}

// Vector is the subset of the alerts vector the ingress HTTP layer needs.
type Vector interface {
	GetSnapshot() []alert.Alert
}

// WatchdogState is the subset of the watchdog the ingress HTTP layer needs.
type WatchdogState interface {
	State() watchdog.State
}

// Server holds the coordinator's ingress HTTP server: the alert push
// endpoint, the read-only state endpoints, and the health/metrics
// plumbing. Global middleware first, then routed handlers.
type Server struct {
	Router      *chi.Mux
	Logger      *slog.Logger
	DB          *pgxpool.Pool
	Redis       *redis.Client
	coordinator Coordinator
	vector      Vector
	watchdog    WatchdogState
	startedAt   time.Time
}

// NewServer creates the coordinator's HTTP server with middleware, health
// endpoints and the ingress routes mounted.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metrics *telemetry.Metrics, coord Coordinator, vec Vector, wd WatchdogState) *Server {
	s := &Server{
		Router:      chi.NewRouter(),
		Logger:      logger,
		DB:          db,
		Redis:       rdb,
		coordinator: coord,
		vector:      vec,
		watchdog:    wd,
		startedAt:   time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics(metrics))
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/livez", s.handleLivez)
	s.Router.Get("/readyz", s.handleReadyz)
	promHandler := promhttp.HandlerFor(telemetry.NewRegistry(metrics), promhttp.HandlerOpts{})
	s.Router.Handle(cfg.MetricsPath, promHandler)
	// /metrics stays mounted for scrapers that predate the configurable path.
	if cfg.MetricsPath != "/metrics" {
		s.Router.Handle("/metrics", deprecated(promHandler))
	}

	s.Router.Route("/api", func(r chi.Router) {
		r.Post("/v2/alerts", s.handlePostAlerts)
		r.Get("/health", s.handleHealth)
		r.Get("/watchdog", s.handleWatchdog)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/k8s/health", s.handleK8sHealth)
		r.Get("/k8s/circuit-breaker", s.handleK8sBreaker)
	})

	return s
}

// deprecated wraps a handler, adding a deprecation header before delegating.
func deprecated(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Deprecated", "use the configured metrics path instead")
		h.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleLivez(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.DB != nil {
		if err := s.DB.Ping(ctx); err != nil {
			s.Logger.Error("readiness check: database ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
			return
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handlePostAlerts implements POST /api/v2/alerts: a JSON array of push
// alerts, routed into the coordinator. Reply is 200 with an empty body.
func (s *Server) handlePostAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []alert.PushAlert
	if err := Decode(r, &alerts); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	for _, a := range alerts {
		if errs := Validate(a); len(errs) > 0 {
			RespondValidationError(w, errs)
			return
		}
	}

	s.coordinator.ReceiveAlerts(alerts, RequestIDFromContext(r.Context()))
	Respond(w, http.StatusOK, nil)
}

// argusState is the aggregated health snapshot GET /api/health returns.
type argusState struct {
	Status              string  `json:"status"`
	UptimeSeconds       int64   `json:"uptime_seconds"`
	VectorSize          int     `json:"vector_size"`
	LastAlertReceivedAt *string `json:"last_alert_received_at,omitempty"`
	K8sLayerStatus      string  `json:"k8s_layer_status"`
	K8sBreakerState     string  `json:"k8s_breaker_state"`
	WatchdogExpired     bool    `json:"watchdog_expired"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	k8sState := s.coordinator.LastK8sState()
	wdState := s.watchdog.State()

	resp := argusState{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		VectorSize:      len(s.vector.GetSnapshot()),
		K8sLayerStatus:  k8sState.Layer.String(),
		K8sBreakerState: s.coordinator.K8sBreakerState().String(),
		WatchdogExpired: wdState.Expired,
	}
	if k8sState.Layer != k8slayer.Healthy || wdState.Expired {
		resp.Status = "degraded"
	}
	if last := s.coordinator.LastAlertReceivedAt(); !last.IsZero() {
		formatted := last.UTC().Format(time.RFC3339)
		resp.LastAlertReceivedAt = &formatted
	}

	Respond(w, http.StatusOK, resp)
}

func (s *Server) handleWatchdog(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, s.watchdog.State())
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, s.vector.GetSnapshot())
}

func (s *Server) handleK8sHealth(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, s.coordinator.LastK8sState())
}

func (s *Server) handleK8sBreaker(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"state": s.coordinator.K8sBreakerState().String()})
}
