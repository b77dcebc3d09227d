// Package listener implements the pupil sidecar's ingress HTTP(S)
// endpoint: a single typed JSON request accepted at a configured path,
// optionally guarded by an API key header, dispatched to the event
// registry for asynchronous handling.
package listener

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/pkcs12"

	"github.com/wisbric/argusd/pkg/pupil/events"
)

// Config holds the listener's bind, TLS and auth settings.
type Config struct {
	Port                int
	UseHTTPS            bool
	CertificatePath     string
	CertificatePassword string
	EndpointPath        string
	APIKey              string
}

// Addr returns the bind address for this listener.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Dispatcher is the subset of events.Registry the listener needs.
type Dispatcher interface {
	Submit(ctx context.Context, msg events.Message) error
}

// Request is the JSON body accepted at Config.EndpointPath.
type Request struct {
	MessageType    events.MessageType `json:"messageType"`
	CorrelationID  string             `json:"correlationId"`
	Timestamp      time.Time          `json:"timestamp"`
	NocDetails     json.RawMessage    `json:"nocDetails"`
	TimeoutSeconds *int               `json:"timeoutSeconds,omitempty"`
}

// Response is the standard reply shape for every listener request.
type Response struct {
	Accepted      bool      `json:"accepted"`
	CorrelationID string    `json:"correlationId"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// submitTimeout bounds how long the listener waits for the dispatcher's
// bounded queue before replying 500; the listener must not hang a caller
// behind event-handler backpressure indefinitely.
const submitTimeout = 5 * time.Second

// Listener is the pupil's HTTP(S) ingress server.
type Listener struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
	router     *chi.Mux
}

// New creates a Listener. Call Run to serve.
func New(cfg Config, dispatcher Dispatcher, logger *slog.Logger) *Listener {
	l := &Listener{cfg: cfg, dispatcher: dispatcher, logger: logger, router: chi.NewRouter()}
	l.router.Get("/health", l.handleHealth)
	l.router.Post(cfg.EndpointPath, l.handleMessage)
	return l
}

// ServeHTTP implements http.Handler.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l.router.ServeHTTP(w, r)
}

// Run blocks serving HTTP (or HTTPS, if configured) until ctx is cancelled,
// then shuts down gracefully.
func (l *Listener) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         l.cfg.Addr(),
		Handler:      l,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if l.cfg.UseHTTPS {
		tlsCfg, err := LoadTLSConfig(l.cfg)
		if err != nil {
			return fmt.Errorf("loading pupil listener TLS config: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if l.cfg.UseHTTPS {
			l.logger.Info("pupil listener listening (https)", "addr", l.cfg.Addr(), "path", l.cfg.EndpointPath)
			err = srv.ListenAndServeTLS("", "")
		} else {
			l.logger.Info("pupil listener listening (http)", "addr", l.cfg.Addr(), "path", l.cfg.EndpointPath)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("pupil listener: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (l *Listener) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (l *Listener) handleMessage(w http.ResponseWriter, r *http.Request) {
	if l.cfg.APIKey != "" && r.Header.Get("X-API-Key") != l.cfg.APIKey {
		respond(w, http.StatusUnauthorized, Response{Message: "invalid API key", Timestamp: time.Now()})
		return
	}

	var req Request
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, Response{Message: "invalid JSON body", Timestamp: time.Now()})
		return
	}

	switch req.MessageType {
	case events.Heartbeat, events.SendNocMessage:
	default:
		respond(w, http.StatusBadRequest, Response{
			CorrelationID: req.CorrelationID,
			Message:       fmt.Sprintf("unknown messageType %q", req.MessageType),
			Timestamp:     time.Now(),
		})
		return
	}

	msg := events.Message{
		Type:          req.MessageType,
		CorrelationID: req.CorrelationID,
		Timestamp:     req.Timestamp,
		NocDetails:    req.NocDetails,
	}
	if req.TimeoutSeconds != nil {
		msg.Timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()
	if err := l.dispatcher.Submit(ctx, msg); err != nil {
		l.logger.Error("submitting pupil event", "error", err, "correlation_id", req.CorrelationID)
		respond(w, http.StatusInternalServerError, Response{
			CorrelationID: req.CorrelationID,
			Message:       "internal error",
			Timestamp:     time.Now(),
		})
		return
	}

	respond(w, http.StatusOK, Response{
		Accepted:      true,
		CorrelationID: req.CorrelationID,
		Message:       "accepted",
		Timestamp:     time.Now(),
	})
}

func respond(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// LoadTLSConfig builds a *tls.Config from cfg's certificate. A ".p12" or
// ".pfx" extension loads a PKCS#12 bundle (CertificatePassword required);
// any other extension is treated as a PEM certificate with its private key
// at the same path, extension replaced by ".key".
func LoadTLSConfig(cfg Config) (*tls.Config, error) {
	ext := strings.ToLower(filepath.Ext(cfg.CertificatePath))
	if ext == ".p12" || ext == ".pfx" {
		return loadPKCS12(cfg.CertificatePath, cfg.CertificatePassword)
	}
	return loadPEM(cfg.CertificatePath)
}

func loadPKCS12(path, password string) (*tls.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pkcs12 certificate: %w", err)
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decoding pkcs12 certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.Raw},
			PrivateKey:  key,
			Leaf:        cert,
		}},
	}, nil
}

func loadPEM(certPath string) (*tls.Config, error) {
	keyPath := strings.TrimSuffix(certPath, filepath.Ext(certPath)) + ".key"
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading PEM certificate: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
