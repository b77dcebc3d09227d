// Package pupil wires the sidecar's own watchdog (distinct from the
// coordinator's) to the event registry and the NOC client: a Heartbeat
// message resets the watchdog and remembers the NOC details to send on
// expiry; a SendNocMessage posts immediately; an expiry posts the
// remembered details asynchronously.
package pupil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/argusd/pkg/nocclient"
	"github.com/wisbric/argusd/pkg/pupil/events"
	"github.com/wisbric/argusd/pkg/watchdog"
)

// NocPoster is the subset of pupil/nocclient.Client the sidecar needs.
type NocPoster interface {
	Send(ctx context.Context, msg nocclient.Message, sendToNoc bool, correlationID string) error
}

// expiryPostTimeout bounds the asynchronous NOC POST triggered by watchdog
// expiry, since it runs detached from any caller's request context.
const expiryPostTimeout = 30 * time.Second

// nocDetails is the wire shape of the Heartbeat/SendNocMessage request's
// nocDetails field: the NOC message content, minus the fields (source,
// correlationId, timestamp) the sidecar itself supplies.
type nocDetails struct {
	Priority       int    `json:"priority"`
	Name           string `json:"name"`
	Summary        string `json:"summary"`
	Description    string `json:"description"`
	Payload        string `json:"payload"`
	SuppressWindow string `json:"suppressWindow,omitempty"`
}

// Sidecar owns the pupil's watchdog and NOC dispatch: its handlers are
// registered onto an events.Registry fed by the listener.
type Sidecar struct {
	wd     *watchdog.Watchdog
	noc    NocPoster
	source string
	logger *slog.Logger

	mu                   sync.Mutex
	pendingNocDetails    json.RawMessage
	pendingCorrelationID string
}

// NewSidecar creates a Sidecar and its watchdog. crashRecovery selects the
// watchdog's boot grace period.
func NewSidecar(cfg watchdog.Config, crashRecovery bool, noc NocPoster, source string, logger *slog.Logger) *Sidecar {
	s := &Sidecar{noc: noc, source: source, logger: logger}
	s.wd = watchdog.New(cfg, crashRecovery, s.onExpire, nil, logger)
	return s
}

// Start arms the watchdog's initial expiry timer.
func (s *Sidecar) Start() { s.wd.Start() }

// Stop cancels any armed watchdog timer.
func (s *Sidecar) Stop() { s.wd.Stop() }

// State returns the watchdog's current condition.
func (s *Sidecar) State() watchdog.State { return s.wd.State() }

// RegisterHandlers wires the sidecar's Heartbeat and SendNocMessage
// handlers onto r.
func (s *Sidecar) RegisterHandlers(r *events.Registry) {
	r.On(events.Heartbeat, s.handleHeartbeat)
	r.On(events.SendNocMessage, s.handleSendNocMessage)
}

// handleHeartbeat resets the watchdog (honoring a per-message timeout
// override) and remembers nocDetails as what to send if the next heartbeat
// never arrives.
func (s *Sidecar) handleHeartbeat(_ context.Context, msg events.Message) error {
	s.wd.RecordHeartbeatWithTimeout(msg.Timeout)

	s.mu.Lock()
	s.pendingNocDetails = msg.NocDetails
	s.pendingCorrelationID = msg.CorrelationID
	s.mu.Unlock()
	return nil
}

// handleSendNocMessage posts msg.NocDetails to NOC immediately.
func (s *Sidecar) handleSendNocMessage(ctx context.Context, msg events.Message) error {
	noc, err := buildNocMessage(msg.NocDetails, s.source, msg.CorrelationID)
	if err != nil {
		return err
	}
	return s.noc.Send(ctx, noc, true, msg.CorrelationID)
}

// onExpire is the watchdog's expiry callback: it posts the most recently
// remembered heartbeat's nocDetails to NOC. It runs detached from any HTTP
// request, so it carries its own timeout.
func (s *Sidecar) onExpire() {
	s.mu.Lock()
	details := s.pendingNocDetails
	corrID := s.pendingCorrelationID
	s.mu.Unlock()

	if len(details) == 0 {
		s.logger.Warn("pupil watchdog expired with no prior heartbeat nocDetails to send")
		return
	}

	noc, err := buildNocMessage(details, s.source, corrID)
	if err != nil {
		s.logger.Error("pupil watchdog expiry: invalid stored nocDetails", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), expiryPostTimeout)
	defer cancel()
	if err := s.noc.Send(ctx, noc, true, corrID); err != nil {
		s.logger.Error("pupil watchdog expiry noc send failed", "error", err, "correlation_id", corrID)
	}
}

func buildNocMessage(raw json.RawMessage, source, correlationID string) (nocclient.Message, error) {
	if len(raw) == 0 {
		return nocclient.Message{}, fmt.Errorf("missing nocDetails")
	}
	var d nocDetails
	if err := json.Unmarshal(raw, &d); err != nil {
		return nocclient.Message{}, fmt.Errorf("decoding nocDetails: %w", err)
	}
	return nocclient.Message{
		Priority:       d.Priority,
		Name:           d.Name,
		Summary:        d.Summary,
		Description:    d.Description,
		Payload:        d.Payload,
		Source:         source,
		SuppressWindow: d.SuppressWindow,
		CorrelationID:  correlationID,
		Timestamp:      time.Now(),
	}, nil
}
