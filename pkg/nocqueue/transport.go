package nocqueue

import (
	"context"
	"errors"

	"github.com/wisbric/argusd/pkg/alert"
	"github.com/wisbric/argusd/pkg/nocclient"
)

// Poster is the subset of nocclient.Client the HTTP transport needs.
type Poster interface {
	Post(ctx context.Context, msg nocclient.Message) error
}

// HTTPTransport implements Transport by translating vector alerts into the
// egress nocclient.Message wire shape and POSTing them.
type HTTPTransport struct {
	client Poster
	source string
}

// NewHTTPTransport creates an HTTPTransport. source is the fixed "source"
// field attached to every outgoing message.
func NewHTTPTransport(client Poster, source string) *HTTPTransport {
	return &HTTPTransport{client: client, source: source}
}

func (t *HTTPTransport) toMessage(a alert.Alert, correlationID string) nocclient.Message {
	msg := nocclient.Message{
		Priority:      a.Priority,
		Name:          a.Name,
		Summary:       a.Summary,
		Description:   a.Description,
		Payload:       a.Payload,
		Source:        t.source,
		CorrelationID: correlationID,
		Timestamp:     a.Timestamp,
	}
	if a.SuppressWindow != nil {
		msg.SuppressWindow = a.SuppressWindow.String()
	}
	return msg
}

// PostAlert sends one alert as a single NOC message.
func (t *HTTPTransport) PostAlert(ctx context.Context, a alert.Alert, correlationID string) error {
	return t.client.Post(ctx, t.toMessage(a, correlationID))
}

// PostCancels sends each alert in the batch as its own NOC message; the
// wire protocol has no batch shape. Every alert is attempted, and the
// errors are joined so the caller sees every failure.
func (t *HTTPTransport) PostCancels(ctx context.Context, alerts []alert.Alert, correlationID string) error {
	var errs []error
	for _, a := range alerts {
		if err := t.client.Post(ctx, t.toMessage(a, correlationID)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
