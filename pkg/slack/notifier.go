package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier mirrors NOC decisions into a Slack channel for human visibility.
// It is a secondary, best-effort sink: nothing in the NOC dispatch pipeline
// waits on it or retries it.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// is a noop: IsEnabled reports false and every Post call returns immediately.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled returns true if the notifier has a valid Slack client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostDecision posts a best-effort notification describing a NOC dispatch
// decision ("CREATE", "CANCEL", "UNKNOWN"). Errors are logged,
// never returned; a Slack outage must not affect alert dispatch.
func (n *Notifier) PostDecision(ctx context.Context, alert AlertInfo, action string) {
	if !n.IsEnabled() {
		return
	}

	blocks := DecisionBlocks(alert, action)
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(fmt.Sprintf("%s %s: %s", PriorityEmoji(alert.Priority), action, alert.Name), false),
	}

	if _, _, err := n.client.PostMessageContext(ctx, n.channel, opts...); err != nil {
		n.logger.Warn("posting noc decision to slack", "error", err, "fingerprint", alert.Fingerprint)
	}
}
