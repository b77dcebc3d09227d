package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// PriorityEmoji returns the emoji prefix for a given alert priority. Lower
// priority values are more severe, matching the alerts vector ordering.
func PriorityEmoji(priority int) string {
	switch {
	case priority < 0:
		return "🔴"
	case priority == 0:
		return "🟠"
	case priority <= 5:
		return "🟡"
	default:
		return "🔵"
	}
}

// DecisionBlocks builds Slack Block Kit blocks for a NOC decision
// notification: a best-effort, human-facing mirror of what was just sent
// to the NOC endpoint.
func DecisionBlocks(alert AlertInfo, action string) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s %s: %s", PriorityEmoji(alert.Priority), action, alert.Name), true, false),
	)

	var fields []*goslack.TextBlockObject
	if alert.Source != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Source:* %s", alert.Source), false, false))
	}
	if alert.Fingerprint != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Fingerprint:* %s", alert.Fingerprint), false, false))
	}
	if alert.CorrelationID != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Correlation:* %s", alert.CorrelationID), false, false))
	}

	blocks := []goslack.Block{header}
	if len(fields) > 0 {
		blocks = append(blocks, goslack.NewSectionBlock(nil, fields, nil))
	}
	if alert.Summary != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncate(alert.Summary, 500), false, false),
			nil, nil,
		))
	}
	return blocks
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
