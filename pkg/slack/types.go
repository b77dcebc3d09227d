package slack

// AlertInfo holds the data needed to build a Slack notification for a NOC
// decision. It mirrors the fields on alert.Alert that matter for a
// human-facing summary and intentionally excludes the raw payload.
type AlertInfo struct {
	Fingerprint   string
	Name          string
	Summary       string
	Priority      int
	Source        string
	CorrelationID string
}
