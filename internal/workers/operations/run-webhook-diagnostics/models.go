// internal/workers/operations/run-webhook-diagnostics/models.go
package runwebhookdiagnostics

import "leadgen-workers/internal/common/diagnostics"

type Input struct {
	Channel string `json:"channel,omitempty"`
	URL     string `json:"url,omitempty"`
}

type Output struct {
	diagnostics.Report
	Alerted bool `json:"alerted"`
}
