// internal/workers/leads/verify-lead-emails/models.go
package verifyleademails

import "leadgen-workers/internal/common/webhook"

type Input struct {
	Leads   []map[string]interface{} `json:"leads"`
	Channel string                   `json:"channel,omitempty"`
}

// LeadVerification pairs a batch entry with the lead it was sent for.
type LeadVerification struct {
	Index   int    `json:"index"`
	LeadID  string `json:"leadId,omitempty"`
	Email   string `json:"email,omitempty"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

type Output struct {
	Result        webhook.InboundResult `json:"result"`
	Verifications []LeadVerification    `json:"verifications"`
	Verified      int                   `json:"verified"`
	Failed        int                   `json:"failed"`
	// Pending counts leads the workflow returned no entry for, including
	// every lead when the call fell back.
	Pending int `json:"pending"`
}
