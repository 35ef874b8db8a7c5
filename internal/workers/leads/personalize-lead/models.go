// internal/workers/leads/personalize-lead/models.go
package personalizelead

import "leadgen-workers/internal/common/webhook"

type Input struct {
	LeadID      string                 `json:"leadId"`
	LeadData    map[string]interface{} `json:"leadData"`
	Instruction string                 `json:"instruction,omitempty"`
	Channel     string                 `json:"channel,omitempty"`
}

type Output struct {
	LeadID string `json:"leadId"`
	// PersonalizedText is empty when the workflow failed and the result
	// only carries a fallback answer.
	PersonalizedText string                `json:"personalizedText,omitempty"`
	Result           webhook.InboundResult `json:"result"`
}
