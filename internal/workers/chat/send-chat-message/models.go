// internal/workers/chat/send-chat-message/models.go
package sendchatmessage

import "leadgen-workers/internal/common/webhook"

type Input struct {
	Message        string                  `json:"message"`
	Channel        string                  `json:"channel,omitempty"`
	WebhookURL     string                  `json:"webhookUrl,omitempty"`
	TargetAudience *webhook.TargetAudience `json:"targetAudience,omitempty"`
}

// Output is the normalized webhook result plus the channel it was sent on.
type Output struct {
	webhook.InboundResult
	Channel string `json:"channel"`
}
