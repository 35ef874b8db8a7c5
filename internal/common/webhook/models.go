// internal/common/webhook/models.go
package webhook

// ResponseShape names the branch of the parser that produced a result.
type ResponseShape string

const (
	ShapeJSON     ResponseShape = "json"
	ShapeText     ResponseShape = "text"
	ShapeHTML     ResponseShape = "html"
	ShapeUnknown  ResponseShape = "unknown"
	ShapeFallback ResponseShape = "fallback"
)

// TargetAudience describes whom generated leads should match.
type TargetAudience struct {
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"companySize,omitempty"`
	JobTitle    string `json:"jobTitle,omitempty"`
	Location    string `json:"location,omitempty"`
	TechStack   string `json:"techStack,omitempty"`
}

// OutboundPayload is what callers hand to SendMessage. The request id and
// attempt counter are added by the client.
type OutboundPayload struct {
	PrimaryText    string          `json:"primaryText"`
	TargetAudience *TargetAudience `json:"targetAudience,omitempty"`
	// Timestamp is ISO-8601; the client stamps the current time when empty.
	Timestamp string      `json:"timestamp,omitempty"`
	LeadData  interface{} `json:"leadData,omitempty"`
}

// StructuredParameters are machine-usable search criteria extracted from a
// response or synthesized by the fallback generator.
type StructuredParameters struct {
	Industry       string `json:"industry"`
	JobTitle       string `json:"jobTitle"`
	Location       string `json:"location"`
	CompanySize    string `json:"companySize"`
	TechStack      string `json:"techStack,omitempty"`
	EstimatedLeads int    `json:"estimatedLeads,omitempty"`
}

type BatchEntry struct {
	Index      int    `json:"index"`
	Success    bool   `json:"success"`
	AnswerText string `json:"answerText,omitempty"`
	ErrorText  string `json:"errorText,omitempty"`
}

// Debug is always populated. It is meant for troubleshooting views, never
// for end users.
type Debug struct {
	RequestID         string `json:"requestId"`
	Attempts          int    `json:"attempts"`
	HTTPStatus        int    `json:"httpStatus,omitempty"`
	ContentType       string `json:"contentType,omitempty"`
	AnswerField       string `json:"answerField,omitempty"`
	RawResponse       string `json:"rawResponse,omitempty"`
	RawTruncated      bool   `json:"rawTruncated,omitempty"`
	Warning           string `json:"warning,omitempty"`
	FallbackActivated bool   `json:"fallbackActivated"`
	FallbackReason    string `json:"fallbackReason,omitempty"`
	OriginalError     string `json:"originalError,omitempty"`
	OriginalErrorCode string `json:"originalErrorCode,omitempty"`
	OriginalResponse  string `json:"originalResponse,omitempty"`
	DurationMs        int64  `json:"durationMs,omitempty"`
}

// InboundResult is the normalized outcome of one logical webhook request.
// For a given shape either AnswerText or Batch carries the answer, never both.
type InboundResult struct {
	Success              bool                  `json:"success"`
	Message              string                `json:"message"`
	AnswerText           string                `json:"answerText,omitempty"`
	StructuredParameters *StructuredParameters `json:"structuredParameters,omitempty"`
	Batch                []BatchEntry          `json:"batch,omitempty"`
	ResponseShape        ResponseShape         `json:"responseShape"`
	ErrorText            string                `json:"errorText,omitempty"`
	Debug                Debug                 `json:"debug"`
}
