// Package errors provides the error taxonomy shared by the webhook layer and
// the job workers, plus its mapping onto BPMN errors.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Webhook transport / response classification
const (
	ErrCodeWebhookTimeout       ErrorCode = "WEBHOOK_TIMEOUT"
	ErrCodeWebhookNetworkError  ErrorCode = "WEBHOOK_NETWORK_ERROR"
	ErrCodeWebhookServerError   ErrorCode = "WEBHOOK_SERVER_ERROR"
	ErrCodeWebhookClientError   ErrorCode = "WEBHOOK_CLIENT_ERROR"
	ErrCodeWebhookWorkflowError ErrorCode = "WEBHOOK_WORKFLOW_ERROR"
	ErrCodeWebhookInvalidURL    ErrorCode = "WEBHOOK_INVALID_URL"
	ErrCodeWebhookNotConfigured ErrorCode = "WEBHOOK_NOT_CONFIGURED"

	ErrCodeResponseParseFailed ErrorCode = "RESPONSE_PARSE_FAILED"
	ErrCodeResponseHTML        ErrorCode = "RESPONSE_HTML"
	ErrCodeResponseEmpty       ErrorCode = "RESPONSE_EMPTY"
)

// Worker-level failures
const (
	ErrCodeSettingsLookupFailed   ErrorCode = "SETTINGS_LOOKUP_FAILED"
	ErrCodeSearchQueryFailed      ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout          ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// BPMNError represents an error thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// Webhook constructors
// ==========================

// NewWebhookTimeoutError is raised when an attempt exceeds its deadline.
func NewWebhookTimeoutError(timeout time.Duration) *StandardError {
	return newError(ErrCodeWebhookTimeout, "Webhook request timed out",
		fmt.Sprintf("no response within %s", timeout), true)
}

// NewWebhookNetworkError wraps a transport failure (DNS, refused, reset).
func NewWebhookNetworkError(err error) *StandardError {
	return newError(ErrCodeWebhookNetworkError, "Webhook endpoint unreachable", err.Error(), true)
}

// NewWebhookServerError is a 5xx answer.
func NewWebhookServerError(status int) *StandardError {
	return newError(ErrCodeWebhookServerError, "Webhook endpoint returned a server error",
		fmt.Sprintf("HTTP %d", status), true).WithMetadata("httpStatus", status)
}

// NewWebhookClientError is a 4xx answer; retrying cannot help.
func NewWebhookClientError(status int) *StandardError {
	return newError(ErrCodeWebhookClientError, "Webhook endpoint rejected the request",
		fmt.Sprintf("HTTP %d", status), false).WithMetadata("httpStatus", status)
}

// NewWebhookWorkflowError is a 200 OK whose body reports a failed workflow run.
func NewWebhookWorkflowError(marker, excerpt string) *StandardError {
	return newError(ErrCodeWebhookWorkflowError, "Workflow reported an error in a successful response",
		excerpt, true).WithMetadata("marker", marker)
}

// NewWebhookInvalidURLError is raised before any request for a malformed URL.
func NewWebhookInvalidURLError(rawURL string, err error) *StandardError {
	details := rawURL
	if err != nil {
		details = fmt.Sprintf("%s: %v", rawURL, err)
	}
	return newError(ErrCodeWebhookInvalidURL, "Webhook URL is not a valid http(s) URL", details, false)
}

// NewWebhookNotConfiguredError is raised when no URL is configured for a channel.
func NewWebhookNotConfiguredError(channel string) *StandardError {
	return newError(ErrCodeWebhookNotConfigured, "No webhook URL configured",
		fmt.Sprintf("channel: %s", channel), false)
}

// NewResponseParseError wraps a body that could not be interpreted.
func NewResponseParseError(err error) *StandardError {
	return newError(ErrCodeResponseParseFailed, "Webhook response could not be parsed", err.Error(), true)
}

// NewResponseHTMLError flags an endpoint answering with a web page.
func NewResponseHTMLError() *StandardError {
	return newError(ErrCodeResponseHTML,
		"Webhook returned an HTML page instead of an API response; the URL is probably misconfigured",
		"check that the configured URL is the workflow's production webhook URL", false)
}

// NewResponseEmptyError flags an empty body.
func NewResponseEmptyError() *StandardError {
	return newError(ErrCodeResponseEmpty, "empty response", "", true)
}

// ==========================
// Worker constructors
// ==========================

func NewSettingsLookupError(channel string, err error) *StandardError {
	return newError(ErrCodeSettingsLookupFailed, "Webhook settings lookup failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

func NewSearchQueryFailedError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Lead search query failed", err.Error(), true)
}

func NewSearchTimeoutError(index string) *StandardError {
	return newError(ErrCodeSearchTimeout, "Lead search timed out", fmt.Sprintf("index: %s", index), true)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Job variables failed validation", details, false)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Alert delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true)
}

// ==========================
// BPMN mapping
// ==========================

// GetRetryCount returns how many job retries a code is worth.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSettingsLookupFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeSearchTimeout,
		ErrCodeWebhookTimeout,
		ErrCodeWebhookNetworkError,
		ErrCodeWebhookServerError:
		return 2
	case ErrCodeWebhookWorkflowError,
		ErrCodeResponseParseFailed,
		ErrCodeResponseEmpty:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError maps a StandardError to its BPMN counterpart.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"errorCategory":     GetErrorCategory(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory groups codes for dashboards and log filters.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "WEBHOOK_"):
		return "WEBHOOK"
	case strings.HasPrefix(codeStr, "RESPONSE_"):
		return "RESPONSE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "SETTINGS"):
		return "SETTINGS"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
