// internal/common/webhook/parser.go
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	apperrors "leadgen-workers/internal/common/errors"
	commonhttp "leadgen-workers/internal/common/http"
)

const (
	// WorkflowStartedLiteral is what asynchronous workflows answer with
	// before any result exists.
	WorkflowStartedLiteral = "Workflow was started"

	workflowStartedAnswer  = "The workflow was started but returned no direct answer. Results will arrive asynchronously."
	workflowStartedWarning = "workflow started without a direct answer"

	// maxBodyBytes bounds how much of a response body is read at all.
	maxBodyBytes = 4 << 20
)

// Parser turns one raw HTTP response into an InboundResult. It never
// returns an error; every branch yields a usable result.
type Parser struct {
	maxRaw int
}

// NewParser keeps at most maxRaw bytes of the body in Debug.RawResponse.
// maxRaw <= 0 keeps the whole body.
func NewParser(maxRaw int) *Parser {
	return &Parser{maxRaw: maxRaw}
}

func (p *Parser) Parse(resp *http.Response, requestID string) InboundResult {
	if resp == nil {
		return InboundResult{
			Success:       false,
			Message:       "no response",
			ResponseShape: ShapeUnknown,
			ErrorText:     "no response",
			Debug:         Debug{RequestID: requestID},
		}
	}
	var raw []byte
	var readErr error
	if resp.Body != nil {
		raw, _, readErr = commonhttp.ReadLimited(resp.Body, maxBodyBytes)
	}
	if readErr != nil {
		cause := apperrors.NewResponseParseError(readErr)
		return p.failure(ShapeUnknown, cause, Debug{
			RequestID:  requestID,
			HTTPStatus: resp.StatusCode,
		})
	}
	res, _ := p.parseBody(resp.StatusCode, resp.Header.Get("Content-Type"), raw, requestID)
	return res
}

// parseBody is Parse on an already read body. The returned error classifies
// unsuccessful results for the client's retry policy; it is nil on success.
func (p *Parser) parseBody(status int, contentType string, raw []byte, requestID string) (InboundResult, *apperrors.StandardError) {
	debug := Debug{
		RequestID:   requestID,
		HTTPStatus:  status,
		ContentType: contentType,
	}
	debug.RawResponse, debug.RawTruncated = truncate(string(raw), p.maxRaw)

	mediaType := mediaTypeOf(contentType)
	trimmed := bytes.TrimSpace(raw)

	var (
		res   InboundResult
		cause *apperrors.StandardError
	)
	switch {
	case mediaType == "text/html" || (!isJSONMediaType(mediaType) && looksLikeHTML(trimmed)):
		cause = apperrors.NewResponseHTMLError()
		res = p.failure(ShapeHTML, cause, debug)
	case len(trimmed) == 0:
		cause = apperrors.NewResponseEmptyError()
		res = p.failure(ShapeText, cause, debug)
	case isJSONMediaType(mediaType):
		var value interface{}
		if err := decodeJSON(trimmed, &value); err != nil {
			cause = apperrors.NewResponseParseError(err)
			res = p.failure(ShapeUnknown, cause, debug)
			break
		}
		res, cause = p.handleJSON(value, debug)
	default:
		res, cause = p.handleText(string(trimmed), debug)
	}

	if cause == nil && status != 0 && (status < 200 || status >= 300) {
		cause = apperrors.NewWebhookClientError(status)
		if status >= 500 {
			cause = apperrors.NewWebhookServerError(status)
		}
		res.Success = false
		res.ErrorText = fmt.Sprintf("endpoint answered HTTP %d", status)
		res.Message = res.ErrorText
	}
	return res, cause
}

func (p *Parser) failure(shape ResponseShape, cause *apperrors.StandardError, debug Debug) InboundResult {
	text := cause.Message
	if cause.Code == apperrors.ErrCodeResponseParseFailed {
		text = fmt.Sprintf("%s: %s", cause.Message, cause.Details)
	}
	return InboundResult{
		Success:       false,
		Message:       text,
		ResponseShape: shape,
		ErrorText:     text,
		Debug:         debug,
	}
}

// ==========================
// Text shape
// ==========================

func (p *Parser) handleText(text string, debug Debug) (InboundResult, *apperrors.StandardError) {
	// mislabelled JSON documents, arrays included
	if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var value interface{}
		if err := decodeJSON([]byte(trimmed), &value); err == nil {
			return p.handleJSON(value, debug)
		}
	}
	if embedded, ok := extractEmbeddedJSON(text); ok {
		var value interface{}
		if err := decodeJSON([]byte(embedded), &value); err == nil {
			return p.handleJSON(value, debug)
		}
	}

	text = strings.ToValidUTF8(strings.TrimSpace(text), "�")
	if text == "" {
		cause := apperrors.NewResponseEmptyError()
		return p.failure(ShapeText, cause, debug), cause
	}

	if isWorkflowStarted(text) {
		debug.Warning = workflowStartedWarning
		return InboundResult{
			Success:       true,
			Message:       workflowStartedWarning,
			AnswerText:    workflowStartedAnswer,
			ResponseShape: ShapeText,
			Debug:         debug,
		}, nil
	}

	return InboundResult{
		Success:       true,
		Message:       "text response received",
		AnswerText:    text,
		ResponseShape: ShapeText,
		Debug:         debug,
	}, nil
}

func isWorkflowStarted(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, strings.ToLower(WorkflowStartedLiteral)) || strings.Contains(lower, "started")
}

// maxEmbeddedCandidates bounds how many '{' positions are tried, so a body
// full of unbalanced braces costs a few linear scans at most.
const maxEmbeddedCandidates = 8

// extractEmbeddedJSON returns the first brace-balanced {...} span of text
// that is valid JSON. Braces inside string literals are ignored.
func extractEmbeddedJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	for tried := 0; start >= 0 && tried < maxEmbeddedCandidates; tried++ {
		if end := matchBrace(text, start); end > start {
			if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ==========================
// JSON shape
// ==========================

func (p *Parser) handleJSON(value interface{}, debug Debug) (InboundResult, *apperrors.StandardError) {
	switch v := value.(type) {
	case map[string]interface{}:
		if items, ok := v["batchResults"].([]interface{}); ok {
			if len(items) == 0 {
				cause := apperrors.NewResponseEmptyError()
				return p.failure(ShapeJSON, cause, debug), cause
			}
			return p.batchResult(items, v, debug), nil
		}
		return p.singleResult(v, debug)
	case []interface{}:
		if isBatchArray(v) {
			return p.batchResult(v, nil, debug), nil
		}
		return p.singleResult(map[string]interface{}{"data": v}, debug)
	case string:
		return p.handleText(v, debug)
	case nil:
		cause := apperrors.NewResponseEmptyError()
		return p.failure(ShapeJSON, cause, debug), cause
	default:
		return p.handleText(fmt.Sprint(v), debug)
	}
}

func isBatchArray(items []interface{}) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(map[string]interface{})
	if !ok {
		return false
	}
	for _, name := range batchAnswerFields {
		if _, ok := first[name]; ok {
			return true
		}
	}
	return false
}

func (p *Parser) singleResult(obj map[string]interface{}, debug Debug) (InboundResult, *apperrors.StandardError) {
	res := InboundResult{
		Success:              true,
		Message:              "response received",
		ResponseShape:        ShapeJSON,
		StructuredParameters: structuredParameters(obj),
	}

	if answer, path, ok := extractAnswer(obj); ok {
		res.AnswerText = answer
		debug.AnswerField = path
	} else {
		res.AnswerText = fmt.Sprintf("request %s processed, no recognizable answer field", debug.RequestID)
		if s, _ := obj["response"].(string); s == WorkflowStartedLiteral {
			debug.Warning = workflowStartedWarning
		}
	}

	res.Debug = debug
	if flag, present := obj["success"].(bool); present && !flag {
		res.Success = false
		res.ErrorText = firstString(obj, "error", "errorMessage")
		if res.ErrorText == "" {
			res.ErrorText = "endpoint reported success=false"
		}
		res.Message = res.ErrorText
		return res, apperrors.NewWebhookWorkflowError("success=false", res.ErrorText)
	}
	return res, nil
}

func (p *Parser) batchResult(items []interface{}, envelope map[string]interface{}, debug Debug) InboundResult {
	batch := make([]BatchEntry, 0, len(items))
	failed := 0
	for pos, item := range items {
		entry := BatchEntry{Index: pos, Success: true}
		obj, ok := item.(map[string]interface{})
		if !ok {
			if s, isString := item.(string); isString {
				entry.AnswerText = s
			}
			batch = append(batch, entry)
			continue
		}
		if idx, ok := intValue(obj["index"]); ok {
			entry.Index = idx
		}
		if s, present := obj["success"].(bool); present {
			entry.Success = s
		}
		entry.AnswerText = firstString(obj, batchAnswerFields...)
		entry.ErrorText = firstString(obj, "error", "errorMessage")
		if !entry.Success {
			failed++
		}
		batch = append(batch, entry)
	}

	res := InboundResult{
		Success:       true,
		Message:       fmt.Sprintf("batch processed: %d results, %d failed", len(batch), failed),
		Batch:         batch,
		ResponseShape: ShapeJSON,
		Debug:         debug,
	}
	if envelope != nil {
		res.StructuredParameters = structuredParameters(envelope)
	}
	return res
}

// ==========================
// Answer candidates
// ==========================

// batchAnswerFields is the preference order for per-entry answers.
var batchAnswerFields = []string{"aiResponse", "ai_response", "response", "output"}

// answerFields is the preference order for single-object answers.
var answerFields = []string{"aiResponse", "ai_response", "response", "output", "result", "message"}

// answerCandidate is one (fieldPath, extractor) entry of the answer
// precedence list.
type answerCandidate struct {
	path    string
	extract func(obj map[string]interface{}) (string, bool)
}

var answerCandidates = buildAnswerCandidates()

// buildAnswerCandidates lists the top-level fields, then data[0].*, then
// data.*, each scope in answerFields order.
func buildAnswerCandidates() []answerCandidate {
	scopes := []struct {
		prefix  string
		resolve func(obj map[string]interface{}) (map[string]interface{}, bool)
	}{
		{"", func(obj map[string]interface{}) (map[string]interface{}, bool) { return obj, true }},
		{"data[0].", func(obj map[string]interface{}) (map[string]interface{}, bool) {
			arr, ok := obj["data"].([]interface{})
			if !ok || len(arr) == 0 {
				return nil, false
			}
			first, ok := arr[0].(map[string]interface{})
			return first, ok
		}},
		{"data.", func(obj map[string]interface{}) (map[string]interface{}, bool) {
			nested, ok := obj["data"].(map[string]interface{})
			return nested, ok
		}},
	}

	var out []answerCandidate
	for _, scope := range scopes {
		for _, field := range answerFields {
			out = append(out, answerCandidate{
				path: scope.prefix + field,
				extract: func(obj map[string]interface{}) (string, bool) {
					target, ok := scope.resolve(obj)
					if !ok {
						return "", false
					}
					s, ok := target[field].(string)
					if !ok || strings.TrimSpace(s) == "" {
						return "", false
					}
					if field == "response" && s == WorkflowStartedLiteral {
						return "", false
					}
					return s, true
				},
			})
		}
	}
	return out
}

// extractAnswer returns the first non-empty candidate and its path.
func extractAnswer(obj map[string]interface{}) (string, string, bool) {
	for _, c := range answerCandidates {
		if s, ok := c.extract(obj); ok {
			return s, c.path, true
		}
	}
	return "", "", false
}

func structuredParameters(obj map[string]interface{}) *StructuredParameters {
	raw, ok := obj["searchParameters"].(map[string]interface{})
	if !ok {
		return nil
	}
	params := &StructuredParameters{
		Industry:    stringValue(raw["industry"]),
		JobTitle:    stringValue(raw["jobTitle"]),
		Location:    stringValue(raw["location"]),
		CompanySize: stringValue(raw["companySize"]),
		TechStack:   stringValue(raw["techStack"]),
	}
	if n, ok := intValue(raw["estimatedLeads"]); ok {
		params.EstimatedLeads = n
	}
	return params
}

// ==========================
// Helpers
// ==========================

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after top-level JSON value")
	}
	return nil
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

func isJSONMediaType(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func looksLikeHTML(body []byte) bool {
	if len(body) > 64 {
		body = body[:64]
	}
	lower := bytes.ToLower(body)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

func firstString(obj map[string]interface{}, fields ...string) string {
	for _, f := range fields {
		if s, ok := obj[f].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func intValue(v interface{}) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	cut := limit
	// do not split a UTF-8 sequence
	for cut > 0 && cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut], true
}
