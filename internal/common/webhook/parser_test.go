package webhook

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "leadgen-workers/internal/common/errors"
)

func newResponse(status int, contentType, body string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParse_NeverFails(t *testing.T) {
	bodies := []string{
		"",
		"   ",
		"{",
		"{\"aiResponse\":",
		"[]",
		"null",
		"42",
		"true",
		"\xff\xfe\xfd binary",
		"<html><body>x</body></html>",
		"{\"data\":[1,2,3]}",
		"{\"batchResults\":\"nope\"}",
		"some text {\"broken\": } more",
	}
	statuses := []int{200, 201, 204, 301, 400, 404, 500, 503}
	contentTypes := []string{"", "application/json", "application/json; charset=utf-8", "text/plain", "text/html", "application/octet-stream", ";;;"}

	p := NewParser(64)
	for _, status := range statuses {
		for _, ct := range contentTypes {
			for _, body := range bodies {
				res := p.Parse(newResponse(status, ct, body), "req-1")
				assert.NotEmpty(t, res.Message, "status=%d ct=%q body=%q", status, ct, body)
				assert.NotEmpty(t, res.ResponseShape)
				assert.Equal(t, "req-1", res.Debug.RequestID)
				assert.False(t, res.AnswerText != "" && len(res.Batch) > 0, "answer and batch both set")
				if !res.Success {
					assert.NotEmpty(t, res.ErrorText)
				}
			}
		}
	}

	assert.False(t, p.Parse(nil, "req-1").Success)
}

func TestParse_AIResponse(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "application/json", `{"aiResponse":"X"}`), "r")
	assert.True(t, res.Success)
	assert.Equal(t, "X", res.AnswerText)
	assert.Equal(t, ShapeJSON, res.ResponseShape)
	assert.Equal(t, "aiResponse", res.Debug.AnswerField)
	assert.Nil(t, res.StructuredParameters)
}

func TestParse_AnswerPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  string
		field string
	}{
		{"aiResponse beats output", `{"output":"o","aiResponse":"a"}`, "a", "aiResponse"},
		{"snake case", `{"ai_response":"s","result":"r"}`, "s", "ai_response"},
		{"response", `{"response":"resp","output":"o"}`, "resp", "response"},
		{"response workflow started skipped", `{"response":"Workflow was started","output":"o"}`, "o", "output"},
		{"result", `{"result":"r","message":"m"}`, "r", "result"},
		{"message string", `{"message":"m"}`, "m", "message"},
		{"message non string ignored", `{"message":{"text":"m"},"data":{"output":"d"}}`, "d", "data.output"},
		{"empty string ignored", `{"aiResponse":"  ","output":"o"}`, "o", "output"},
		{"data array", `{"data":[{"response":"first"},{"response":"second"}]}`, "first", "data[0].response"},
		{"data object", `{"data":{"aiResponse":"nested"}}`, "nested", "data.aiResponse"},
		{"top level beats nested", `{"message":"top","data":{"aiResponse":"nested"}}`, "top", "message"},
	}

	p := NewParser(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Parse(newResponse(200, "application/json", tt.body), "r")
			require.True(t, res.Success)
			assert.Equal(t, tt.want, res.AnswerText)
			assert.Equal(t, tt.field, res.Debug.AnswerField)
		})
	}
}

func TestParse_NoAnswerField(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "application/json", `{"status":"ok"}`), "req-42")
	assert.True(t, res.Success)
	assert.Equal(t, "request req-42 processed, no recognizable answer field", res.AnswerText)

	started := NewParser(0).Parse(newResponse(200, "application/json", `{"response":"Workflow was started"}`), "req-43")
	assert.True(t, started.Success)
	assert.Contains(t, started.AnswerText, "req-43")
	assert.NotEmpty(t, started.Debug.Warning)
}

func TestParse_SearchParameters(t *testing.T) {
	body := `{"aiResponse":"found","searchParameters":{"industry":"SaaS","jobTitle":"CTO","location":"Berlin","companySize":"11-50","techStack":["Go","Kubernetes"],"estimatedLeads":120}}`
	res := NewParser(0).Parse(newResponse(200, "application/json", body), "r")
	require.NotNil(t, res.StructuredParameters)
	assert.Equal(t, StructuredParameters{
		Industry:       "SaaS",
		JobTitle:       "CTO",
		Location:       "Berlin",
		CompanySize:    "11-50",
		TechStack:      "Go, Kubernetes",
		EstimatedLeads: 120,
	}, *res.StructuredParameters)
}

func TestParse_Batch(t *testing.T) {
	body := `{"batchResults":[{"aiResponse":"a","index":0},{"aiResponse":"b","index":1,"success":false}]}`
	res := NewParser(0).Parse(newResponse(200, "application/json", body), "r")

	require.Len(t, res.Batch, 2)
	assert.True(t, res.Success)
	assert.Equal(t, ShapeJSON, res.ResponseShape)
	assert.Empty(t, res.AnswerText)
	assert.Equal(t, BatchEntry{Index: 0, Success: true, AnswerText: "a"}, res.Batch[0])
	assert.Equal(t, 1, res.Batch[1].Index)
	assert.False(t, res.Batch[1].Success)
	assert.Equal(t, "b", res.Batch[1].AnswerText)
}

func TestParse_BareArrayBatch(t *testing.T) {
	body := `[{"output":"x","error":"ignored"},{"ai_response":"y"},{"success":false,"errorMessage":"bounce"}]`
	res := NewParser(0).Parse(newResponse(200, "application/json", body), "r")

	require.Len(t, res.Batch, 3)
	assert.Equal(t, "x", res.Batch[0].AnswerText)
	assert.Equal(t, "y", res.Batch[1].AnswerText)
	assert.Equal(t, 2, res.Batch[2].Index)
	assert.False(t, res.Batch[2].Success)
	assert.Equal(t, "bounce", res.Batch[2].ErrorText)
}

func TestParse_ArrayWithoutAnswerFieldsIsNotBatch(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "application/json", `[{"message":"hello"}]`), "r")
	assert.Empty(t, res.Batch)
	assert.Equal(t, "hello", res.AnswerText)
	assert.Equal(t, "data[0].message", res.Debug.AnswerField)
}

func TestParse_HTML(t *testing.T) {
	for _, body := range []string{"<!DOCTYPE html><html></html>", "", `{"aiResponse":"x"}`} {
		res := NewParser(0).Parse(newResponse(200, "text/html; charset=utf-8", body), "r")
		assert.False(t, res.Success)
		assert.Equal(t, ShapeHTML, res.ResponseShape)
		assert.Contains(t, res.ErrorText, "HTML")
		assert.Contains(t, res.ErrorText, "misconfigured")
	}

	sniffed := NewParser(0).Parse(newResponse(200, "text/plain", "<!doctype html><title>n8n</title>"), "r")
	assert.Equal(t, ShapeHTML, sniffed.ResponseShape)
}

func TestParse_Text(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "text/plain", "  Here are your leads  "), "r")
	assert.True(t, res.Success)
	assert.Equal(t, ShapeText, res.ResponseShape)
	assert.Equal(t, "Here are your leads", res.AnswerText)
	assert.Empty(t, res.Debug.Warning)
}

func TestParse_WorkflowStarted(t *testing.T) {
	for _, body := range []string{"Workflow was started", "workflow was started", "Job started"} {
		res := NewParser(0).Parse(newResponse(200, "", body), "r")
		assert.True(t, res.Success, body)
		assert.Equal(t, ShapeText, res.ResponseShape)
		assert.Equal(t, workflowStartedAnswer, res.AnswerText)
		assert.NotEmpty(t, res.Debug.Warning)
	}
}

func TestParse_EmptyBody(t *testing.T) {
	p := NewParser(0)
	res, cause := p.parseBody(200, "text/plain", nil, "r")
	assert.False(t, res.Success)
	assert.Equal(t, "empty response", res.ErrorText)
	require.NotNil(t, cause)
	assert.Equal(t, apperrors.ErrCodeResponseEmpty, cause.Code)
}

func TestParse_EmbeddedJSON(t *testing.T) {
	body := `Result follows: {"aiResponse":"embedded {braces} \"quoted\"","searchParameters":{"industry":"Logistik"}} -- end`
	res := NewParser(0).Parse(newResponse(200, "text/plain", body), "r")
	assert.True(t, res.Success)
	assert.Equal(t, ShapeJSON, res.ResponseShape)
	assert.Equal(t, `embedded {braces} "quoted"`, res.AnswerText)
	require.NotNil(t, res.StructuredParameters)
	assert.Equal(t, "Logistik", res.StructuredParameters.Industry)
}

func TestParse_MislabelledArray(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "text/plain", `[{"aiResponse":"a"},{"aiResponse":"b"}]`), "r")
	assert.Len(t, res.Batch, 2)
}

func TestParse_MalformedJSON(t *testing.T) {
	res, cause := NewParser(0).parseBody(200, "application/json", []byte(`{"aiResponse": "x"`), "r")
	assert.False(t, res.Success)
	assert.Equal(t, ShapeUnknown, res.ResponseShape)
	assert.Contains(t, res.ErrorText, "could not be parsed")
	require.NotNil(t, cause)
	assert.True(t, cause.Retryable)
}

func TestParse_SuccessFalse(t *testing.T) {
	res, cause := NewParser(0).parseBody(200, "application/json", []byte(`{"success":false,"error":"quota exceeded"}`), "r")
	assert.False(t, res.Success)
	assert.Equal(t, "quota exceeded", res.ErrorText)
	require.NotNil(t, cause)
	assert.Equal(t, apperrors.ErrCodeWebhookWorkflowError, cause.Code)
}

func TestParse_RawResponseTruncated(t *testing.T) {
	body := `{"aiResponse":"` + strings.Repeat("x", 100) + `"}`
	res := NewParser(20).Parse(newResponse(200, "application/json", body), "r")
	assert.Len(t, res.Debug.RawResponse, 20)
	assert.True(t, res.Debug.RawTruncated)
	assert.Len(t, res.AnswerText, 100)
}

func TestExtractEmbeddedJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`no json here`, "", false},
		{`x {"a":1} y {"b":2}`, `{"a":1}`, true},
		{`{broken {"a":"}"} tail`, `{"a":"}"}`, true},
		{`{"a":{"b":{"c":1}}}`, `{"a":{"b":{"c":1}}}`, true},
		{`{"unterminated": "`, "", false},
	}
	for _, tt := range tests {
		got, ok := extractEmbeddedJSON(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParse_UnbalancedBracesStayLinear(t *testing.T) {
	bodies := map[string]string{
		"open braces":   "note " + strings.Repeat("{", 200_000),
		"nested broken": strings.Repeat("{x", 50_000) + strings.Repeat("}", 50_000),
		"many objects":  strings.Repeat(`{"a": } `, 100_000) + `{"aiResponse":"late"}`,
	}
	p := NewParser(0)
	for name, body := range bodies {
		start := time.Now()
		res := p.Parse(newResponse(200, "text/plain", body), "req-braces")
		assert.Less(t, time.Since(start), 2*time.Second, name)
		assert.NotEmpty(t, res.Message, name)
		assert.Equal(t, ShapeText, res.ResponseShape, name)
	}
}

func TestExtractEmbeddedJSON_CandidateLimit(t *testing.T) {
	within := strings.Repeat("{ ", maxEmbeddedCandidates-1) + `{"a":1}`
	got, ok := extractEmbeddedJSON(within)
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, got)

	beyond := strings.Repeat("{ ", maxEmbeddedCandidates) + `{"a":1}`
	_, ok = extractEmbeddedJSON(beyond)
	assert.False(t, ok)
}

func TestParse_EmptyBatchIsEmptyResponse(t *testing.T) {
	res := NewParser(0).Parse(newResponse(200, "application/json", `{"batchResults":[]}`), "req-empty-batch")

	assert.False(t, res.Success)
	assert.Empty(t, res.Batch)
	assert.NotEmpty(t, res.ErrorText)
	assert.Equal(t, ShapeJSON, res.ResponseShape)
}
