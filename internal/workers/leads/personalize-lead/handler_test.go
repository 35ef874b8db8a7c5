// internal/workers/leads/personalize-lead/handler_test.go
package personalizelead

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/settings"
	"leadgen-workers/internal/common/webhook"
)

func newHandler(t *testing.T, urls map[string]string, doer *http.Client, maxAttempts int) *Handler {
	t.Helper()
	opts := webhook.DefaultOptions()
	opts.Timeout = 2 * time.Second
	opts.MaxAttempts = maxAttempts
	log := logger.NewTestLogger(t)
	client := webhook.NewClient(doer, opts, log,
		webhook.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	return NewHandler(LoadConfig(), client, settings.NewStaticStore(urls), nil, log)
}

func TestExecute_Personalized(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":"Hallo Frau Weber, ..."}`))
	}))
	defer server.Close()

	h := newHandler(t, map[string]string{"personalization": server.URL + "/webhook/p"}, server.Client(), 2)
	out, err := h.Execute(context.Background(), &Input{
		LeadID:   "lead-42",
		LeadData: map[string]interface{}{"name": "Anna Weber", "jobTitle": "CTO", "city": "Berlin"},
	})
	require.NoError(t, err)

	assert.Equal(t, "lead-42", out.LeadID)
	assert.True(t, out.Result.Success)
	assert.Equal(t, "Hallo Frau Weber, ...", out.PersonalizedText)

	assert.Equal(t, LoadConfig().DefaultInstruction, body["message"])
	lead := body["leadData"].(map[string]interface{})
	assert.Equal(t, "Anna Weber", lead["name"])
	audience := body["targetAudience"].(map[string]interface{})
	assert.Equal(t, "CTO", audience["jobTitle"])
	assert.Equal(t, "Berlin", audience["location"])
}

func TestExecute_WorkflowErrorFallsBack(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"aiResponse":"Error in workflow: node OpenAI failed"}`))
	}))
	defer server.Close()

	h := newHandler(t, map[string]string{"global": server.URL + "/webhook/g"}, server.Client(), 2)
	out, err := h.Execute(context.Background(), &Input{
		LeadID:      "lead-7",
		LeadData:    map[string]interface{}{"industry": "Fintech"},
		Instruction: "Kurz und freundlich",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.False(t, out.Result.Success)
	assert.Empty(t, out.PersonalizedText)
	assert.True(t, out.Result.Debug.FallbackActivated)
	require.NotNil(t, out.Result.StructuredParameters)
	assert.Equal(t, "Fintech", out.Result.StructuredParameters.Industry)
}

func TestExecute_MissingLead(t *testing.T) {
	h := newHandler(t, nil, http.DefaultClient, 1)
	_, err := h.Execute(context.Background(), &Input{LeadID: "x"})
	assert.ErrorIs(t, err, ErrMissingLead)
}

func TestAudienceOf(t *testing.T) {
	assert.Nil(t, audienceOf(map[string]interface{}{"name": "x"}))
	a := audienceOf(map[string]interface{}{"branche": " Handel ", "company_size": "11-50"})
	require.NotNil(t, a)
	assert.Equal(t, "Handel", a.Industry)
	assert.Equal(t, "11-50", a.CompanySize)
}
