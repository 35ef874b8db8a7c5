package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadgen-workers/internal/common/config"
	apperrors "leadgen-workers/internal/common/errors"
	commonhttp "leadgen-workers/internal/common/http"
	"leadgen-workers/internal/common/logger"
)

const testURL = "https://n8n.example.com/webhook/lead-chat"

type scriptedReply struct {
	status      int
	contentType string
	body        string
	err         error
}

// fakeTransport replays replies in order and records every request.
type fakeTransport struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []*http.Request
	bodies   []map[string]interface{}
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := io.ReadAll(req.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(data, &body)
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)

	idx := len(f.requests) - 1
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	r := f.replies[idx]
	if r.err != nil {
		return nil, r.err
	}
	h := http.Header{}
	if r.contentType != "" {
		h.Set("Content-Type", r.contentType)
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestClient(t *testing.T, doer commonhttp.Doer, opts Options, sleeps *recordedSleeps) *Client {
	t.Helper()
	ids := 0
	return NewClient(doer, opts, logger.NewTestLogger(t),
		WithSleeper(sleeps.sleep),
		WithRequestIDGenerator(func() string {
			ids++
			return "req-" + string(rune('0'+ids))
		}),
	)
}

func TestSendMessage_RetriesServerErrorsThenSucceeds(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 503, body: "unavailable"},
		{status: 503, body: "unavailable"},
		{status: 200, contentType: "application/json", body: `{"aiResponse":"ok"}`},
	}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, transport, Options{MaxAttempts: 3}, sleeps)

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})

	assert.True(t, res.Success)
	assert.Equal(t, "ok", res.AnswerText)
	assert.Equal(t, 3, transport.calls())
	assert.Equal(t, 3, res.Debug.Attempts)
	assert.False(t, res.Debug.FallbackActivated)
	require.Len(t, sleeps.delays, 2)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
	assert.GreaterOrEqual(t, sleeps.delays[1], sleeps.delays[0])
}

func TestSendMessage_SameRequestIDOnEveryAttempt(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 500},
		{status: 502},
		{status: 200, contentType: "application/json", body: `{"aiResponse":"ok"}`},
	}}
	client := newTestClient(t, transport, Options{MaxAttempts: 3}, &recordedSleeps{})

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	require.Equal(t, 3, transport.calls())

	for i, req := range transport.requests {
		assert.Equal(t, res.Debug.RequestID, req.Header.Get(HeaderRequestID))
		assert.Equal(t, res.Debug.RequestID, transport.bodies[i]["requestId"])
		assert.Equal(t, float64(i+1), transport.bodies[i]["attempt"])
		assert.Equal(t, string(rune('1'+i)), req.Header.Get(HeaderAttempt))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, req.Method)
	}
}

func TestSendMessage_ClientErrorIsNotRetried(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 5} {
		transport := &fakeTransport{replies: []scriptedReply{{status: 400, body: `{"message":"bad"}`}}}
		sleeps := &recordedSleeps{}
		client := newTestClient(t, transport, Options{MaxAttempts: maxAttempts}, sleeps)

		res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "Suche CTOs in Berlin"})

		assert.Equal(t, 1, transport.calls())
		assert.Empty(t, sleeps.delays)
		assert.False(t, res.Success)
		assert.Equal(t, ShapeFallback, res.ResponseShape)
		assert.True(t, res.Debug.FallbackActivated)
		assert.Equal(t, 400, res.Debug.HTTPStatus)
		assert.Equal(t, string(apperrors.ErrCodeWebhookClientError), res.Debug.OriginalErrorCode)
		assert.Contains(t, res.Debug.OriginalResponse, "bad")
		require.NotNil(t, res.StructuredParameters)
		assert.Equal(t, "CTO", res.StructuredParameters.JobTitle)
	}
}

func TestSendMessage_SoftErrorTriggersRetryAndFallback(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 200, contentType: "application/json", body: `{"aiResponse":"Error in workflow: node X failed"}`},
	}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, transport, Options{MaxAttempts: 2}, sleeps)

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})

	assert.Equal(t, 2, transport.calls())
	assert.False(t, res.Success)
	assert.True(t, res.Debug.FallbackActivated)
	assert.Equal(t, string(apperrors.ErrCodeWebhookWorkflowError), res.Debug.OriginalErrorCode)
	assert.NotContains(t, res.AnswerText, "node X failed")
	assert.Contains(t, res.ErrorText, "node X failed")
}

func TestSendMessage_SoftErrorThenSuccess(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 200, contentType: "text/plain", body: "firstEntryJson is not defined"},
		{status: 200, contentType: "application/json", body: `{"aiResponse":"recovered"}`},
	}}
	client := newTestClient(t, transport, Options{MaxAttempts: 2}, &recordedSleeps{})

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	assert.True(t, res.Success)
	assert.Equal(t, "recovered", res.AnswerText)
}

func TestSendMessage_CustomMarkers(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 200, contentType: "application/json", body: `{"aiResponse":"Internal Server Error handling is explained here"}`},
	}}
	client := newTestClient(t, transport, Options{MaxAttempts: 2, ErrorMarkers: []string{"quota exhausted"}}, &recordedSleeps{})

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	assert.True(t, res.Success)
	assert.Equal(t, 1, transport.calls())
}

func TestSendMessage_HTMLIsTerminal(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{
		{status: 200, contentType: "text/html", body: "<html><body>Login</body></html>"},
	}}
	client := newTestClient(t, transport, Options{MaxAttempts: 3}, &recordedSleeps{})

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	assert.Equal(t, 1, transport.calls())
	assert.False(t, res.Success)
	assert.Equal(t, string(apperrors.ErrCodeResponseHTML), res.Debug.OriginalErrorCode)
	assert.Contains(t, res.ErrorText, "HTML")
}

func TestSendMessage_InvalidURLSkipsTransport(t *testing.T) {
	for _, raw := range []string{"", "   ", "ftp://host/webhook", "not a url", "http://"} {
		transport := &fakeTransport{replies: []scriptedReply{{status: 200}}}
		client := newTestClient(t, transport, Options{}, &recordedSleeps{})

		res := client.SendMessage(context.Background(), raw, OutboundPayload{PrimaryText: "hi"})
		assert.Equal(t, 0, transport.calls(), raw)
		assert.False(t, res.Success)
		assert.True(t, res.Debug.FallbackActivated)
		assert.Equal(t, 0, res.Debug.Attempts)
		assert.Equal(t, string(apperrors.ErrCodeWebhookInvalidURL), res.Debug.OriginalErrorCode)
		assert.NotEmpty(t, res.AnswerText)
	}
}

func TestSendMessage_NetworkErrorExhaustsAttempts(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{{err: io.ErrUnexpectedEOF}}}
	sleeps := &recordedSleeps{}
	client := newTestClient(t, transport, Options{MaxAttempts: 2}, sleeps)

	res := client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	assert.Equal(t, 2, transport.calls())
	assert.Len(t, sleeps.delays, 1)
	assert.Equal(t, string(apperrors.ErrCodeWebhookNetworkError), res.Debug.OriginalErrorCode)
	assert.Contains(t, res.Debug.FallbackReason, "2 attempt(s) exhausted")
}

func TestSendMessage_TimeoutPerAttempt(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":"second try"}`))
	}))
	defer server.Close()

	client := NewClient(http.DefaultClient, Options{Timeout: 50 * time.Millisecond, MaxAttempts: 2},
		logger.NewTestLogger(t), WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))

	res := client.SendMessage(context.Background(), server.URL+"/webhook/x", OutboundPayload{PrimaryText: "hi"})
	assert.True(t, res.Success)
	assert.Equal(t, "second try", res.AnswerText)
	assert.Equal(t, 2, res.Debug.Attempts)
}

func TestSendMessage_CallOptionsOverride(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{{status: 503}}}
	client := newTestClient(t, transport, Options{MaxAttempts: 2}, &recordedSleeps{})

	client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"},
		WithMaxAttempts(4), WithChannel("chat"), WithTimeout(time.Second))
	assert.Equal(t, 4, transport.calls())
}

func TestSendMessage_CancelledContextFallsBack(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{{status: 503}}}
	client := newTestClient(t, transport, Options{MaxAttempts: 3}, &recordedSleeps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.SendMessage(ctx, testURL, OutboundPayload{PrimaryText: "hi"})
	assert.Equal(t, 1, transport.calls())
	assert.True(t, res.Debug.FallbackActivated)
}

func TestSendMessage_TextFieldAndHeaders(t *testing.T) {
	tests := []struct {
		field     string
		message   bool
		chatInput bool
	}{
		{config.TextFieldMessage, true, false},
		{config.TextFieldChatInput, false, true},
		{config.TextFieldBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			transport := &fakeTransport{replies: []scriptedReply{{status: 200, contentType: "application/json", body: `{"aiResponse":"ok"}`}}}
			client := newTestClient(t, transport, Options{TextField: tt.field, OmitRequestHeaders: true}, &recordedSleeps{})

			client.SendMessage(context.Background(), testURL, OutboundPayload{
				PrimaryText:    "hello",
				TargetAudience: &TargetAudience{Industry: "SaaS"},
				LeadData:       map[string]interface{}{"email": "a@b.de"},
			})

			body := transport.bodies[0]
			_, hasMessage := body["message"]
			_, hasChatInput := body["chatInput"]
			assert.Equal(t, tt.message, hasMessage)
			assert.Equal(t, tt.chatInput, hasChatInput)
			assert.NotEmpty(t, body["timestamp"])
			assert.Equal(t, "SaaS", body["targetAudience"].(map[string]interface{})["industry"])
			assert.Equal(t, "a@b.de", body["leadData"].(map[string]interface{})["email"])
			assert.Empty(t, transport.requests[0].Header.Get(HeaderRequestID))
		})
	}
}

type fakeRecorder struct {
	calls    int
	success  bool
	fallback bool
	attempts int
}

func (f *fakeRecorder) RecordWebhookCall(_ context.Context, _ string, success, fallback bool, attempts int, _ time.Duration) {
	f.calls++
	f.success = success
	f.fallback = fallback
	f.attempts = attempts
}

func TestSendMessage_RecorderObservesOutcome(t *testing.T) {
	transport := &fakeTransport{replies: []scriptedReply{{status: 500}}}
	rec := &fakeRecorder{}
	client := NewClient(transport, Options{MaxAttempts: 2}, nil,
		WithSleeper(func(context.Context, time.Duration) error { return nil }),
		WithRecorder(rec))

	client.SendMessage(context.Background(), testURL, OutboundPayload{PrimaryText: "hi"})
	assert.Equal(t, 1, rec.calls)
	assert.False(t, rec.success)
	assert.True(t, rec.fallback)
	assert.Equal(t, 2, rec.attempts)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultWebhookConfig()
	cfg.Backoff.Strategy = BackoffExponential
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, opts.Timeout)
	assert.Equal(t, 2, opts.MaxAttempts)
	assert.Equal(t, 4*time.Second, opts.Backoff.Delay(3))

	cfg.Backoff.Strategy = "random"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
