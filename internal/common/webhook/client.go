// internal/common/webhook/client.go
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leadgen-workers/internal/common/config"
	apperrors "leadgen-workers/internal/common/errors"
	commonhttp "leadgen-workers/internal/common/http"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAttempt   = "X-Attempt"

	tracerName = "leadgen-workers/webhook"
)

// Options is the client-wide behaviour, normally derived from
// config.WebhookConfig via OptionsFromConfig.
type Options struct {
	Timeout            time.Duration
	MaxAttempts        int
	Backoff            Backoff
	ErrorMarkers       []string
	TextField          string
	OmitRequestHeaders bool
	MaxRawResponse     int
}

func OptionsFromConfig(cfg config.WebhookConfig) (Options, error) {
	backoff, err := NewBackoff(cfg.Backoff.Strategy,
		time.Duration(cfg.Backoff.BaseDelay)*time.Millisecond,
		time.Duration(cfg.Backoff.MaxDelay)*time.Millisecond)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Timeout:            time.Duration(cfg.Timeout) * time.Millisecond,
		MaxAttempts:        cfg.MaxAttempts,
		Backoff:            backoff,
		ErrorMarkers:       cfg.ErrorMarkers,
		TextField:          cfg.TextField,
		OmitRequestHeaders: cfg.OmitRequestHeaders,
		MaxRawResponse:     cfg.MaxRawResponse,
	}, nil
}

// DefaultOptions mirrors config.DefaultWebhookConfig.
func DefaultOptions() Options {
	opts, _ := OptionsFromConfig(config.DefaultWebhookConfig())
	return opts
}

// Recorder receives one observation per logical request.
type Recorder interface {
	RecordWebhookCall(ctx context.Context, channel string, success, fallback bool, attempts int, duration time.Duration)
}

// Client sends payloads to operator-configured webhook URLs. It is safe for
// concurrent use; calls share no mutable state.
type Client struct {
	doer     commonhttp.Doer
	opts     Options
	parser   *Parser
	markers  *MarkerDetector
	fallback *FallbackGenerator
	sleep    Sleeper
	newID    func() string
	now      func() time.Time
	recorder Recorder
	tracer   trace.Tracer
	logger   logger.Logger
}

type Option func(*Client)

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

func WithFallbackGenerator(g *FallbackGenerator) Option {
	return func(c *Client) { c.fallback = g }
}

func WithRequestIDGenerator(f func() string) Option {
	return func(c *Client) { c.newID = f }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(doer commonhttp.Doer, opts Options, log logger.Logger, options ...Option) *Client {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = defaults.Backoff
	}
	if opts.ErrorMarkers == nil {
		opts.ErrorMarkers = defaults.ErrorMarkers
	}
	if opts.TextField == "" {
		opts.TextField = defaults.TextField
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	c := &Client{
		doer:     doer,
		opts:     opts,
		parser:   NewParser(opts.MaxRawResponse),
		markers:  NewMarkerDetector(opts.ErrorMarkers),
		fallback: NewFallbackGenerator(),
		sleep:    sleepContext,
		newID:    uuid.NewString,
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		logger:   log,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// callOptions are per-call overrides of Options.
type callOptions struct {
	timeout     time.Duration
	maxAttempts int
	channel     string
}

type CallOption func(*callOptions)

func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMaxAttempts(n int) CallOption {
	return func(o *callOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithChannel labels logs, spans and metrics with the settings channel.
func WithChannel(channel string) CallOption {
	return func(o *callOptions) { o.channel = channel }
}

// attemptOutcome is the classification of one transport attempt.
type attemptOutcome struct {
	result   InboundResult
	cause    *apperrors.StandardError
	terminal bool
	raw      string
}

// SendMessage posts payload to rawURL and always returns a usable result.
// Success reports whether the real endpoint answered cleanly; when it did
// not, the result carries a locally generated fallback answer.
func (c *Client) SendMessage(ctx context.Context, rawURL string, payload OutboundPayload, opts ...CallOption) InboundResult {
	call := callOptions{
		timeout:     c.opts.Timeout,
		maxAttempts: c.opts.MaxAttempts,
		channel:     "default",
	}
	for _, o := range opts {
		o(&call)
	}

	start := c.now()
	requestID := c.newID()
	if payload.Timestamp == "" {
		payload.Timestamp = start.UTC().Format(time.RFC3339)
	}

	ctx, span := c.tracer.Start(ctx, "webhook.SendMessage", trace.WithAttributes(
		attribute.String("webhook.request_id", requestID),
		attribute.String("webhook.channel", call.channel),
		attribute.Int("webhook.max_attempts", call.maxAttempts),
	))
	defer span.End()

	log := c.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"channel":   call.channel,
	})

	if err := validateURL(rawURL); err != nil {
		cause := apperrors.NewWebhookInvalidURLError(rawURL, err)
		log.Warn("webhook url rejected, using fallback", map[string]interface{}{
			"error": cause.Error(),
		})
		return c.finish(ctx, span, call, start, c.fallbackResult(payload, requestID, 0, cause, ""))
	}

	var last attemptOutcome
	attempts := 0
	for attempt := 1; attempt <= call.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.Backoff.Delay(attempt - 1)
			log.Warn("retrying webhook", map[string]interface{}{
				"attempt":   attempt,
				"delayMs":   delay.Milliseconds(),
				"lastError": last.cause.Error(),
			})
			if err := c.sleep(ctx, delay); err != nil {
				break
			}
		}

		attempts = attempt
		last = c.attempt(ctx, rawURL, payload, requestID, attempt, call)
		if last.cause == nil {
			res := last.result
			res.Debug.Attempts = attempt
			return c.finish(ctx, span, call, start, res)
		}

		log.Debug("webhook attempt failed", map[string]interface{}{
			"attempt":  attempt,
			"code":     string(last.cause.Code),
			"terminal": last.terminal,
		})
		if last.terminal || ctx.Err() != nil {
			break
		}
	}

	if last.cause == nil {
		last.cause = apperrors.NewWebhookNetworkError(errors.New("no attempt was made"))
	}
	log.Warn("webhook failed, using fallback", map[string]interface{}{
		"attempts": attempts,
		"error":    last.cause.Error(),
	})
	res := c.fallbackResult(payload, requestID, attempts, last.cause, last.raw)
	if status := last.result.Debug.HTTPStatus; status != 0 {
		res.Debug.HTTPStatus = status
	}
	return c.finish(ctx, span, call, start, res)
}

func (c *Client) attempt(ctx context.Context, rawURL string, payload OutboundPayload, requestID string, attempt int, call callOptions) attemptOutcome {
	ctx, span := c.tracer.Start(ctx, "webhook.attempt", trace.WithAttributes(
		attribute.Int("webhook.attempt", attempt),
	))
	defer span.End()

	out := c.doAttempt(ctx, rawURL, payload, requestID, attempt, call)

	outcome := metrics.OutcomeSuccess
	if out.cause != nil {
		outcome = outcomeFor(out.cause.Code)
		span.SetStatus(codes.Error, string(out.cause.Code))
	}
	if status := out.result.Debug.HTTPStatus; status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	metrics.WebhookAttempts.WithLabelValues(call.channel, outcome).Inc()
	return out
}

func (c *Client) doAttempt(ctx context.Context, rawURL string, payload OutboundPayload, requestID string, attempt int, call callOptions) attemptOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, call.timeout)
	defer cancel()

	body, err := buildRequestBody(payload, c.opts.TextField, requestID, attempt)
	if err != nil {
		return attemptOutcome{cause: apperrors.NewInvalidInputError(err.Error()), terminal: true}
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{cause: apperrors.NewWebhookInvalidURLError(rawURL, err), terminal: true}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain;q=0.9, */*;q=0.5")
	if !c.opts.OmitRequestHeaders {
		req.Header.Set(HeaderRequestID, requestID)
		req.Header.Set(HeaderAttempt, strconv.Itoa(attempt))
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return attemptOutcome{cause: transportError(attemptCtx, err, call.timeout)}
	}
	defer resp.Body.Close()

	raw, _, err := commonhttp.ReadLimited(resp.Body, maxBodyBytes)
	if err != nil {
		return attemptOutcome{
			cause:  transportError(attemptCtx, err, call.timeout),
			result: InboundResult{Debug: Debug{HTTPStatus: resp.StatusCode}},
		}
	}
	excerpt, _ := truncate(string(raw), c.opts.MaxRawResponse)

	if resp.StatusCode >= 500 {
		return attemptOutcome{
			cause:  apperrors.NewWebhookServerError(resp.StatusCode),
			result: InboundResult{Debug: Debug{HTTPStatus: resp.StatusCode}},
			raw:    excerpt,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return attemptOutcome{
			cause:    apperrors.NewWebhookClientError(resp.StatusCode),
			result:   InboundResult{Debug: Debug{HTTPStatus: resp.StatusCode}},
			terminal: true,
			raw:      excerpt,
		}
	}

	res, cause := c.parser.parseBody(resp.StatusCode, resp.Header.Get("Content-Type"), raw, requestID)
	if cause != nil {
		return attemptOutcome{
			result:   res,
			cause:    cause,
			terminal: cause.Code == apperrors.ErrCodeResponseHTML,
			raw:      excerpt,
		}
	}

	if marker, found := c.markers.Match(res.AnswerText, string(raw)); found {
		snippet, _ := truncate(res.AnswerText, 200)
		if snippet == "" {
			snippet, _ = truncate(string(raw), 200)
		}
		return attemptOutcome{
			result: res,
			cause:  apperrors.NewWebhookWorkflowError(marker, snippet),
			raw:    excerpt,
		}
	}

	return attemptOutcome{result: res, raw: excerpt}
}

// fallbackResult merges a generated answer with the failure that caused it.
func (c *Client) fallbackResult(payload OutboundPayload, requestID string, attempts int, cause *apperrors.StandardError, raw string) InboundResult {
	res := c.fallback.GenerateWithReason(payload, fallbackReason(cause, attempts))
	res.Success = false
	res.ErrorText = cause.Error()
	res.Debug.RequestID = requestID
	res.Debug.Attempts = attempts
	res.Debug.FallbackActivated = true
	res.Debug.OriginalError = cause.Error()
	res.Debug.OriginalErrorCode = string(cause.Code)
	res.Debug.OriginalResponse = raw
	if status, ok := cause.Metadata["httpStatus"].(int); ok {
		res.Debug.HTTPStatus = status
	}
	return res
}

func fallbackReason(cause *apperrors.StandardError, attempts int) string {
	switch {
	case attempts == 0:
		return "request not sent: " + string(cause.Code)
	case !cause.Retryable:
		return "terminal failure: " + string(cause.Code)
	default:
		return fmt.Sprintf("%d attempt(s) exhausted: %s", attempts, cause.Code)
	}
}

func (c *Client) finish(ctx context.Context, span trace.Span, call callOptions, start time.Time, res InboundResult) InboundResult {
	elapsed := c.now().Sub(start)
	res.Debug.DurationMs = elapsed.Milliseconds()

	span.SetAttributes(
		attribute.Bool("webhook.success", res.Success),
		attribute.Bool("webhook.fallback", res.Debug.FallbackActivated),
		attribute.Int("webhook.attempts", res.Debug.Attempts),
	)
	if res.Debug.FallbackActivated {
		span.SetStatus(codes.Error, res.Debug.OriginalErrorCode)
		metrics.WebhookFallbacks.WithLabelValues(res.Debug.OriginalErrorCode).Inc()
	}
	metrics.WebhookRequestDuration.WithLabelValues(call.channel).Observe(elapsed.Seconds())
	if c.recorder != nil {
		c.recorder.RecordWebhookCall(ctx, call.channel, res.Success, res.Debug.FallbackActivated, res.Debug.Attempts, elapsed)
	}
	return res
}

// Fallback exposes the generator for callers that need an answer without
// any network call.
func (c *Client) Fallback(payload OutboundPayload) InboundResult {
	res := c.fallback.Generate(payload)
	res.Debug.RequestID = c.newID()
	return res
}

func buildRequestBody(p OutboundPayload, textField, requestID string, attempt int) ([]byte, error) {
	body := map[string]interface{}{
		"requestId": requestID,
		"attempt":   attempt,
		"timestamp": p.Timestamp,
	}
	switch textField {
	case config.TextFieldChatInput:
		body["chatInput"] = p.PrimaryText
	case config.TextFieldBoth:
		body["message"] = p.PrimaryText
		body["chatInput"] = p.PrimaryText
	default:
		body["message"] = p.PrimaryText
	}
	if p.TargetAudience != nil {
		body["targetAudience"] = p.TargetAudience
	}
	if p.LeadData != nil {
		body["leadData"] = p.LeadData
	}
	return json.Marshal(body)
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func transportError(ctx context.Context, err error, timeout time.Duration) *apperrors.StandardError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewWebhookTimeoutError(timeout)
	}
	return apperrors.NewWebhookNetworkError(err)
}

func outcomeFor(code apperrors.ErrorCode) string {
	switch code {
	case apperrors.ErrCodeWebhookTimeout:
		return metrics.OutcomeTimeout
	case apperrors.ErrCodeWebhookNetworkError:
		return metrics.OutcomeNetworkError
	case apperrors.ErrCodeWebhookServerError:
		return metrics.OutcomeServerError
	case apperrors.ErrCodeWebhookWorkflowError:
		return metrics.OutcomeWorkflowError
	case apperrors.ErrCodeResponseHTML:
		return metrics.OutcomeHTML
	case apperrors.ErrCodeResponseParseFailed, apperrors.ErrCodeResponseEmpty:
		return metrics.OutcomeParseError
	default:
		return metrics.OutcomeClientError
	}
}
