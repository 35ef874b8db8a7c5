// internal/common/diagnostics/runner.go
package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	commonhttp "leadgen-workers/internal/common/http"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
	"leadgen-workers/internal/common/webhook"
)

const (
	DefaultProbeTimeout  = 5 * time.Second
	DefaultAllowedOrigin = "https://app.leadgen.local"

	testMessage = "[diagnostics] connectivity test, please ignore"
)

type Options struct {
	ProbeTimeout  time.Duration
	AllowedOrigin string
}

// Runner executes the fixed probe battery against one URL. It is operator
// tooling and never sits on the request path.
type Runner struct {
	doer    commonhttp.Doer
	opts    Options
	history History
	parser  *webhook.Parser
	logger  logger.Logger
	now     func() time.Time
}

// NewRunner accepts a nil history, in which case reports are not kept.
func NewRunner(doer commonhttp.Doer, opts Options, history History, log logger.Logger) *Runner {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = DefaultAllowedOrigin
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Runner{
		doer:    doer,
		opts:    opts,
		history: history,
		parser:  webhook.NewParser(512),
		logger:  log,
		now:     time.Now,
	}
}

type probeFunc func(ctx context.Context, target string) ProbeResult

// Run executes all probes concurrently and aggregates them. A failing probe
// never prevents the others from reporting.
func (r *Runner) Run(ctx context.Context, target string) Report {
	start := r.now()
	probes := []struct {
		name string
		fn   probeFunc
	}{
		{ProbeConnectivity, r.probeConnectivity},
		{ProbeCORS, r.probeCORS},
		{ProbePost, r.probePost},
		{ProbeURL, r.probeURL},
	}

	results := make([]ProbeResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.safeProbe(ctx, p.name, p.fn, target)
		}()
	}
	wg.Wait()

	report := Report{
		ID:          uuid.NewString(),
		URL:         target,
		StartedAt:   start.UTC(),
		DurationMs:  r.now().Sub(start).Milliseconds(),
		Overall:     OverallFor(results),
		Probes:      results,
		Remediation: Remediation(results),
	}

	metrics.DiagnosticsRuns.WithLabelValues(string(report.Overall)).Inc()
	r.logger.Info("diagnostics completed", map[string]interface{}{
		"url":      target,
		"overall":  string(report.Overall),
		"reportId": report.ID,
	})
	return report
}

// Record appends a report to the history, if one is configured.
func (r *Runner) Record(ctx context.Context, report Report) error {
	if r.history == nil {
		return nil
	}
	return r.history.Append(ctx, report)
}

// Recent returns up to n stored reports, oldest first.
func (r *Runner) Recent(ctx context.Context, n int) ([]Report, error) {
	if r.history == nil {
		return []Report{}, nil
	}
	return r.history.Recent(ctx, n)
}

func (r *Runner) safeProbe(ctx context.Context, name string, fn probeFunc, target string) (res ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("diagnostics probe panicked", map[string]interface{}{
				"probe": name,
				"panic": fmt.Sprint(rec),
			})
			res = ProbeResult{Name: name, Status: StatusError, Detail: fmt.Sprintf("probe failed: %v", rec)}
		}
	}()
	res = fn(ctx, target)
	res.Name = name
	return res
}

func (r *Runner) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*http.Response, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := r.now()
	resp, err := r.doer.Do(req)
	elapsed := r.now().Sub(start)
	if err != nil {
		return nil, elapsed, err
	}

	// the body must be consumed before cancel runs
	data, _, readErr := commonhttp.ReadLimited(resp.Body, 64<<10)
	resp.Body.Close()
	if readErr != nil {
		return nil, elapsed, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, elapsed, nil
}

func (r *Runner) probeConnectivity(ctx context.Context, target string) ProbeResult {
	resp, elapsed, err := r.do(ctx, http.MethodHead, target, nil, nil)
	res := ProbeResult{LatencyMs: elapsed.Milliseconds()}
	if err != nil {
		res.Status = StatusError
		res.Detail = fmt.Sprintf("endpoint unreachable: %v", err)
		return res
	}
	res.HTTPStatus = resp.StatusCode

	switch {
	case resp.StatusCode >= 500:
		res.Status = StatusError
		res.Detail = fmt.Sprintf("server error HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		res.Status = StatusWarning
		res.Detail = "host reachable but the path answered 404"
	default:
		// 405 is normal for POST-only webhooks
		res.Status = StatusSuccess
		res.Detail = fmt.Sprintf("reachable, HTTP %d", resp.StatusCode)
	}
	return res
}

func (r *Runner) probeCORS(ctx context.Context, target string) ProbeResult {
	resp, elapsed, err := r.do(ctx, http.MethodOptions, target, nil, map[string]string{
		"Origin":                         r.opts.AllowedOrigin,
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "content-type",
	})
	res := ProbeResult{LatencyMs: elapsed.Milliseconds()}
	if err != nil {
		res.Status = StatusWarning
		res.Detail = fmt.Sprintf("preflight failed: %v", err)
		return res
	}
	res.HTTPStatus = resp.StatusCode

	allowOrigin := resp.Header.Get("Access-Control-Allow-Origin")
	allowMethods := strings.ToUpper(resp.Header.Get("Access-Control-Allow-Methods"))

	switch {
	case allowOrigin == "":
		res.Status = StatusWarning
		res.Detail = "no Access-Control-Allow-Origin header"
	case allowOrigin != "*" && allowOrigin != r.opts.AllowedOrigin:
		res.Status = StatusWarning
		res.Detail = fmt.Sprintf("origin %q not allowed (server allows %q)", r.opts.AllowedOrigin, allowOrigin)
	case allowMethods != "" && allowMethods != "*" && !strings.Contains(allowMethods, http.MethodPost):
		res.Status = StatusWarning
		res.Detail = fmt.Sprintf("POST not in Access-Control-Allow-Methods (%s)", allowMethods)
	default:
		res.Status = StatusSuccess
		res.Detail = fmt.Sprintf("allow-origin %s", allowOrigin)
	}
	return res
}

func (r *Runner) probePost(ctx context.Context, target string) ProbeResult {
	requestID := "diag-" + uuid.NewString()
	body, _ := json.Marshal(map[string]interface{}{
		"message":   testMessage,
		"chatInput": testMessage,
		"test":      true,
		"requestId": requestID,
		"timestamp": r.now().UTC().Format(time.RFC3339),
	})

	resp, elapsed, err := r.do(ctx, http.MethodPost, target, bytes.NewReader(body), map[string]string{
		"Content-Type":          "application/json",
		webhook.HeaderRequestID: requestID,
	})
	res := ProbeResult{LatencyMs: elapsed.Milliseconds()}
	if err != nil {
		res.Status = StatusError
		res.Detail = fmt.Sprintf("test request failed: %v", err)
		return res
	}
	res.HTTPStatus = resp.StatusCode

	if resp.StatusCode >= 400 {
		res.Status = StatusError
		res.Detail = fmt.Sprintf("test request rejected with HTTP %d", resp.StatusCode)
		return res
	}

	size := resp.ContentLength
	contentType := resp.Header.Get("Content-Type")
	parsed := r.parser.Parse(resp, requestID)
	if size < 0 {
		size = int64(len(parsed.Debug.RawResponse))
	}

	summary := fmt.Sprintf("HTTP %d, %d bytes, content-type %q", resp.StatusCode, size, contentType)
	switch {
	case parsed.ResponseShape == webhook.ShapeHTML:
		res.Status = StatusWarning
		res.Detail = summary + ": HTML page returned, URL probably misconfigured"
	case !parsed.Success:
		res.Status = StatusWarning
		res.Detail = summary + ": " + parsed.ErrorText
	default:
		res.Status = StatusSuccess
		res.Detail = summary
	}
	return res
}

func (r *Runner) probeURL(_ context.Context, target string) ProbeResult {
	res := ProbeResult{}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || target == "" || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		res.Status = StatusError
		res.Detail = "not an absolute http(s) URL"
		return res
	}

	var problems []string
	if u.Scheme != "https" {
		problems = append(problems, "scheme is not https")
	}
	if !strings.Contains(strings.ToLower(u.Path), "webhook") {
		problems = append(problems, "path has no webhook segment")
	}
	if len(problems) > 0 {
		res.Status = StatusWarning
		res.Detail = strings.Join(problems, "; ")
		return res
	}
	res.Status = StatusSuccess
	res.Detail = "URL looks like a webhook endpoint"
	return res
}
