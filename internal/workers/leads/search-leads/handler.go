// internal/workers/leads/search-leads/handler.go
package searchleads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"

	apperrors "leadgen-workers/internal/common/errors"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
	"leadgen-workers/internal/common/validation"
	"leadgen-workers/internal/common/webhook"
)

const (
	TaskType = "search-leads"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
)

type Handler struct {
	config     *Config
	client     *elasticsearch.Client
	validator  *validation.Validator
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, client *elasticsearch.Client, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		client:     client,
		validator:  validator,
		errHandler: apperrors.NewErrorHandler(log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if res := h.validator.Validate(TaskType, job.Variables); !res.Valid {
		h.fail(ctx, client, job, apperrors.NewInvalidInputError(strings.Join(res.GetErrorMessages(), "; ")))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		switch {
		case errors.Is(err, ErrSearchTimeout):
			err = apperrors.NewSearchTimeoutError(h.config.Index)
		case errors.Is(err, ErrSearchQueryFailed):
			err = apperrors.NewSearchQueryFailedError(err)
		}
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	size := input.Size
	if size <= 0 {
		size = h.config.DefaultSize
	}
	if h.config.MaxSize > 0 && size > h.config.MaxSize {
		size = h.config.MaxSize
	}

	body, err := json.Marshal(buildQuery(input.Parameters, size))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchQueryFailed, err)
	}

	res, err := h.client.Search(
		h.client.Search.WithContext(ctx),
		h.client.Search.WithIndex(h.config.Index),
		h.client.Search.WithBody(bytes.NewReader(body)),
		h.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchQueryFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchQueryFailed, err)
	}

	out := &Output{
		Leads:      make([]Lead, 0, len(parsed.Hits.Hits)),
		TotalHits:  parsed.Hits.Total.Value,
		Took:       parsed.Took,
		SearchLink: SearchLink(h.config.LinkBaseURL, input.Parameters),
	}
	for _, hit := range parsed.Hits.Hits {
		out.Leads = append(out.Leads, Lead{ID: hit.ID, Score: hit.Score, Source: hit.Source})
	}

	h.logger.Info("lead search finished", map[string]interface{}{
		"totalHits": out.TotalHits,
		"returned":  len(out.Leads),
		"took":      out.Took,
	})
	return out, nil
}

// buildQuery requires every given targeting field to match; the tech stack
// only boosts.
func buildQuery(p webhook.StructuredParameters, size int) map[string]interface{} {
	must := []interface{}{}
	add := func(field, value string) {
		if v := strings.TrimSpace(value); v != "" {
			must = append(must, map[string]interface{}{
				"match": map[string]interface{}{field: map[string]interface{}{"query": v, "operator": "and"}},
			})
		}
	}
	add("industry", p.Industry)
	add("jobTitle", p.JobTitle)
	add("location", p.Location)
	if size := strings.TrimSpace(p.CompanySize); size != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"companySize": size}})
	}

	boolQuery := map[string]interface{}{"must": must}
	if len(must) == 0 {
		boolQuery["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	}
	if tech := strings.TrimSpace(p.TechStack); tech != "" {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{"match": map[string]interface{}{"techStack": tech}},
		}
	}

	return map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{"_score", map[string]interface{}{"updatedAt": map[string]interface{}{"order": "desc", "unmapped_type": "date"}}},
	}
}

// SearchLink pre-fills the lead search page with the structured parameters.
func SearchLink(base string, p webhook.StructuredParameters) string {
	q := url.Values{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			q.Set(key, v)
		}
	}
	set("industry", p.Industry)
	set("jobTitle", p.JobTitle)
	set("location", p.Location)
	set("companySize", p.CompanySize)
	set("techStack", p.TechStack)
	if p.EstimatedLeads > 0 {
		q.Set("estimatedLeads", strconv.Itoa(p.EstimatedLeads))
	}
	if len(q) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
