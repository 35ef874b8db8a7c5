// internal/workers/leads/verify-lead-emails/handler.go
package verifyleademails

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "leadgen-workers/internal/common/errors"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
	"leadgen-workers/internal/common/settings"
	"leadgen-workers/internal/common/validation"
	"leadgen-workers/internal/common/webhook"
)

const (
	TaskType = "verify-lead-emails"
)

var (
	ErrNoLeads       = errors.New("NO_LEADS")
	ErrBatchTooLarge = errors.New("BATCH_TOO_LARGE")
)

type Handler struct {
	config     *Config
	client     *webhook.Client
	store      settings.Store
	validator  *validation.Validator
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, client *webhook.Client, store settings.Store, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		client:     client,
		store:      store,
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
		if errors.Is(err, ErrNoLeads) || errors.Is(err, ErrBatchTooLarge) {
			err = apperrors.NewInvalidInputError(err.Error())
		}
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Leads) == 0 {
		return nil, ErrNoLeads
	}
	if h.config.MaxBatchSize > 0 && len(input.Leads) > h.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d leads, limit %d", ErrBatchTooLarge, len(input.Leads), h.config.MaxBatchSize)
	}

	channel := input.Channel
	if channel == "" {
		channel = h.config.DefaultChannel
	}
	target, err := h.store.GetURL(ctx, channel)
	if err != nil {
		return nil, err
	}

	result := h.client.SendMessage(ctx, target, webhook.OutboundPayload{
		PrimaryText: fmt.Sprintf("Verifiziere die E-Mail-Adressen von %d Leads", len(input.Leads)),
		LeadData:    input.Leads,
	}, webhook.WithChannel(channel))

	out := &Output{Result: result, Verifications: []LeadVerification{}}
	for _, entry := range result.Batch {
		v := LeadVerification{Index: entry.Index, Success: entry.Success, Detail: entry.AnswerText}
		if !entry.Success && entry.ErrorText != "" {
			v.Detail = entry.ErrorText
		}
		if entry.Index >= 0 && entry.Index < len(input.Leads) {
			lead := input.Leads[entry.Index]
			v.LeadID = stringField(lead, "leadId", "id")
			v.Email = stringField(lead, "email")
		}
		if v.Success {
			out.Verified++
		} else {
			out.Failed++
		}
		out.Verifications = append(out.Verifications, v)
	}
	if pending := len(input.Leads) - len(result.Batch); pending > 0 {
		out.Pending = pending
	}

	h.logger.Info("email verification finished", map[string]interface{}{
		"requestId": result.Debug.RequestID,
		"leads":     len(input.Leads),
		"verified":  out.Verified,
		"failed":    out.Failed,
		"pending":   out.Pending,
		"fallback":  result.Debug.FallbackActivated,
	})
	return out, nil
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
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
