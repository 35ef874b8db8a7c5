// internal/workers/leads/personalize-lead/handler.go
package personalizelead

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
	TaskType = "personalize-lead"
)

var (
	ErrMissingLead = errors.New("MISSING_LEAD")
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
		if errors.Is(err, ErrMissingLead) {
			err = apperrors.NewInvalidInputError(err.Error())
		}
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.LeadID) == "" || len(input.LeadData) == 0 {
		return nil, fmt.Errorf("%w: leadId and leadData are required", ErrMissingLead)
	}

	channel := input.Channel
	if channel == "" {
		channel = h.config.DefaultChannel
	}
	target, err := h.store.GetURL(ctx, channel)
	if err != nil {
		return nil, err
	}

	instruction := strings.TrimSpace(input.Instruction)
	if instruction == "" {
		instruction = h.config.DefaultInstruction
	}

	result := h.client.SendMessage(ctx, target, webhook.OutboundPayload{
		PrimaryText:    instruction,
		TargetAudience: audienceOf(input.LeadData),
		LeadData:       input.LeadData,
	}, webhook.WithChannel(channel))

	out := &Output{LeadID: input.LeadID, Result: result}
	if result.Success {
		out.PersonalizedText = result.AnswerText
	} else {
		h.logger.Warn("personalization fell back", map[string]interface{}{
			"leadId":    input.LeadID,
			"requestId": result.Debug.RequestID,
			"reason":    result.Debug.FallbackReason,
		})
	}
	return out, nil
}

// audienceOf lifts the targeting fields of a lead record so the fallback
// generator can use them when the workflow is down.
func audienceOf(lead map[string]interface{}) *webhook.TargetAudience {
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := lead[k].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	a := &webhook.TargetAudience{
		Industry:    str("industry", "branche"),
		CompanySize: str("companySize", "company_size"),
		JobTitle:    str("jobTitle", "job_title", "position"),
		Location:    str("location", "city"),
	}
	if *a == (webhook.TargetAudience{}) {
		return nil
	}
	return a
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
