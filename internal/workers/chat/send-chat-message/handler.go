// internal/workers/chat/send-chat-message/handler.go
package sendchatmessage

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
	TaskType = "send-chat-message"
)

var (
	ErrEmptyMessage = errors.New("EMPTY_MESSAGE")
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
		if errors.Is(err, ErrEmptyMessage) {
			err = apperrors.NewInvalidInputError(err.Error())
		}
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is blank", ErrEmptyMessage)
	}

	channel := input.Channel
	if channel == "" {
		channel = h.config.DefaultChannel
	}

	target := strings.TrimSpace(input.WebhookURL)
	if target == "" {
		u, err := h.store.GetURL(ctx, channel)
		if err != nil {
			return nil, err
		}
		target = u
	}
	if target == "" {
		h.logger.Warn("no webhook configured, answer will be generated locally", map[string]interface{}{
			"channel": channel,
		})
	}

	result := h.client.SendMessage(ctx, target, webhook.OutboundPayload{
		PrimaryText:    message,
		TargetAudience: input.TargetAudience,
	}, webhook.WithChannel(channel))

	return &Output{InboundResult: result, Channel: channel}, nil
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
