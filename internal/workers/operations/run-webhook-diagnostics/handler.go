// internal/workers/operations/run-webhook-diagnostics/handler.go
package runwebhookdiagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"leadgen-workers/internal/common/diagnostics"
	apperrors "leadgen-workers/internal/common/errors"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
	"leadgen-workers/internal/common/settings"
	"leadgen-workers/internal/common/validation"
)

const (
	TaskType = "run-webhook-diagnostics"
)

// Alerter delivers operator alerts.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

type Handler struct {
	config     *Config
	runner     *diagnostics.Runner
	store      settings.Store
	alerter    Alerter
	validator  *validation.Validator
	errHandler *apperrors.ErrorHandler
	logger     logger.Logger
}

// NewHandler accepts a nil alerter.
func NewHandler(config *Config, runner *diagnostics.Runner, store settings.Store, alerter Alerter, validator *validation.Validator, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		runner:     runner,
		store:      store,
		alerter:    alerter,
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
	if strings.TrimSpace(job.Variables) != "" {
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			h.fail(ctx, client, job, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
			return
		}
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	channel := input.Channel
	if channel == "" {
		channel = h.config.DefaultChannel
	}

	target := strings.TrimSpace(input.URL)
	if target == "" {
		u, err := h.store.GetURL(ctx, channel)
		if err != nil {
			return nil, err
		}
		target = u
	}
	if target == "" {
		return nil, apperrors.NewWebhookNotConfiguredError(channel)
	}

	report := h.runner.Run(ctx, target)
	report.Channel = channel

	if err := h.runner.Record(ctx, report); err != nil {
		h.logger.Warn("diagnostics history unavailable", map[string]interface{}{
			"reportId": report.ID,
			"error":    err.Error(),
		})
	}

	out := &Output{Report: report}
	if report.Overall == diagnostics.OverallCritical && h.config.AlertOnCritical && h.alerter != nil {
		subject, body := alertMessage(report)
		if err := h.alerter.Alert(ctx, subject, body); err != nil {
			h.logger.Error("critical diagnostics alert failed", map[string]interface{}{
				"reportId": report.ID,
				"error":    err.Error(),
			})
		} else {
			out.Alerted = true
		}
	}
	return out, nil
}

func alertMessage(r diagnostics.Report) (string, string) {
	subject := fmt.Sprintf("[leadgen] webhook %s is %s", r.Channel, r.Overall)

	var b strings.Builder
	fmt.Fprintf(&b, "Report %s for %s at %s\n\n", r.ID, r.URL, r.StartedAt.Format("2006-01-02 15:04:05 MST"))
	for _, p := range r.Probes {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", p.Name, p.Status, p.Detail)
	}
	if len(r.Remediation) > 0 {
		b.WriteString("\nSuggested fixes:\n")
		for _, hint := range r.Remediation {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
	}
	return subject, b.String()
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
