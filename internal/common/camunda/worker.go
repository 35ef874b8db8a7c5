// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"leadgen-workers/internal/common/config"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/metrics"
)

// JobHandler is implemented by every worker in internal/workers.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job)
}

// Registry keeps the opened job workers so they can be closed together.
type Registry struct {
	client  zbc.Client
	logger  logger.Logger
	workers map[string]worker.JobWorker
}

func NewRegistry(client zbc.Client, log logger.Logger) *Registry {
	return &Registry{client: client, logger: log, workers: make(map[string]worker.JobWorker)}
}

// Register opens a job worker for taskType unless it is disabled.
func (r *Registry) Register(taskType string, wcfg config.WorkerConfig, handler JobHandler) bool {
	if !wcfg.Enabled {
		r.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return false
	}

	r.workers[taskType] = r.client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handler.Handle)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	r.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return true
}

// TaskTypes lists the registered task types.
func (r *Registry) TaskTypes() []string {
	out := make([]string, 0, len(r.workers))
	for t := range r.workers {
		out = append(out, t)
	}
	return out
}

// Close stops every job worker and waits for in-flight jobs.
func (r *Registry) Close() {
	for taskType, w := range r.workers {
		w.Close()
		w.AwaitClose()
		r.logger.Info("worker stopped", map[string]interface{}{"taskType": taskType})
	}
}

// Instrument tracks active jobs and duration for a handler.
func Instrument(taskType string, fn worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		}()
		fn(client, job)
	}
}
