// cmd/worker-manager/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"leadgen-workers/internal/common/aws"
	"leadgen-workers/internal/common/camunda"
	"leadgen-workers/internal/common/config"
	"leadgen-workers/internal/common/database"
	"leadgen-workers/internal/common/diagnostics"
	commonhttp "leadgen-workers/internal/common/http"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/observability"
	"leadgen-workers/internal/common/settings"
	"leadgen-workers/internal/common/validation"
	"leadgen-workers/internal/common/webhook"
	"leadgen-workers/pkg/registry"

	// Chat
	scm "leadgen-workers/internal/workers/chat/send-chat-message"

	// Leads
	pl "leadgen-workers/internal/workers/leads/personalize-lead"
	sl "leadgen-workers/internal/workers/leads/search-leads"
	vle "leadgen-workers/internal/workers/leads/verify-lead-emails"

	// Operations
	rwd "leadgen-workers/internal/workers/operations/run-webhook-diagnostics"
)

// retryWithBackoff runs operation until it succeeds, doubling the delay
// between attempts.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// jobTimeout prefers the per-worker setting over the handler default.
func jobTimeout(wcfg config.WorkerConfig, def time.Duration) time.Duration {
	if wcfg.Timeout > 0 {
		return config.GetDuration(wcfg.Timeout)
	}
	return def
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, map[string]interface{}{"error": err.Error()})
	os.Exit(1)
}

func main() {
	bootLog := logger.NewStructured("info", "console")

	cfg, err := config.Load()
	if err != nil {
		fatal(bootLog, "config load failed", err)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":     cfg.App.Name,
		"version": cfg.App.Version,
	})
	log.Info("Starting worker manager...", nil)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	}
	defer tracing.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	zeebeClient, err := camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		fatal(log, "zeebe client failed after retries", err)
	}
	log.Info("Zeebe client connected successfully", map[string]interface{}{"gateway": cfg.Camunda.BrokerAddress})

	// --- Redis (settings cache, diagnostics history) ---
	var redisClient *redis.Client
	if cfg.Database.Redis.Address != "" {
		redisClient = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return database.PingRedis(ctx, redisClient)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			fatal(log, "redis failed after retries", err)
		}
		defer redisClient.Close()
		log.Info("Redis connected successfully", nil)
	}

	// --- Settings store ---
	var store settings.Store
	if cfg.Database.Postgres.Enabled() {
		var db *sql.DB
		err = retryWithBackoff(func() error {
			var err error
			if db == nil {
				if db, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
					return err
				}
			}
			return database.PingPostgres(ctx, db)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			fatal(log, "postgres failed after retries", err)
		}
		defer db.Close()

		var cache redis.Cmdable
		if redisClient != nil {
			cache = redisClient
		}
		store = settings.NewPostgresStore(db, cache, config.GetDuration(cfg.Settings.CacheTTL), log)
		log.Info("PostgreSQL settings store ready", nil)
	} else {
		store = settings.NewStaticStore(cfg.Settings.StaticURLs)
		log.Info("using static webhook settings", map[string]interface{}{"channels": len(cfg.Settings.StaticURLs)})
	}

	// --- Elasticsearch (lead search) ---
	var esClient *elasticsearch.Client
	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		err = retryWithBackoff(func() error {
			var err error
			if esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
				return err
			}
			return database.PingElasticsearch(ctx, esClient)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			fatal(log, "elasticsearch failed after retries", err)
		}
		log.Info("Elasticsearch connected successfully", nil)
	}

	// --- Activity registry + input validation ---
	reg, err := registry.Default()
	if err != nil {
		fatal(log, "activity registry invalid", err)
	}
	validator, err := validation.NewValidator(reg)
	if err != nil {
		fatal(log, "input schemas invalid", err)
	}

	// --- Webhook client ---
	webhookOpts, err := webhook.OptionsFromConfig(cfg.Webhook)
	if err != nil {
		fatal(log, "webhook configuration invalid", err)
	}
	webhookClient := webhook.NewClient(
		commonhttp.NewClient(5*time.Minute),
		webhookOpts,
		log,
		webhook.WithRecorder(obs),
		webhook.WithTracer(tracing.Tracer()),
	)

	// --- Diagnostics ---
	probeTimeout := config.GetDuration(cfg.Diagnostics.ProbeTimeout)
	var history diagnostics.History = diagnostics.NewMemoryHistory(cfg.Diagnostics.HistorySize)
	if cfg.Diagnostics.HistoryBackend == "redis" && redisClient != nil {
		history = diagnostics.NewRedisHistory(redisClient, cfg.Diagnostics.HistoryKey, cfg.Diagnostics.HistorySize, log)
	}
	runner := diagnostics.NewRunner(
		commonhttp.NewProbeClient(probeTimeout*2),
		diagnostics.Options{ProbeTimeout: probeTimeout, AllowedOrigin: cfg.Diagnostics.AllowedOrigin},
		history,
		log,
	)
	alerter, err := aws.NewAlerterFromConfig(ctx, cfg.Diagnostics, log)
	if err != nil {
		log.Warn("alerting disabled", map[string]interface{}{"error": err.Error()})
		alerter = aws.NewAlerter(log)
	}

	// --- Workers ---
	workers := camunda.NewRegistry(zeebeClient, log)

	scmCfg := scm.LoadConfig()
	wcfg := config.GetWorkerConfig(cfg, scm.TaskType)
	scmCfg.Timeout = jobTimeout(wcfg, scmCfg.Timeout)
	workers.Register(scm.TaskType, wcfg, scm.NewHandler(scmCfg, webhookClient, store, validator, log))

	plCfg := pl.LoadConfig()
	wcfg = config.GetWorkerConfig(cfg, pl.TaskType)
	plCfg.Timeout = jobTimeout(wcfg, plCfg.Timeout)
	workers.Register(pl.TaskType, wcfg, pl.NewHandler(plCfg, webhookClient, store, validator, log))

	vleCfg := vle.LoadConfig()
	wcfg = config.GetWorkerConfig(cfg, vle.TaskType)
	vleCfg.Timeout = jobTimeout(wcfg, vleCfg.Timeout)
	workers.Register(vle.TaskType, wcfg, vle.NewHandler(vleCfg, webhookClient, store, validator, log))

	wcfg = config.GetWorkerConfig(cfg, sl.TaskType)
	if esClient == nil {
		log.Warn("search-leads needs elasticsearch, worker not started", nil)
	} else {
		slCfg := sl.LoadConfig()
		if cfg.Search.Timeout > 0 {
			slCfg.Timeout = config.GetDuration(cfg.Search.Timeout)
		}
		if cfg.Search.Index != "" {
			slCfg.Index = cfg.Search.Index
		}
		if cfg.Search.DefaultSize > 0 {
			slCfg.DefaultSize = cfg.Search.DefaultSize
		}
		if cfg.Search.LinkBaseURL != "" {
			slCfg.LinkBaseURL = cfg.Search.LinkBaseURL
		}
		workers.Register(sl.TaskType, wcfg, sl.NewHandler(slCfg, esClient, validator, log))
	}

	rwdCfg := rwd.LoadConfig()
	wcfg = config.GetWorkerConfig(cfg, rwd.TaskType)
	rwdCfg.Timeout = jobTimeout(wcfg, rwdCfg.Timeout)
	rwdCfg.AlertOnCritical = cfg.Diagnostics.AlertOnCritical
	workers.Register(rwd.TaskType, wcfg, rwd.NewHandler(rwdCfg, runner, store, alerter, validator, log))

	log.Info("workers registered", map[string]interface{}{"taskTypes": workers.TaskTypes()})

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status, code := "ready", http.StatusOK
		if err := camunda.HealthCheck(r.Context(), zeebeClient, 2*time.Second); err != nil {
			status, code = "zeebe unavailable", http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/diagnostics/recent", func(w http.ResponseWriter, r *http.Request) {
		reports, err := runner.Recent(r.Context(), cfg.Diagnostics.HistorySize)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(reports)
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Health/Metrics server listening", map[string]interface{}{"address": cfg.Metrics.Address})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Health/Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received, stopping workers...", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	workers.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping Health/Metrics server", map[string]interface{}{"error": err.Error()})
	}
	if err := zeebeClient.Close(); err != nil {
		log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
	}
	log.Info("Worker manager stopped", nil)
}
