// internal/common/config/loader.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads .env, configs/config.yaml, configs/config.<APP_ENVIRONMENT>.yaml
// and environment overrides, in that order.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	bindEnv(v)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func bindEnv(v *viper.Viper) {
	// webhook.max_attempts <- WEBHOOK_MAX_ATTEMPTS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Keys absent from the file are invisible to Unmarshal even with
	// AutomaticEnv, so the handful of secrets operators set via env are
	// read directly.
	overrideEmptyConfig(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Diagnostics.SNSTopicARN == "" {
		cfg.Diagnostics.SNSTopicARN = os.Getenv("DIAGNOSTICS_SNS_TOPIC_ARN")
	}

	if cfg.Settings.StaticURLs == nil {
		cfg.Settings.StaticURLs = map[string]string{}
	}
	// WEBHOOK_URL_GLOBAL, WEBHOOK_URL_CHAT, WEBHOOK_URL_EMAIL_VERIFICATION ...
	for _, channel := range []string{"global", "chat", "email-verification", "personalization"} {
		if cfg.Settings.StaticURLs[channel] != "" {
			continue
		}
		envKey := "WEBHOOK_URL_" + strings.ToUpper(strings.ReplaceAll(channel, "-", "_"))
		if val := os.Getenv(envKey); val != "" {
			cfg.Settings.StaticURLs[channel] = val
		}
	}
}

// applyDefaults fills every zero value from the canonical defaults.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "leadgen-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	applyWebhookDefaults(&cfg.Webhook)

	if cfg.Diagnostics.ProbeTimeout == 0 {
		cfg.Diagnostics.ProbeTimeout = 5000
	}
	if cfg.Diagnostics.HistorySize == 0 {
		cfg.Diagnostics.HistorySize = 10
	}
	if cfg.Diagnostics.HistoryBackend == "" {
		cfg.Diagnostics.HistoryBackend = "memory"
	}
	if cfg.Diagnostics.HistoryKey == "" {
		cfg.Diagnostics.HistoryKey = "webhook:diagnostics:history"
	}
	if cfg.Diagnostics.AllowedOrigin == "" {
		cfg.Diagnostics.AllowedOrigin = "http://localhost:3000"
	}

	if cfg.Settings.CacheTTL == 0 {
		cfg.Settings.CacheTTL = 60000
	}

	if cfg.Search.Index == "" {
		cfg.Search.Index = "leads"
	}
	if cfg.Search.DefaultSize == 0 {
		cfg.Search.DefaultSize = 25
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 5000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 60000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func applyWebhookDefaults(w *WebhookConfig) {
	def := DefaultWebhookConfig()
	if w.Timeout == 0 {
		w.Timeout = def.Timeout
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = def.MaxAttempts
	}
	if w.Backoff.Strategy == "" {
		w.Backoff.Strategy = def.Backoff.Strategy
	}
	if w.Backoff.BaseDelay == 0 {
		w.Backoff.BaseDelay = def.Backoff.BaseDelay
	}
	if w.Backoff.MaxDelay == 0 {
		w.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	if len(w.ErrorMarkers) == 0 {
		w.ErrorMarkers = def.ErrorMarkers
	}
	if w.TextField == "" {
		w.TextField = def.TextField
	}
	if w.MaxRawResponse == 0 {
		w.MaxRawResponse = def.MaxRawResponse
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be at least 1")
	}
	switch cfg.Webhook.Backoff.Strategy {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("webhook.backoff.strategy %q is not one of fixed, linear, exponential", cfg.Webhook.Backoff.Strategy)
	}
	switch cfg.Webhook.TextField {
	case TextFieldMessage, TextFieldChatInput, TextFieldBoth:
	default:
		return fmt.Errorf("webhook.text_field %q is not one of message, chatInput, both", cfg.Webhook.TextField)
	}

	switch cfg.Diagnostics.HistoryBackend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis diagnostics history")
		}
	default:
		return fmt.Errorf("diagnostics.history_backend %q is not one of memory, redis", cfg.Diagnostics.HistoryBackend)
	}

	for channel, raw := range cfg.Settings.StaticURLs {
		if raw == "" {
			continue
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("settings.static_urls.%s: %w", channel, err)
		}
	}

	if cfg.Search.LinkBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Search.LinkBaseURL); err != nil {
			return fmt.Errorf("search.link_base_url: %w", err)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       60000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
