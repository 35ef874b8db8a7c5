// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Camunda     CamundaConfig           `mapstructure:"camunda"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Webhook     WebhookConfig           `mapstructure:"webhook"`
	Diagnostics DiagnosticsConfig       `mapstructure:"diagnostics"`
	Settings    SettingsConfig          `mapstructure:"settings"`
	Search      SearchConfig            `mapstructure:"search"`
	Workers     map[string]WorkerConfig `mapstructure:"workers"`
	Logging     LoggingConfig           `mapstructure:"logging"`
	Tracing     TracingConfig           `mapstructure:"tracing"`
	Metrics     MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// Enabled reports whether enough is configured to open a connection.
func (p PostgresConfig) Enabled() bool {
	return p.Host != "" && p.Database != ""
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // job retries handed back to the broker
}

// --- Webhook ---

// WebhookConfig is the one place the outbound webhook behaviour is
// configured. Defaults live in DefaultWebhookConfig.
type WebhookConfig struct {
	Timeout            int           `mapstructure:"timeout"` // milliseconds, per attempt
	MaxAttempts        int           `mapstructure:"max_attempts"`
	Backoff            BackoffConfig `mapstructure:"backoff"`
	ErrorMarkers       []string      `mapstructure:"error_markers"`
	TextField          string        `mapstructure:"text_field"` // message | chatInput | both
	OmitRequestHeaders bool          `mapstructure:"omit_request_headers"`
	MaxRawResponse     int           `mapstructure:"max_raw_response"` // bytes kept in debug output
}

type BackoffConfig struct {
	Strategy  string `mapstructure:"strategy"`   // fixed | linear | exponential
	BaseDelay int    `mapstructure:"base_delay"` // milliseconds
	MaxDelay  int    `mapstructure:"max_delay"`  // milliseconds
}

// Text field names accepted by the external workflows.
const (
	TextFieldMessage   = "message"
	TextFieldChatInput = "chatInput"
	TextFieldBoth      = "both"
)

// DefaultErrorMarkers are matched case-insensitively against 200 OK bodies.
var DefaultErrorMarkers = []string{
	"error in workflow",
	"workflow execution failed",
	"internal server error",
	"firstentryjson",
}

// DefaultWebhookConfig returns the canonical webhook defaults.
func DefaultWebhookConfig() WebhookConfig {
	markers := make([]string, len(DefaultErrorMarkers))
	copy(markers, DefaultErrorMarkers)
	return WebhookConfig{
		Timeout:     15000,
		MaxAttempts: 2,
		Backoff: BackoffConfig{
			Strategy:  "linear",
			BaseDelay: 1000,
			MaxDelay:  10000,
		},
		ErrorMarkers:   markers,
		TextField:      TextFieldMessage,
		MaxRawResponse: 2048,
	}
}

// --- Diagnostics ---
type DiagnosticsConfig struct {
	ProbeTimeout    int    `mapstructure:"probe_timeout"` // milliseconds
	HistorySize     int    `mapstructure:"history_size"`
	HistoryBackend  string `mapstructure:"history_backend"` // memory | redis
	HistoryKey      string `mapstructure:"history_key"`
	AllowedOrigin   string `mapstructure:"allowed_origin"`
	AlertOnCritical bool   `mapstructure:"alert_on_critical"`
	AWSRegion       string `mapstructure:"aws_region"`
	SNSTopicARN     string `mapstructure:"sns_topic_arn"`
	AlertEmailFrom  string `mapstructure:"alert_email_from"`
	AlertEmailTo    string `mapstructure:"alert_email_to"`
}

// --- Settings store ---
type SettingsConfig struct {
	CacheTTL   int               `mapstructure:"cache_ttl"` // milliseconds
	StaticURLs map[string]string `mapstructure:"static_urls"`
}

// --- Lead search ---
type SearchConfig struct {
	Index       string `mapstructure:"index"`
	DefaultSize int    `mapstructure:"default_size"`
	LinkBaseURL string `mapstructure:"link_base_url"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig enables span export when JaegerEndpoint is set.
type TracingConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}
