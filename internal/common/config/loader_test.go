package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesWebhookDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: leadgen-workers
settings:
  static_urls:
    global: https://n8n.example.com/webhook/lead-chat
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	def := DefaultWebhookConfig()
	assert.Equal(t, def.Timeout, cfg.Webhook.Timeout)
	assert.Equal(t, 2, cfg.Webhook.MaxAttempts)
	assert.Equal(t, "linear", cfg.Webhook.Backoff.Strategy)
	assert.Equal(t, 1000, cfg.Webhook.Backoff.BaseDelay)
	assert.Equal(t, DefaultErrorMarkers, cfg.Webhook.ErrorMarkers)
	assert.Equal(t, TextFieldMessage, cfg.Webhook.TextField)
	assert.False(t, cfg.Webhook.OmitRequestHeaders)
	assert.Equal(t, "memory", cfg.Diagnostics.HistoryBackend)
	assert.Equal(t, 10, cfg.Diagnostics.HistorySize)
	assert.Equal(t, "https://n8n.example.com/webhook/lead-chat", cfg.Settings.StaticURLs["global"])
	assert.Equal(t, "leads", cfg.Search.Index)
}

func TestLoadFromFile_OverridesAndMarkers(t *testing.T) {
	path := writeConfig(t, `
webhook:
  timeout: 5000
  max_attempts: 4
  text_field: both
  backoff:
    strategy: exponential
    base_delay: 250
  error_markers:
    - "node failed"
workers:
  send-chat-message:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Webhook.Timeout)
	assert.Equal(t, 4, cfg.Webhook.MaxAttempts)
	assert.Equal(t, TextFieldBoth, cfg.Webhook.TextField)
	assert.Equal(t, "exponential", cfg.Webhook.Backoff.Strategy)
	assert.Equal(t, 250, cfg.Webhook.Backoff.BaseDelay)
	assert.Equal(t, []string{"node failed"}, cfg.Webhook.ErrorMarkers)

	wc := GetWorkerConfig(cfg, "send-chat-message")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 60000, wc.Timeout)
	assert.Equal(t, 3, wc.MaxRetries)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "unknown backoff strategy",
			body: `
webhook:
  backoff:
    strategy: random
`,
			wantErr: "webhook.backoff.strategy",
		},
		{
			name: "unknown text field",
			body: `
webhook:
  text_field: prompt
`,
			wantErr: "webhook.text_field",
		},
		{
			name: "redis history without redis",
			body: `
diagnostics:
  history_backend: redis
`,
			wantErr: "database.redis.address",
		},
		{
			name: "bad static url",
			body: `
settings:
  static_urls:
    chat: "not a url"
`,
			wantErr: "settings.static_urls.chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOverrideEmptyConfig_WebhookURLFromEnv(t *testing.T) {
	t.Setenv("WEBHOOK_URL_EMAIL_VERIFICATION", "https://n8n.example.com/webhook/verify")

	cfg := &Config{}
	overrideEmptyConfig(cfg)

	assert.Equal(t, "https://n8n.example.com/webhook/verify", cfg.Settings.StaticURLs["email-verification"])
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 15*time.Second, GetDuration(15000))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}

func TestIsWorkerEnabled(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"search-leads": {Enabled: false}}}
	assert.False(t, IsWorkerEnabled(cfg, "search-leads"))
	assert.True(t, IsWorkerEnabled(cfg, "send-chat-message"))
}
