// internal/workers/operations/run-webhook-diagnostics/config.go
package runwebhookdiagnostics

import "time"

type Config struct {
	Timeout         time.Duration
	DefaultChannel  string
	AlertOnCritical bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         30 * time.Second,
		DefaultChannel:  "global",
		AlertOnCritical: true,
	}
}
