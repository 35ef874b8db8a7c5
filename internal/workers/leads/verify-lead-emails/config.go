// internal/workers/leads/verify-lead-emails/config.go
package verifyleademails

import "time"

type Config struct {
	Timeout        time.Duration
	DefaultChannel string
	MaxBatchSize   int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        120 * time.Second,
		DefaultChannel: "email-verification",
		MaxBatchSize:   100,
	}
}
