// internal/workers/leads/personalize-lead/config.go
package personalizelead

import "time"

type Config struct {
	Timeout            time.Duration
	DefaultChannel     string
	DefaultInstruction string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:            60 * time.Second,
		DefaultChannel:     "personalization",
		DefaultInstruction: "Erstelle eine personalisierte Erstansprache für diesen Lead.",
	}
}
