// internal/workers/leads/search-leads/config.go
package searchleads

import "time"

type Config struct {
	Timeout     time.Duration
	Index       string
	DefaultSize int
	MaxSize     int
	LinkBaseURL string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     10 * time.Second,
		Index:       "leads",
		DefaultSize: 25,
		MaxSize:     500,
		LinkBaseURL: "https://app.leadgen.local/leads/search",
	}
}
