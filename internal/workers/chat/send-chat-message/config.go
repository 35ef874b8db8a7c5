// internal/workers/chat/send-chat-message/config.go
package sendchatmessage

import "time"

type Config struct {
	Timeout        time.Duration
	DefaultChannel string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        60 * time.Second,
		DefaultChannel: "chat",
	}
}
