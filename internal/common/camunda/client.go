// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"leadgen-workers/internal/common/config"
	"leadgen-workers/internal/common/logger"
	"leadgen-workers/internal/common/webhook"
)

// ClientConfig holds configuration for the Zeebe gateway connection.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	MaxConnectAttempts     int
	Backoff                webhook.Backoff
}

// ConfigFrom maps the camunda section of the application config.
func ConfigFrom(cfg config.CamundaConfig) ClientConfig {
	timeout := time.Duration(cfg.RequestTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      timeout,
		MaxConnectAttempts:     10,
		Backoff:                webhook.ExponentialBackoff{Base: 2 * time.Second, Max: 30 * time.Second},
	}
}

// Connect opens a Zeebe client and waits until the gateway answers a
// topology request, retrying transient failures.
func Connect(ctx context.Context, cfg ClientConfig, log logger.Logger) (zbc.Client, error) {
	if cfg.MaxConnectAttempts <= 0 {
		cfg.MaxConnectAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = webhook.FixedBackoff{Interval: time.Second}
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxConnectAttempts; attempt++ {
		client, err := dial(ctx, cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if !isRetryableZeebeError(err) || attempt == cfg.MaxConnectAttempts {
			break
		}

		delay := cfg.Backoff.Delay(attempt)
		log.Warn("zeebe gateway not ready, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to zeebe cancelled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("connect to zeebe at %s: %w", cfg.GatewayAddress, lastErr)
}

func dial(ctx context.Context, cfg ClientConfig) (zbc.Client, error) {
	client, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, err
	}
	if err := HealthCheck(ctx, client, cfg.ConnectionTimeout); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// HealthCheck sends a topology request with a bounded deadline.
func HealthCheck(ctx context.Context, client zbc.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
