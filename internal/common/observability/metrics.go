package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter used for webhook call
// accounting. A zero value is safe to use and records nothing.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	webhookCalls    otelmetric.Int64Counter
	webhookDuration otelmetric.Float64Histogram
	fallbacks       otelmetric.Int64Counter
}

// New registers a Prometheus-backed meter provider. Exporter failures
// degrade to a no-op instance rather than aborting start-up.
func New(serviceName string, log Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("prometheus exporter unavailable, otel metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	webhookCalls, _ := meter.Int64Counter(
		"webhook.calls",
		otelmetric.WithDescription("Logical webhook requests by result"),
	)
	webhookDuration, _ := meter.Float64Histogram(
		"webhook.duration",
		otelmetric.WithDescription("Logical webhook request duration"),
		otelmetric.WithUnit("ms"),
	)
	fallbacks, _ := meter.Int64Counter(
		"webhook.fallbacks",
		otelmetric.WithDescription("Requests answered by the fallback generator"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		webhookCalls:    webhookCalls,
		webhookDuration: webhookDuration,
		fallbacks:       fallbacks,
	}
}

// Logger is the subset of logger.Logger used here.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

// RecordWebhookCall implements webhook.Recorder.
func (o *Observability) RecordWebhookCall(ctx context.Context, channel string, success, fallback bool, attempts int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("success", success),
		attribute.Int("attempts", attempts),
	)
	if o.webhookCalls != nil {
		o.webhookCalls.Add(ctx, 1, attrs)
	}
	if o.webhookDuration != nil {
		o.webhookDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
	if fallback && o.fallbacks != nil {
		o.fallbacks.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("channel", channel)))
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
