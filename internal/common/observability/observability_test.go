package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadgen-workers/internal/common/logger"
)

func TestRecordWebhookCall_NilSafe(t *testing.T) {
	var o *Observability
	assert.NotPanics(t, func() {
		o.RecordWebhookCall(context.Background(), "chat", true, false, 1, time.Millisecond)
		o.Shutdown()
	})

	assert.NotPanics(t, func() {
		(&Observability{}).RecordWebhookCall(context.Background(), "chat", false, true, 2, time.Second)
	})
}

func TestNew_RecordsAndShutsDown(t *testing.T) {
	o := New("leadgen-test", logger.NewTestLogger(t))
	require.NotNil(t, o)
	assert.NotPanics(t, func() {
		o.RecordWebhookCall(context.Background(), "chat", false, true, 2, 1500*time.Millisecond)
		o.Shutdown()
	})
}

func TestNewTracing_WithoutEndpointIsNoop(t *testing.T) {
	tr, err := NewTracing("leadgen-test", "", 1)
	require.NoError(t, err)

	_, span := tr.Tracer().Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
	tr.Shutdown()

	var nilTracing *Tracing
	assert.NotNil(t, nilTracing.Tracer())
}
