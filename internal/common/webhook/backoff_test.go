package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		want     []time.Duration
	}{
		{BackoffLinear, []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}},
		{BackoffFixed, []time.Duration{1 * time.Second, 1 * time.Second, 1 * time.Second, 1 * time.Second}},
		{BackoffExponential, []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}},
		{"", []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			b, err := NewBackoff(tt.strategy, time.Second, 3*time.Second)
			require.NoError(t, err)
			for i, want := range tt.want {
				assert.Equal(t, want, b.Delay(i+1), "failed attempt %d", i+1)
			}
		})
	}

	_, err := NewBackoff("jitter", time.Second, 0)
	assert.Error(t, err)
}

func TestExponentialBackoffUncapped(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond}
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestMarkerDetector(t *testing.T) {
	d := NewMarkerDetector([]string{"Error in workflow", "  ", "FirstEntryJson"})
	assert.Equal(t, []string{"error in workflow", "firstentryjson"}, d.Markers())

	marker, ok := d.Match("", "ERROR IN WORKFLOW: node failed")
	assert.True(t, ok)
	assert.Equal(t, "error in workflow", marker)

	_, ok = d.Match("all good")
	assert.False(t, ok)

	var nilDetector *MarkerDetector
	_, ok = nilDetector.Match("error in workflow")
	assert.False(t, ok)
}
