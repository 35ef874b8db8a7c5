package webhook

import (
	"context"
	"fmt"
	"time"
)

// Backoff strategy names accepted in configuration.
const (
	BackoffFixed       = "fixed"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Backoff returns the wait before the next attempt. failed is the 1-based
// number of the attempt that just failed.
type Backoff interface {
	Delay(failed int) time.Duration
}

type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration {
	return b.Interval
}

// LinearBackoff waits failed × Base, capped at Max when Max > 0.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b LinearBackoff) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	return capDelay(time.Duration(failed)*b.Base, b.Max)
}

// ExponentialBackoff waits Base × 2^(failed-1), capped at Max when Max > 0.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	shift := failed - 1
	if shift > 30 {
		shift = 30
	}
	return capDelay(b.Base*time.Duration(1<<shift), b.Max)
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// NewBackoff builds a strategy by name. An empty name selects linear.
func NewBackoff(strategy string, base, max time.Duration) (Backoff, error) {
	switch strategy {
	case "", BackoffLinear:
		return LinearBackoff{Base: base, Max: max}, nil
	case BackoffFixed:
		return FixedBackoff{Interval: base}, nil
	case BackoffExponential:
		return ExponentialBackoff{Base: base, Max: max}, nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", strategy)
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
