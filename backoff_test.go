package ssemux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBackoffFirstAttempt(t *testing.T) {
	delay := defaultBackoff(time.Second, 30*time.Second)
	for i := 0; i < 50; i++ {
		d := delay(0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}

func TestDefaultBackoffGrowth(t *testing.T) {
	delay := defaultBackoff(time.Second, 30*time.Second)
	for attempt, want := range []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	} {
		d := delay(attempt)
		assert.GreaterOrEqual(t, d, want, "attempt %d", attempt)
		assert.Less(t, d, want+jitterSpread, "attempt %d", attempt)
	}
}

func TestDefaultBackoffCeiling(t *testing.T) {
	delay := defaultBackoff(time.Second, 30*time.Second)
	for i := 0; i < 50; i++ {
		// the exponential term is clamped before jitter is added
		d := delay(5)
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 31*time.Second)
	}
}

func TestRetryDelayClampsCustomBackoff(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRetryDelay = 10 * time.Second
	opts.Backoff = func(attempt int) time.Duration {
		return time.Hour
	}

	// the ceiling is enforced on the custom function, never trusted from it
	assert.Equal(t, 10*time.Second, opts.retryDelay(3))
}

func TestRetryDelayCustomNegative(t *testing.T) {
	opts := DefaultOptions()
	opts.Backoff = func(attempt int) time.Duration {
		return -time.Second
	}

	assert.Equal(t, time.Duration(0), opts.retryDelay(0))
}
