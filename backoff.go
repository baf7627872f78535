package ssemux

import (
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
)

// BackoffFunc maps a zero-based retry attempt number to the delay before that
// attempt. The first retry uses attempt 0.
//
// A custom function may replace the exponential schedule, but the configured
// MaxRetryDelay ceiling is still enforced by the connection machine; it is
// never trusted from the custom function.
type BackoffFunc func(attempt int) time.Duration

// jitterSpread is the width of the uniform jitter added to every default
// backoff delay.
const jitterSpread = time.Second

// defaultBackoff returns the default retry schedule: the exponential term
// initial*2^attempt clamped to max, plus a uniform jitter in [0, 1s).
func defaultBackoff(initial, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		b := &backoff.Backoff{
			Min:    initial,
			Max:    max,
			Factor: 2,
			Jitter: false,
		}
		return b.ForAttempt(float64(attempt)) + time.Duration(rand.Int63n(int64(jitterSpread)))
	}
}
