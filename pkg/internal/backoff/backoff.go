// Package backoff retries operations with jittered exponential backoff.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Config holds configuration for retry with backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Values below 1 allow a single attempt.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each attempt.
	BackoffMultiplier float64

	// JitterFraction randomizes each delay by up to this fraction (0.0 to 1.0).
	JitterFraction float64
}

// Retry runs op until it succeeds, fails with an error retryable rejects, or
// exhausts the attempts. It returns the last error, or ctx.Err() when ctx is
// cancelled while waiting.
func Retry(ctx context.Context, config Config, retryable func(error) bool, op func() error) error {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := config.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff, config.JitterFraction)):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return lastErr
}

func jittered(backoff time.Duration, fraction float64) time.Duration {
	jitter := time.Duration(float64(backoff) * fraction * (rand.Float64()*2 - 1))
	if d := backoff + jitter; d >= 0 {
		return d
	}
	return backoff
}
