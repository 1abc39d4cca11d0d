package worker

import (
	"context"
	"errors"
	"time"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/internal/backoff"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig = backoff.Config

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff executes the operation with exponential backoff on failure.
// It respects context cancellation and returns the last error if all attempts fail.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	return backoff.Retry(ctx, config, IsRetryableError, operation)
}

// IsRetryableError determines if an error is worth retrying.
// Engine rejections are final, except for lost races.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var engineErr *core.Error
	if errors.As(err, &engineErr) {
		return errors.Is(err, core.ErrConflict)
	}
	// Driver and connection errors are usually transient.
	return true
}
