package manager

import (
	"context"
	"errors"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/internal/backoff"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig = backoff.Config

// retryConflicts runs op until it succeeds, fails with anything other than a
// concurrency conflict, or exhausts the policy. The last error is returned.
func retryConflicts(ctx context.Context, config RetryConfig, op func() error) error {
	return backoff.Retry(ctx, config, isConflict, op)
}

func isConflict(err error) bool {
	return errors.Is(err, core.ErrConflict)
}
