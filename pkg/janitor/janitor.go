// Package janitor periodically purges finished jobs past their retention.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/MapColonies/jobnik/pkg/core"
)

// Purger deletes jobs in the given statuses not updated since olderThan.
// core.Storage implements it.
type Purger interface {
	PurgeJobs(ctx context.Context, statuses []core.JobStatus, olderThan time.Time) (int64, error)
}

// Janitor purges terminal jobs on a schedule.
type Janitor struct {
	purger    Purger
	schedule  Schedule
	retention time.Duration
	statuses  []core.JobStatus
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithSchedule sets when purges run. The default is hourly.
func WithSchedule(s Schedule) Option {
	return func(j *Janitor) { j.schedule = s }
}

// WithRetention sets how long a finished job is kept after its last update.
// The default is seven days.
func WithRetention(d time.Duration) Option {
	return func(j *Janitor) { j.retention = d }
}

// WithStatuses restricts purging to the given terminal statuses.
func WithStatuses(statuses ...core.JobStatus) Option {
	return func(j *Janitor) {
		kept := statuses[:0:0]
		for _, s := range statuses {
			if s.Finite() {
				kept = append(kept, s)
			}
		}
		j.statuses = kept
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Janitor) { j.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// New creates a Janitor over p.
func New(p Purger, opts ...Option) *Janitor {
	j := &Janitor{
		purger:    p,
		schedule:  Every(time.Hour),
		retention: 7 * 24 * time.Hour,
		statuses:  core.FiniteJobStatuses,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce purges once and returns the number of jobs removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if len(j.statuses) == 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	n, err := j.purger.PurgeJobs(ctx, j.statuses, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("purged finished jobs", "count", n, "older_than", cutoff)
	}
	return n, nil
}

// Start purges on every scheduled tick until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	for {
		now := j.now()
		wait := j.schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("purge failed", "error", err)
		}
	}
}
