package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStorage(t *testing.T) *storage.GormStorage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobnik.db")
	s, err := storage.Open(storage.DriverSQLite, path+"?_busy_timeout=5000", nil)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		if sqlDB, err := s.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return s
}

func TestRunOnce_PurgesExpiredTerminalJobs(t *testing.T) {
	s := openStorage(t)
	ctx := context.Background()

	done := &core.Job{Name: "done", Priority: core.PriorityMedium, Status: core.JobStatusCompleted}
	running := &core.Job{Name: "running", Priority: core.PriorityMedium, Status: core.JobStatusInProgress}
	require.NoError(t, s.CreateJob(ctx, done))
	require.NoError(t, s.CreateJob(ctx, running))
	stage := &core.Stage{JobID: done.ID, Type: "tiles", Order: 1, Status: core.StageStatusCompleted}
	require.NoError(t, s.CreateStage(ctx, stage))

	later := time.Now().Add(2 * time.Hour)
	j := New(s,
		WithRetention(time.Hour),
		WithClock(func() time.Time { return later }),
		WithLogger(quietLogger()),
	)

	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := s.GetJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	gotStage, err := s.GetStage(ctx, stage.ID)
	require.NoError(t, err)
	assert.Nil(t, gotStage)

	kept, err := s.GetJob(ctx, running.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRunOnce_KeepsRecentJobs(t *testing.T) {
	s := openStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, &core.Job{Name: "fresh", Priority: core.PriorityLow, Status: core.JobStatusFailed}))

	j := New(s, WithRetention(time.Hour), WithLogger(quietLogger()))
	n, err := j.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithStatuses_DropsNonTerminal(t *testing.T) {
	j := New(nil, WithStatuses(core.JobStatusAborted, core.JobStatusPending))
	assert.Equal(t, []core.JobStatus{core.JobStatusAborted}, j.statuses)

	j = New(nil, WithStatuses(core.JobStatusPending))
	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) PurgeJobs(context.Context, []core.JobStatus, time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 0, p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestStart_RunsOnSchedule(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	j := New(p, WithSchedule(Every(10*time.Millisecond)), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Start(ctx) }()

	assert.Eventually(t, func() bool { return p.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// ────────────────────────────────────────────────────────────────────────────
// Schedules
// ────────────────────────────────────────────────────────────────────────────

func TestEvery(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Every(time.Hour)

	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), s.Next(start))
}

func TestDaily(t *testing.T) {
	s := Daily(3, 30)

	assert.Equal(t, time.Date(2024, 1, 1, 3, 30, 0, 0, time.UTC), s.Next(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 30, 0, 0, time.UTC), s.Next(time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC)))
}

func TestCron(t *testing.T) {
	s, err := Cron("0 2 * * *")
	require.NoError(t, err)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), s.Next(from))

	every, err := Cron("@every 30s")
	require.NoError(t, err)
	assert.Equal(t, from.Add(30*time.Second), every.Next(from))

	_, err = Cron("not a cron")
	assert.Error(t, err)
}
