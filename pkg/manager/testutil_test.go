package manager

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/storage"
)

// openTestStorage returns migrated storage for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh SQLite file in the test's temp dir.
func openTestStorage(t *testing.T) *storage.GormStorage {
	t.Helper()

	var (
		s   *storage.GormStorage
		err error
	)
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		s, err = storage.Open(storage.DriverPostgres, dsn, nil, storage.MaxOpenConns(8))
		require.NoError(t, err, "open postgres test db")
		cleanup := func() {
			for _, tbl := range []string{"tasks", "stages", "jobs"} {
				s.DB().Exec("DELETE FROM " + tbl)
			}
		}
		require.NoError(t, s.Migrate(context.Background()))
		cleanup()
		t.Cleanup(cleanup)
	} else {
		path := filepath.Join(t.TempDir(), "jobnik.db")
		s, err = storage.Open(storage.DriverSQLite, path+"?_busy_timeout=5000", nil)
		require.NoError(t, err, "open sqlite")
		require.NoError(t, s.Migrate(context.Background()))
	}

	t.Cleanup(func() {
		if sqlDB, err := s.DB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(openTestStorage(t), opts...)
}

// newJob creates a job with one stage per type, each holding tasksPerStage tasks.
func newJob(t *testing.T, m *Manager, priority core.Priority, tasksPerStage int, types ...string) (*core.Job, []*core.Stage) {
	t.Helper()
	ctx := context.Background()

	job, err := m.CreateJob(ctx, core.NewJob{Name: "test-job", Priority: priority})
	require.NoError(t, err)

	stages := make([]*core.Stage, len(types))
	for i, typ := range types {
		stages[i], err = m.CreateStage(ctx, job.ID, core.NewStage{Type: typ})
		require.NoError(t, err)
		if tasksPerStage > 0 {
			addTasks(t, m, stages[i], tasksPerStage, 0)
		}
	}
	return job, stages
}

func addTasks(t *testing.T, m *Manager, stage *core.Stage, n, maxAttempts int) []*core.Task {
	t.Helper()
	in := make([]core.NewTask, n)
	for i := range in {
		in[i] = core.NewTask{MaxAttempts: maxAttempts}
	}
	tasks, err := m.CreateTasks(context.Background(), stage.ID, stage.Type, in)
	require.NoError(t, err)
	return tasks
}

// runStage dequeues and completes every task currently claimable for stageType.
func runStage(t *testing.T, m *Manager, stageType string) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		task, err := m.DequeueTask(ctx, stageType)
		require.NoError(t, err)
		if task == nil {
			return n
		}
		_, err = m.MarkTaskCompleted(ctx, task.ID)
		require.NoError(t, err)
		n++
	}
}

func mustJob(t *testing.T, m *Manager, id string) *core.Job {
	t.Helper()
	job, err := m.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func mustStage(t *testing.T, m *Manager, id string) *core.Stage {
	t.Helper()
	stage, err := m.GetStage(context.Background(), id)
	require.NoError(t, err)
	return stage
}

func mustTask(t *testing.T, m *Manager, id string) *core.Task {
	t.Helper()
	task, err := m.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

// recordingNotifier remembers every stage type it was told about.
type recordingNotifier struct {
	mu    sync.Mutex
	types []string
}

func (n *recordingNotifier) Notify(_ context.Context, stageType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.types = append(n.types, stageType)
	return nil
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.types))
	copy(out, n.types)
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	n.types = nil
	n.mu.Unlock()
}
