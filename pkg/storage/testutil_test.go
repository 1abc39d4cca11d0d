package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MapColonies/jobnik/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh SQLite file in the test's temp dir on a single connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")
		require.NoError(t, ConfigurePool(db, MaxOpenConns(4), MaxIdleConns(2)))

		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(t, db)
		t.Cleanup(func() {
			cleanupPostgresDB(t, db)
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		return db
	}

	path := filepath.Join(t.TempDir(), "jobnik.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), cfg)
	require.NoError(t, err, "open sqlite")
	require.NoError(t, ConfigurePool(db, WithPoolConfig(SQLitePoolConfig())))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// cleanupPostgresDB deletes all rows so tests are isolated without
// requiring a fresh database per test.
func cleanupPostgresDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, tbl := range []string{"tasks", "stages", "jobs"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

// newTestStorage returns migrated storage backed by openTestDB.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func seedJob(t *testing.T, s *GormStorage, priority core.Priority, status core.JobStatus) *core.Job {
	t.Helper()
	job := &core.Job{Name: "seed", Priority: priority, Status: status}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func seedStage(t *testing.T, s *GormStorage, jobID, stageType string, order int, status core.StageStatus) *core.Stage {
	t.Helper()
	stage := &core.Stage{JobID: jobID, Type: stageType, Order: order, Status: status}
	require.NoError(t, s.CreateStage(context.Background(), stage))
	return stage
}

func seedTasks(t *testing.T, s *GormStorage, stage *core.Stage, n int) []*core.Task {
	t.Helper()
	tasks := make([]*core.Task, n)
	for i := range tasks {
		tasks[i] = &core.Task{
			StageID:     stage.ID,
			JobID:       stage.JobID,
			Ordinal:     i,
			Status:      core.TaskStatusPending,
			MaxAttempts: 3,
		}
	}
	require.NoError(t, s.CreateTasks(context.Background(), tasks))
	return tasks
}
