package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MapColonies/jobnik/pkg/core"
)

// ──────────────────────────────────────────────────────────────────────────────
// Constructor / detection
// ──────────────────────────────────────────────────────────────────────────────

func TestNewGormStorage_IsSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewGormStorage(db)
	assert.True(t, s.IsSQLite(), "should detect SQLite dialect")
	assert.Same(t, db, s.DB())
}

func TestNewGormStorage_NilDB(t *testing.T) {
	s := NewGormStorage(nil)
	assert.False(t, s.IsSQLite(), "nil db should not claim SQLite")
}

// ──────────────────────────────────────────────────────────────────────────────
// Creation and reads
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateJob_AssignsIDAndRank(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	job := &core.Job{
		Name:     "export",
		Priority: core.PriorityVeryHigh,
		Status:   core.JobStatusPending,
		Data:     datatypes.JSON(`{"region":"north"}`),
	}
	require.NoError(t, s.CreateJob(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 5, job.PriorityRank)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "export", got.Name)
	assert.Equal(t, core.JobStatusPending, got.Status)
	assert.JSONEq(t, `{"region":"north"}`, string(got.Data))
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetters_ReturnNilForMissingRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	job, err := s.GetJob(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, job)

	stage, err := s.GetStage(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, stage)

	task, err := s.LockTask(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, task)
}

func TestListStages_OrderedByOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusPending)

	seedStage(t, s, job.ID, "b", 2, core.StageStatusCreated)
	seedStage(t, s, job.ID, "a", 1, core.StageStatusPending)
	seedStage(t, s, job.ID, "c", 3, core.StageStatusCreated)

	stages, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	for i, st := range stages {
		assert.Equal(t, i+1, st.Order)
	}

	order, err := s.MaxStageOrder(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, order)
}

func TestMaxStageOrder_EmptyJob(t *testing.T) {
	s := newTestStorage(t)
	order, err := s.MaxStageOrder(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.Equal(t, 0, order)
}

func TestCountTasksByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusPending)
	stage := seedStage(t, s, job.ID, "work", 1, core.StageStatusPending)
	tasks := seedTasks(t, s, stage, 3)

	tasks[0].Status = core.TaskStatusCompleted
	require.NoError(t, s.UpdateTask(ctx, tasks[0], core.TaskStatusPending))

	counts, err := s.CountTasksByStatus(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, map[core.TaskStatus]int{
		core.TaskStatusPending:   2,
		core.TaskStatusCompleted: 1,
	}, counts)

	n, err := s.CountTasks(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// ──────────────────────────────────────────────────────────────────────────────
// Guarded updates
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateJob_GuardedByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityLow, core.JobStatusPending)

	job.Status = core.JobStatusInProgress
	job.Percentage = 25
	require.NoError(t, s.UpdateJob(ctx, job, core.JobStatusPending))

	stale := *job
	stale.Status = core.JobStatusPaused
	err := s.UpdateJob(ctx, &stale, core.JobStatusPending)
	assert.True(t, errors.Is(err, core.ErrConflict), "update with stale expected status must conflict")

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusInProgress, got.Status)
	assert.Equal(t, 25, got.Percentage)
}

func TestUpdateJob_PriorityChangesRank(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityLow, core.JobStatusPending)

	job.Priority = core.PriorityHigh
	require.NoError(t, s.UpdateJob(ctx, job, core.JobStatusPending))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityHigh, got.Priority)
	assert.Equal(t, 4, got.PriorityRank)
}

func TestUpdateStage_PersistsSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusPending)
	stage := seedStage(t, s, job.ID, "work", 1, core.StageStatusPending)

	stage.Status = core.StageStatusInProgress
	stage.Summary = core.Summary{Pending: 1, InProgress: 1, Total: 2}
	require.NoError(t, s.UpdateStage(ctx, stage, core.StageStatusPending))

	got, err := s.GetStage(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StageStatusInProgress, got.Status)
	assert.Equal(t, core.Summary{Pending: 1, InProgress: 1, Total: 2}, got.Summary)

	err = s.UpdateStage(ctx, stage, core.StageStatusPending)
	assert.True(t, errors.Is(err, core.ErrConflict))
}

// ──────────────────────────────────────────────────────────────────────────────
// Dequeue candidates and claims
// ──────────────────────────────────────────────────────────────────────────────

func TestFindDequeueCandidate_PriorityThenAge(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	var expected []string
	for _, p := range []core.Priority{core.PriorityLow, core.PriorityMedium, core.PriorityVeryHigh, core.PriorityHigh} {
		job := seedJob(t, s, p, core.JobStatusPending)
		stage := seedStage(t, s, job.ID, "shared", 1, core.StageStatusPending)
		seedTasks(t, s, stage, 1)
		expected = append(expected, job.ID)
		time.Sleep(2 * time.Millisecond)
	}
	// VERY_HIGH, HIGH, MEDIUM, LOW
	want := []string{expected[2], expected[3], expected[1], expected[0]}

	for _, jobID := range want {
		task, err := s.FindDequeueCandidate(ctx, "shared")
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, jobID, task.JobID)
		require.NoError(t, s.ClaimTask(ctx, task.ID, time.Now()))
	}

	task, err := s.FindDequeueCandidate(ctx, "shared")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestFindDequeueCandidate_SameJobByStageThenTaskOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusInProgress)
	second := seedStage(t, s, job.ID, "work", 2, core.StageStatusPending)
	first := seedStage(t, s, job.ID, "work", 1, core.StageStatusInProgress)
	secondTasks := seedTasks(t, s, second, 1)
	firstTasks := seedTasks(t, s, first, 2)

	for _, want := range []*core.Task{firstTasks[0], firstTasks[1], secondTasks[0]} {
		task, err := s.FindDequeueCandidate(ctx, "work")
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, want.ID, task.ID)
		require.NoError(t, s.ClaimTask(ctx, task.ID, time.Now()))
	}
}

func TestFindDequeueCandidate_SkipsIneligibleParents(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	paused := seedJob(t, s, core.PriorityVeryHigh, core.JobStatusPaused)
	seedTasks(t, s, seedStage(t, s, paused.ID, "work", 1, core.StageStatusPending), 1)

	waiting := seedJob(t, s, core.PriorityVeryHigh, core.JobStatusInProgress)
	seedTasks(t, s, seedStage(t, s, waiting.ID, "work", 1, core.StageStatusWaiting), 1)

	created := seedJob(t, s, core.PriorityVeryHigh, core.JobStatusInProgress)
	seedTasks(t, s, seedStage(t, s, created.ID, "work", 2, core.StageStatusCreated), 1)

	otherType := seedJob(t, s, core.PriorityVeryHigh, core.JobStatusPending)
	seedTasks(t, s, seedStage(t, s, otherType.ID, "other", 1, core.StageStatusPending), 1)

	task, err := s.FindDequeueCandidate(ctx, "work")
	require.NoError(t, err)
	assert.Nil(t, task)

	eligible := seedJob(t, s, core.PriorityVeryLow, core.JobStatusPending)
	want := seedTasks(t, s, seedStage(t, s, eligible.ID, "work", 1, core.StageStatusPending), 1)

	task, err = s.FindDequeueCandidate(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, want[0].ID, task.ID)
}

func TestFindDequeueCandidate_RetriedTasksAreEligible(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusInProgress)
	stage := seedStage(t, s, job.ID, "work", 1, core.StageStatusInProgress)
	task := seedTasks(t, s, stage, 1)[0]

	require.NoError(t, s.ClaimTask(ctx, task.ID, time.Now()))
	task.Status = core.TaskStatusRetried
	task.Attempts = 1
	require.NoError(t, s.UpdateTask(ctx, task, core.TaskStatusInProgress))

	got, err := s.FindDequeueCandidate(ctx, "work")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, 1, got.Attempts)
}

func TestClaimTask_SecondClaimConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusPending)
	task := seedTasks(t, s, seedStage(t, s, job.ID, "work", 1, core.StageStatusPending), 1)[0]

	require.NoError(t, s.ClaimTask(ctx, task.ID, time.Now()))
	err := s.ClaimTask(ctx, task.ID, time.Now())
	assert.True(t, errors.Is(err, core.ErrConflict))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────────────────────────────────

func TestTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusPending)

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx core.Storage) error {
		locked, err := tx.LockJob(ctx, job.ID)
		require.NoError(t, err)
		locked.Status = core.JobStatusPaused
		require.NoError(t, tx.UpdateJob(ctx, locked, core.JobStatusPending))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, got.Status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Abort, delete, purge, list
// ──────────────────────────────────────────────────────────────────────────────

func TestAbortTasks_LeavesTerminalRowsAlone(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusInProgress)
	done := seedStage(t, s, job.ID, "work", 1, core.StageStatusCompleted)
	active := seedStage(t, s, job.ID, "work", 2, core.StageStatusInProgress)
	doneTask := seedTasks(t, s, done, 1)[0]
	doneTask.Status = core.TaskStatusCompleted
	require.NoError(t, s.UpdateTask(ctx, doneTask, core.TaskStatusPending))
	seedTasks(t, s, active, 2)

	tasks, err := s.AbortTasks(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tasks)

	got, err := s.GetTask(ctx, doneTask.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCompleted, got.Status)
}

func TestDeleteJob_Cascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	job := seedJob(t, s, core.PriorityMedium, core.JobStatusCompleted)
	stage := seedStage(t, s, job.ID, "work", 1, core.StageStatusCompleted)
	task := seedTasks(t, s, stage, 1)[0]
	other := seedJob(t, s, core.PriorityMedium, core.JobStatusCompleted)

	require.NoError(t, s.DeleteJob(ctx, job.ID))

	gotJob, _ := s.GetJob(ctx, job.ID)
	gotStage, _ := s.GetStage(ctx, stage.ID)
	gotTask, _ := s.GetTask(ctx, task.ID)
	assert.Nil(t, gotJob)
	assert.Nil(t, gotStage)
	assert.Nil(t, gotTask)

	kept, err := s.GetJob(ctx, other.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPurgeJobs_OnlyExpiredFiniteJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	oldDone := seedJob(t, s, core.PriorityMedium, core.JobStatusCompleted)
	oldStage := seedStage(t, s, oldDone.ID, "work", 1, core.StageStatusCompleted)
	oldTask := seedTasks(t, s, oldStage, 1)[0]
	oldRunning := seedJob(t, s, core.PriorityMedium, core.JobStatusInProgress)

	cutoff := time.Now().Add(time.Second)
	freshDone := seedJob(t, s, core.PriorityMedium, core.JobStatusFailed)
	require.NoError(t, s.DB().Model(&core.Job{}).Where("id = ?", freshDone.ID).
		Update("updated_at", cutoff.Add(time.Hour)).Error)

	purged, err := s.PurgeJobs(ctx, core.FiniteJobStatuses, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	gone, _ := s.GetJob(ctx, oldDone.ID)
	goneTask, _ := s.GetTask(ctx, oldTask.ID)
	assert.Nil(t, gone)
	assert.Nil(t, goneTask)

	stillRunning, _ := s.GetJob(ctx, oldRunning.ID)
	stillFresh, _ := s.GetJob(ctx, freshDone.ID)
	assert.NotNil(t, stillRunning)
	assert.NotNil(t, stillFresh)
}

func TestListJobs_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		seedJob(t, s, core.PriorityHigh, core.JobStatusPending)
	}
	seedJob(t, s, core.PriorityLow, core.JobStatusCompleted)

	jobs, total, err := s.ListJobs(ctx, core.JobFilter{Priority: core.PriorityHigh, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, jobs, 2)

	jobs, total, err = s.ListJobs(ctx, core.JobFilter{Status: core.JobStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, jobs, 1)
	assert.Equal(t, core.PriorityLow, jobs[0].Priority)

	jobs, _, err = s.ListJobs(ctx, core.JobFilter{Name: "see"})
	require.NoError(t, err)
	assert.Len(t, jobs, 4)
}
