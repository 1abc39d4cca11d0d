// Package storage provides storage implementations for the jobnik engine.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MapColonies/jobnik/pkg/core"
)

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Storage = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// IsSQLite reports whether the storage runs on SQLite. SQLite has no row
// locks; writers are serialised by the database file lock instead.
func (s *GormStorage) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{}, &core.Stage{}, &core.Task{})
}

// Transaction runs fn inside a database transaction.
func (s *GormStorage) Transaction(ctx context.Context, fn func(tx core.Storage) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStorage{db: tx})
	})
	return translateError(err)
}

// CreateJob inserts a job, assigning an id when missing.
func (s *GormStorage) CreateJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.PriorityRank = job.Priority.Rank()
	return translateError(s.db.WithContext(ctx).Create(job).Error)
}

// CreateStage inserts a stage, assigning an id when missing.
func (s *GormStorage) CreateStage(ctx context.Context, stage *core.Stage) error {
	if stage.ID == "" {
		stage.ID = uuid.New().String()
	}
	return translateError(s.db.WithContext(ctx).Create(stage).Error)
}

// CreateTasks inserts tasks in batches, assigning ids when missing.
func (s *GormStorage) CreateTasks(ctx context.Context, tasks []*core.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
	}
	return translateError(s.db.WithContext(ctx).CreateInBatches(tasks, 500).Error)
}

// GetJob retrieves a job by ID. Returns nil, nil if not found.
func (s *GormStorage) GetJob(ctx context.Context, id string) (*core.Job, error) {
	return take[core.Job](s.db.WithContext(ctx), id)
}

// GetStage retrieves a stage by ID. Returns nil, nil if not found.
func (s *GormStorage) GetStage(ctx context.Context, id string) (*core.Stage, error) {
	return take[core.Stage](s.db.WithContext(ctx), id)
}

// GetTask retrieves a task by ID. Returns nil, nil if not found.
func (s *GormStorage) GetTask(ctx context.Context, id string) (*core.Task, error) {
	return take[core.Task](s.db.WithContext(ctx), id)
}

// LockJob is GetJob holding a row lock until the transaction ends.
func (s *GormStorage) LockJob(ctx context.Context, id string) (*core.Job, error) {
	return take[core.Job](s.forUpdate(ctx), id)
}

// LockStage is GetStage holding a row lock until the transaction ends.
func (s *GormStorage) LockStage(ctx context.Context, id string) (*core.Stage, error) {
	return take[core.Stage](s.forUpdate(ctx), id)
}

// LockTask is GetTask holding a row lock until the transaction ends.
func (s *GormStorage) LockTask(ctx context.Context, id string) (*core.Task, error) {
	return take[core.Task](s.forUpdate(ctx), id)
}

func (s *GormStorage) forUpdate(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if !s.IsSQLite() {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func take[T any](q *gorm.DB, id string) (*T, error) {
	var v T
	err := q.Where("id = ?", id).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &v, nil
}

// ListStages returns a job's stages in order.
func (s *GormStorage) ListStages(ctx context.Context, jobID string) ([]*core.Stage, error) {
	var stages []*core.Stage
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("stage_order ASC").
		Find(&stages).Error
	return stages, translateError(err)
}

// ListTasks returns a stage's tasks in creation order.
func (s *GormStorage) ListTasks(ctx context.Context, stageID string) ([]*core.Task, error) {
	var tasks []*core.Task
	err := s.db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("ordinal ASC").
		Find(&tasks).Error
	return tasks, translateError(err)
}

// MaxStageOrder returns the highest stage order of a job, 0 when it has none.
func (s *GormStorage) MaxStageOrder(ctx context.Context, jobID string) (int, error) {
	var order int
	err := s.db.WithContext(ctx).
		Model(&core.Stage{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(MAX(stage_order), 0)").
		Scan(&order).Error
	return order, translateError(err)
}

// CountTasks returns the number of tasks in a stage.
func (s *GormStorage) CountTasks(ctx context.Context, stageID string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("stage_id = ?", stageID).
		Count(&n).Error
	return int(n), translateError(err)
}

// CountTasksByStatus returns a stage's task counts grouped by status.
func (s *GormStorage) CountTasksByStatus(ctx context.Context, stageID string) (map[core.TaskStatus]int, error) {
	type row struct {
		Status core.TaskStatus
		Count  int
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Select("status, count(*) as count").
		Where("stage_id = ?", stageID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	counts := make(map[core.TaskStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// UpdateJob persists a job's mutable fields if its status is still expected.
func (s *GormStorage) UpdateJob(ctx context.Context, job *core.Job, expected core.JobStatus) error {
	job.UpdatedAt = time.Now()
	job.PriorityRank = job.Priority.Rank()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND status = ?", job.ID, expected).
		Updates(map[string]any{
			"status":        job.Status,
			"percentage":    job.Percentage,
			"priority":      job.Priority,
			"priority_rank": job.PriorityRank,
			"user_metadata": job.UserMetadata,
			"updated_at":    job.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return core.Conflict(core.KindJob, job.ID)
	}
	return nil
}

// UpdateStage persists a stage's mutable fields if its status is still expected.
func (s *GormStorage) UpdateStage(ctx context.Context, stage *core.Stage, expected core.StageStatus) error {
	stage.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Stage{}).
		Where("id = ? AND status = ?", stage.ID, expected).
		Updates(map[string]any{
			"status":              stage.Status,
			"percentage":          stage.Percentage,
			"summary_created":     stage.Summary.Created,
			"summary_pending":     stage.Summary.Pending,
			"summary_in_progress": stage.Summary.InProgress,
			"summary_completed":   stage.Summary.Completed,
			"summary_failed":      stage.Summary.Failed,
			"summary_retried":     stage.Summary.Retried,
			"summary_total":       stage.Summary.Total,
			"user_metadata":       stage.UserMetadata,
			"updated_at":          stage.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return core.Conflict(core.KindStage, stage.ID)
	}
	return nil
}

// UpdateTask persists a task's mutable fields if its status is still expected.
func (s *GormStorage) UpdateTask(ctx context.Context, task *core.Task, expected core.TaskStatus) error {
	task.UpdatedAt = time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND status = ?", task.ID, expected).
		Updates(map[string]any{
			"status":        task.Status,
			"attempts":      task.Attempts,
			"started_at":    task.StartedAt,
			"completed_at":  task.CompletedAt,
			"user_metadata": task.UserMetadata,
			"updated_at":    task.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return core.Conflict(core.KindTask, task.ID)
	}
	return nil
}

var finiteTaskStatuses = []core.TaskStatus{
	core.TaskStatusCompleted, core.TaskStatusFailed, core.TaskStatusAborted,
}

// AbortTasks moves every non-terminal task of a job to ABORTED.
func (s *GormStorage) AbortTasks(ctx context.Context, jobID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("job_id = ? AND status NOT IN ?", jobID, finiteTaskStatuses).
		Updates(map[string]any{
			"status":     core.TaskStatusAborted,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, translateError(result.Error)
}
