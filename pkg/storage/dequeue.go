package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MapColonies/jobnik/pkg/core"
)

var (
	claimableTaskStatuses = []core.TaskStatus{core.TaskStatusPending, core.TaskStatusRetried}
	eligibleStageStatuses = []core.StageStatus{core.StageStatusPending, core.StageStatusInProgress}
	eligibleJobStatuses   = []core.JobStatus{core.JobStatusPending, core.JobStatusInProgress}
)

// FindDequeueCandidate returns the task that should be handed out next for
// stageType, or nil, nil when nothing is eligible. The row is not claimed.
//
// Order: job priority, job age, stage order, task creation order.
func (s *GormStorage) FindDequeueCandidate(ctx context.Context, stageType string) (*core.Task, error) {
	var task core.Task
	err := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Select("tasks.*").
		Joins("JOIN stages ON stages.id = tasks.stage_id").
		Joins("JOIN jobs ON jobs.id = stages.job_id").
		Where("stages.type = ?", stageType).
		Where("tasks.status IN ?", claimableTaskStatuses).
		Where("stages.status IN ?", eligibleStageStatuses).
		Where("jobs.status IN ?", eligibleJobStatuses).
		Order("jobs.priority_rank DESC").
		Order("jobs.created_at ASC").
		Order("jobs.id ASC").
		Order("stages.stage_order ASC").
		Order("tasks.ordinal ASC").
		Take(&task).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &task, nil
}

// ClaimTask moves a claimable task to IN_PROGRESS. It returns a conflict
// error when another consumer claimed it first.
func (s *GormStorage) ClaimTask(ctx context.Context, taskID string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ? AND status IN ?", taskID, claimableTaskStatuses).
		Updates(map[string]any{
			"status":     core.TaskStatusInProgress,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return core.Conflict(core.KindTask, taskID)
	}
	return nil
}
