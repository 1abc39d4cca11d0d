package manager

import (
	"context"
	"fmt"

	"gorm.io/datatypes"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/security"
)

// GetJob returns a job by id.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	if err := security.ValidateID("jobId", jobID); err != nil {
		return nil, err
	}
	job, err := m.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.NotFound(core.KindJob, jobID)
	}
	return job, nil
}

// GetStage returns a stage by id.
func (m *Manager) GetStage(ctx context.Context, stageID string) (*core.Stage, error) {
	if err := security.ValidateID("stageId", stageID); err != nil {
		return nil, err
	}
	stage, err := m.storage.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if stage == nil {
		return nil, core.NotFound(core.KindStage, stageID)
	}
	return stage, nil
}

// GetTask returns a task by id.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*core.Task, error) {
	if err := security.ValidateID("taskId", taskID); err != nil {
		return nil, err
	}
	task, err := m.storage.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, core.NotFound(core.KindTask, taskID)
	}
	return task, nil
}

// ListStages returns a job's stages ordered by order.
func (m *Manager) ListStages(ctx context.Context, jobID string) ([]*core.Stage, error) {
	if _, err := m.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return m.storage.ListStages(ctx, jobID)
}

// ListTasks returns a stage's tasks in creation order.
func (m *Manager) ListTasks(ctx context.Context, stageID string) ([]*core.Task, error) {
	if _, err := m.GetStage(ctx, stageID); err != nil {
		return nil, err
	}
	return m.storage.ListTasks(ctx, stageID)
}

// GetStageSummary returns the task counts of a stage.
func (m *Manager) GetStageSummary(ctx context.Context, stageID string) (core.Summary, error) {
	stage, err := m.GetStage(ctx, stageID)
	if err != nil {
		return core.Summary{}, err
	}
	return stage.Summary, nil
}

// ListJobs returns jobs matching filter, newest first, with the total match count.
func (m *Manager) ListJobs(ctx context.Context, filter core.JobFilter) ([]*core.Job, int64, error) {
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, 0, core.Invalid("priority", fmt.Sprintf("unknown priority %q", filter.Priority))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, 0, core.Invalid("pagination", "limit and offset must not be negative")
	}
	return m.storage.ListJobs(ctx, filter)
}

// UpdateJobPriority changes the priority of a non-terminal job. The new
// priority applies to the job's next dequeue.
func (m *Manager) UpdateJobPriority(ctx context.Context, jobID string, priority core.Priority) (code core.Code, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.job.update_priority", attrJobID.String(jobID))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("jobId", jobID); err != nil {
		return "", err
	}
	if !priority.Valid() {
		return "", core.Invalid("priority", fmt.Sprintf("unknown priority %q", priority))
	}

	err = m.inTx(ctx, func(t *txn) error {
		job, err := t.tx.LockJob(t.ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return core.NotFound(core.KindJob, jobID)
		}
		if job.Status.Finite() {
			return core.InFiniteState(core.KindJob, job.ID, job.Status)
		}
		job.Priority = priority
		return t.saveJob(job, job.Status)
	})
	if err != nil {
		return "", err
	}
	return core.CodeJobModifiedSuccessfully, nil
}

// UpdateJobUserMetadata replaces a job's user metadata. Allowed in any state.
func (m *Manager) UpdateJobUserMetadata(ctx context.Context, jobID string, metadata datatypes.JSON) (core.Code, error) {
	if err := security.ValidateID("jobId", jobID); err != nil {
		return "", err
	}
	if err := security.ValidatePayload("userMetadata", metadata); err != nil {
		return "", err
	}

	err := m.inTx(ctx, func(t *txn) error {
		job, err := t.tx.LockJob(t.ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return core.NotFound(core.KindJob, jobID)
		}
		job.UserMetadata = metadata
		return t.saveJob(job, job.Status)
	})
	if err != nil {
		return "", err
	}
	return core.CodeJobModifiedSuccessfully, nil
}

// UpdateStageUserMetadata replaces a stage's user metadata. Allowed in any state.
func (m *Manager) UpdateStageUserMetadata(ctx context.Context, stageID string, metadata datatypes.JSON) (core.Code, error) {
	if err := security.ValidateID("stageId", stageID); err != nil {
		return "", err
	}
	if err := security.ValidatePayload("userMetadata", metadata); err != nil {
		return "", err
	}

	err := m.inTx(ctx, func(t *txn) error {
		stage, err := t.tx.LockStage(t.ctx, stageID)
		if err != nil {
			return err
		}
		if stage == nil {
			return core.NotFound(core.KindStage, stageID)
		}
		stage.UserMetadata = metadata
		return t.saveStage(stage, stage.Status)
	})
	if err != nil {
		return "", err
	}
	return core.CodeStageModifiedSuccessfully, nil
}
