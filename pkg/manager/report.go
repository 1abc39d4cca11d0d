package manager

import (
	"context"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/fsm"
	"github.com/MapColonies/jobnik/pkg/security"
)

// MarkTaskCompleted completes an IN_PROGRESS task. The stage completes when
// it was the last outstanding task, which in turn activates the next stage
// or completes the job.
func (m *Manager) MarkTaskCompleted(ctx context.Context, taskID string) (task *core.Task, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.task.complete", attrTaskID.String(taskID))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("taskId", taskID); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(t *txn) error {
		job, stage, locked, err := t.lockTaskTree(taskID)
		if err != nil {
			return err
		}
		if err := fsm.TaskByOperator(locked.ID, locked.Status, core.TaskStatusCompleted); err != nil {
			return err
		}

		from := locked.Status
		locked.Status = core.TaskStatusCompleted
		done := t.now
		locked.CompletedAt = &done
		if err := t.tx.UpdateTask(t.ctx, locked, from); err != nil {
			return err
		}
		snap := *locked
		t.changes.record(&core.TaskCompleted{Task: &snap, StageType: stage.Type, Timestamp: t.now})
		if err := t.settleStage(job, stage, false); err != nil {
			return err
		}
		task = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("task completed", "task_id", task.ID, "stage_id", task.StageID)
	return task, nil
}

// MarkTaskFailed records a failed attempt of an IN_PROGRESS task. With
// attempts left the task becomes RETRIED and is immediately claimable again;
// otherwise it becomes FAILED, failing its stage and job.
func (m *Manager) MarkTaskFailed(ctx context.Context, taskID string) (task *core.Task, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.task.fail", attrTaskID.String(taskID))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("taskId", taskID); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(t *txn) error {
		job, stage, locked, err := t.lockTaskTree(taskID)
		if err != nil {
			return err
		}
		if err := fsm.TaskByOperator(locked.ID, locked.Status, core.TaskStatusFailed); err != nil {
			return err
		}

		from := locked.Status
		locked.Attempts++
		if locked.Attempts < locked.MaxAttempts {
			locked.Status = core.TaskStatusRetried
		} else {
			locked.Status = core.TaskStatusFailed
			done := t.now
			locked.CompletedAt = &done
		}
		if err := fsm.Task(locked.ID, from, locked.Status); err != nil {
			return err
		}
		if err := t.tx.UpdateTask(t.ctx, locked, from); err != nil {
			return err
		}

		snap := *locked
		if locked.Status == core.TaskStatusRetried {
			if err := t.refreshStage(stage); err != nil {
				return err
			}
			if err := t.saveStage(stage, stage.Status); err != nil {
				return err
			}
			if eligible(job, stage) {
				t.changes.wakeType(stage.Type)
			}
			t.changes.record(&core.TaskRetried{Task: &snap, StageType: stage.Type, Attempt: locked.Attempts, Timestamp: t.now})
		} else {
			t.changes.record(&core.TaskFailed{Task: &snap, StageType: stage.Type, Timestamp: t.now})
			if err := t.settleStage(job, stage, true); err != nil {
				return err
			}
		}
		task = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("task failed", "task_id", task.ID, "status", task.Status, "attempts", task.Attempts, "max_attempts", task.MaxAttempts)
	return task, nil
}
