package manager

import (
	"context"
	"errors"
	"time"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/fsm"
	"github.com/MapColonies/jobnik/pkg/security"
)

// DequeueTask claims the best eligible task of the given stage type and
// returns it IN_PROGRESS. It never blocks: when no task is eligible it
// returns nil, nil. Lost races with concurrent consumers are retried and
// never surface as errors.
func (m *Manager) DequeueTask(ctx context.Context, stageType string) (task *core.Task, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.task.dequeue", attrStageType.String(stageType))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateStageType(stageType); err != nil {
		return nil, err
	}

	var (
		claimed *core.Task
		empty   bool
		pending *changes
	)
	err = retryConflicts(ctx, m.config.ConflictRetry, func() error {
		claimed, empty, pending = nil, false, nil

		candidate, err := m.storage.FindDequeueCandidate(ctx, stageType)
		if err != nil {
			return err
		}
		if candidate == nil {
			empty = true
			return nil
		}

		return m.storage.Transaction(ctx, func(tx core.Storage) error {
			t := &txn{ctx: ctx, tx: tx, now: time.Now()}
			got, err := t.claim(candidate, stageType)
			if err != nil {
				return err
			}
			claimed = got
			pending = &t.changes
			return nil
		})
	})
	if errors.Is(err, core.ErrConflict) {
		m.logger.Warn("dequeue gave up after repeated conflicts", "type", stageType, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if empty {
		m.callDequeueEmptyHooks(ctx, stageType)
		return nil, nil
	}

	m.publish(ctx, pending)
	span.SetAttributes(
		attrTaskID.String(claimed.ID),
		attrStageID.String(claimed.StageID),
		attrJobID.String(claimed.JobID),
	)
	m.logger.Debug("task dequeued", "task_id", claimed.ID, "stage_id", claimed.StageID, "job_id", claimed.JobID, "type", stageType)
	return claimed, nil
}

// claim moves candidate to IN_PROGRESS together with its stage and job.
// A candidate that stopped being eligible since it was selected is a conflict.
func (t *txn) claim(candidate *core.Task, stageType string) (*core.Task, error) {
	job, err := t.tx.LockJob(t.ctx, candidate.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil || !job.Status.Dequeueable() {
		return nil, core.Conflict(core.KindJob, candidate.JobID)
	}
	stage, err := t.tx.LockStage(t.ctx, candidate.StageID)
	if err != nil {
		return nil, err
	}
	if stage == nil || !stage.Status.Dequeueable() || stage.Type != stageType {
		return nil, core.Conflict(core.KindStage, candidate.StageID)
	}
	task, err := t.tx.LockTask(t.ctx, candidate.ID)
	if err != nil {
		return nil, err
	}
	if task == nil || !task.Status.Claimable() {
		return nil, core.Conflict(core.KindTask, candidate.ID)
	}

	if err := t.tx.ClaimTask(t.ctx, task.ID, t.now); err != nil {
		return nil, err
	}
	task.Status = core.TaskStatusInProgress
	started := t.now
	task.StartedAt = &started

	stageFrom := stage.Status
	if stageFrom == core.StageStatusPending {
		if err := fsm.Stage(stage.ID, stageFrom, core.StageStatusInProgress); err != nil {
			return nil, err
		}
		stage.Status = core.StageStatusInProgress
	}
	if err := t.refreshStage(stage); err != nil {
		return nil, err
	}
	if err := t.saveStage(stage, stageFrom); err != nil {
		return nil, err
	}

	if job.Status == core.JobStatusPending {
		if err := fsm.Job(job.ID, job.Status, core.JobStatusInProgress); err != nil {
			return nil, err
		}
		from := job.Status
		job.Status = core.JobStatusInProgress
		if err := t.saveJob(job, from); err != nil {
			return nil, err
		}
	}

	snap := *task
	t.changes.record(&core.TaskDequeued{Task: &snap, StageType: stage.Type, Timestamp: t.now})
	return task, nil
}
