package manager

import (
	"context"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/fsm"
	"github.com/MapColonies/jobnik/pkg/security"
)

// SetJobStatus applies an operator-requested job transition: PAUSED pauses,
// PENDING resumes and ABORTED aborts. Anything else is an illegal transition.
func (m *Manager) SetJobStatus(ctx context.Context, jobID string, to core.JobStatus) (code core.Code, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.job.set_status", attrJobID.String(jobID), attrStatus.String(string(to)))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("jobId", jobID); err != nil {
		return "", err
	}

	var from core.JobStatus
	err = m.inTx(ctx, func(t *txn) error {
		job, err := t.tx.LockJob(t.ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return core.NotFound(core.KindJob, jobID)
		}
		from = job.Status
		if err := fsm.JobByOperator(job.ID, job.Status, to); err != nil {
			return err
		}

		if to == core.JobStatusAborted {
			if err := t.abortStages(job); err != nil {
				return err
			}
		}

		job.Status = to
		if err := t.saveJob(job, from); err != nil {
			return err
		}

		if job.Status.Dequeueable() {
			return t.wakeEligibleStages(job)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("job status changed", "job_id", jobID, "from", from, "to", to)
	return core.CodeJobModifiedSuccessfully, nil
}

// AbortJob aborts a job and every non-terminal stage and task under it.
func (m *Manager) AbortJob(ctx context.Context, jobID string) (core.Code, error) {
	return m.SetJobStatus(ctx, jobID, core.JobStatusAborted)
}

// PauseJob stops consumers from claiming the job's tasks.
// Tasks already IN_PROGRESS may still report.
func (m *Manager) PauseJob(ctx context.Context, jobID string) (core.Code, error) {
	return m.SetJobStatus(ctx, jobID, core.JobStatusPaused)
}

// ResumeJob moves a paused job back to PENDING.
func (m *Manager) ResumeJob(ctx context.Context, jobID string) (core.Code, error) {
	return m.SetJobStatus(ctx, jobID, core.JobStatusPending)
}

// abortStages aborts the job's open tasks, then each non-terminal stage.
func (t *txn) abortStages(job *core.Job) error {
	if _, err := t.tx.AbortTasks(t.ctx, job.ID); err != nil {
		return err
	}
	stages, err := t.tx.ListStages(t.ctx, job.ID)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		if stage.Status.Finite() {
			continue
		}
		from := stage.Status
		if err := fsm.Stage(stage.ID, from, core.StageStatusAborted); err != nil {
			return err
		}
		if err := t.refreshStage(stage); err != nil {
			return err
		}
		stage.Status = core.StageStatusAborted
		if err := t.saveStage(stage, from); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) wakeEligibleStages(job *core.Job) error {
	stages, err := t.tx.ListStages(t.ctx, job.ID)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		if eligible(job, stage) {
			t.changes.wakeType(stage.Type)
		}
	}
	return nil
}

// DeleteJob removes a job in a finite state together with its stages and tasks.
func (m *Manager) DeleteJob(ctx context.Context, jobID string) (code core.Code, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.job.delete", attrJobID.String(jobID))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("jobId", jobID); err != nil {
		return "", err
	}

	err = m.inTx(ctx, func(t *txn) error {
		job, err := t.tx.LockJob(t.ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return core.NotFound(core.KindJob, jobID)
		}
		if !job.Status.Finite() {
			return core.NotInFiniteState(job.ID, job.Status)
		}
		if err := t.tx.DeleteJob(t.ctx, job.ID); err != nil {
			return err
		}
		t.changes.record(&core.JobDeleted{JobID: job.ID, Timestamp: t.now})
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("job deleted", "job_id", jobID)
	return core.CodeJobDeletedSuccessfully, nil
}

// SetStageStatus applies an operator-requested stage transition. Releasing
// a WAITING stage to PENDING makes its tasks claimable.
func (m *Manager) SetStageStatus(ctx context.Context, stageID string, to core.StageStatus) (code core.Code, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.stage.set_status", attrStageID.String(stageID), attrStatus.String(string(to)))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("stageId", stageID); err != nil {
		return "", err
	}

	err = m.inTx(ctx, func(t *txn) error {
		probe, err := t.tx.GetStage(t.ctx, stageID)
		if err != nil {
			return err
		}
		if probe == nil {
			return core.NotFound(core.KindStage, stageID)
		}
		job, err := t.tx.LockJob(t.ctx, probe.JobID)
		if err != nil {
			return err
		}
		stage, err := t.tx.LockStage(t.ctx, stageID)
		if err != nil {
			return err
		}
		if job == nil || stage == nil {
			return core.NotFound(core.KindStage, stageID)
		}
		if job.Status.Finite() {
			return core.IllegalTransition(core.KindStage, stage.ID, stage.Status, to)
		}
		if err := fsm.StageByOperator(stage.ID, stage.Status, to); err != nil {
			return err
		}

		from := stage.Status
		stage.Status = to
		return t.saveStage(stage, from)
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("stage status changed", "stage_id", stageID, "to", to)
	return core.CodeStageModifiedSuccessfully, nil
}

// SetTaskStatus applies an operator-requested task transition. Only
// COMPLETED and FAILED may be requested, and only for IN_PROGRESS tasks.
func (m *Manager) SetTaskStatus(ctx context.Context, taskID string, to core.TaskStatus) (core.Code, error) {
	var err error
	switch to {
	case core.TaskStatusCompleted:
		_, err = m.MarkTaskCompleted(ctx, taskID)
	case core.TaskStatusFailed:
		_, err = m.MarkTaskFailed(ctx, taskID)
	default:
		err = m.rejectTaskStatus(ctx, taskID, to)
	}
	if err != nil {
		return "", err
	}
	return core.CodeTaskModifiedSuccessfully, nil
}

func (m *Manager) rejectTaskStatus(ctx context.Context, taskID string, to core.TaskStatus) error {
	task, err := m.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return core.IllegalTransition(core.KindTask, task.ID, task.Status, to)
}
