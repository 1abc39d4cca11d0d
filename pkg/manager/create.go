package manager

import (
	"context"
	"fmt"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/security"
	"github.com/MapColonies/jobnik/pkg/sequencer"
)

// CreateJob creates a job in PENDING. An empty priority defaults to MEDIUM.
func (m *Manager) CreateJob(ctx context.Context, in core.NewJob) (job *core.Job, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.job.create")
	defer func() { endSpan(span, err) }()

	if in.Priority == "" {
		in.Priority = core.PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, core.Invalid("priority", fmt.Sprintf("unknown priority %q", in.Priority))
	}
	if err := security.ValidateJobName(in.Name); err != nil {
		return nil, err
	}
	if err := security.ValidatePayload("data", in.Data); err != nil {
		return nil, err
	}
	if err := security.ValidatePayload("userMetadata", in.UserMetadata); err != nil {
		return nil, err
	}

	err = m.inTx(ctx, func(t *txn) error {
		job = &core.Job{
			Name:         in.Name,
			Priority:     in.Priority,
			Status:       core.JobStatusPending,
			Data:         in.Data,
			UserMetadata: in.UserMetadata,
		}
		if err := t.tx.CreateJob(t.ctx, job); err != nil {
			return err
		}
		snap := *job
		t.changes.record(&core.JobCreated{Job: &snap, Timestamp: t.now})
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attrJobID.String(job.ID))
	m.logger.Debug("job created", "job_id", job.ID, "priority", job.Priority)
	return job, nil
}

// CreateStage appends a stage to a job and assigns it the next order.
// The first stage starts PENDING, later ones CREATED, and a stage flagged
// StartAsWaiting starts WAITING wherever it sits.
func (m *Manager) CreateStage(ctx context.Context, jobID string, in core.NewStage) (stage *core.Stage, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.stage.create", attrJobID.String(jobID), attrStageType.String(in.Type))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("jobId", jobID); err != nil {
		return nil, err
	}
	if err := security.ValidateStageType(in.Type); err != nil {
		return nil, err
	}
	if err := security.ValidatePayload("data", in.Data); err != nil {
		return nil, err
	}
	if err := security.ValidatePayload("userMetadata", in.UserMetadata); err != nil {
		return nil, err
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

		last, err := t.tx.MaxStageOrder(t.ctx, jobID)
		if err != nil {
			return err
		}
		order := last + 1
		stage = &core.Stage{
			JobID:          jobID,
			Type:           in.Type,
			Order:          order,
			Status:         sequencer.InitialStatus(order, in.StartAsWaiting),
			StartAsWaiting: in.StartAsWaiting,
			Data:           in.Data,
			UserMetadata:   in.UserMetadata,
		}
		return t.tx.CreateStage(t.ctx, stage)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attrStageID.String(stage.ID))
	m.logger.Debug("stage created", "job_id", jobID, "stage_id", stage.ID, "type", stage.Type, "order", stage.Order, "status", stage.Status)
	return stage, nil
}

// CreateTasks appends tasks to a stage. stageType must match the stage's
// type. Tasks start PENDING; a zero MaxAttempts takes the configured default.
func (m *Manager) CreateTasks(ctx context.Context, stageID, stageType string, in []core.NewTask) (tasks []*core.Task, err error) {
	ctx, span := m.startSpan(ctx, "jobnik.task.create", attrStageID.String(stageID), attrStageType.String(stageType))
	defer func() { endSpan(span, err) }()

	if err := security.ValidateID("stageId", stageID); err != nil {
		return nil, err
	}
	if err := security.ValidateStageType(stageType); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, core.Invalid("tasks", "at least one task is required")
	}
	if len(in) > security.MaxTasksPerRequest {
		return nil, core.Invalid("tasks", fmt.Sprintf("at most %d tasks per request", security.MaxTasksPerRequest))
	}
	for i, nt := range in {
		if err := security.ValidatePayload(fmt.Sprintf("tasks[%d].data", i), nt.Data); err != nil {
			return nil, err
		}
		if err := security.ValidatePayload(fmt.Sprintf("tasks[%d].userMetadata", i), nt.UserMetadata); err != nil {
			return nil, err
		}
		if nt.MaxAttempts < 0 {
			return nil, core.Invalid(fmt.Sprintf("tasks[%d].maxAttempts", i), "must be positive")
		}
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
		if stage.Type != stageType {
			return core.Invalid("type", fmt.Sprintf("stage %s has type %q, not %q", stage.ID, stage.Type, stageType))
		}
		if job.Status.Finite() {
			return core.InFiniteState(core.KindJob, job.ID, job.Status)
		}
		if stage.Status.Finite() {
			return core.InFiniteState(core.KindStage, stage.ID, stage.Status)
		}

		next, err := t.tx.CountTasks(t.ctx, stageID)
		if err != nil {
			return err
		}
		tasks = make([]*core.Task, len(in))
		for i, nt := range in {
			attempts := m.config.DefaultMaxAttempts
			if nt.MaxAttempts > 0 {
				attempts = security.ClampAttempts(nt.MaxAttempts)
			}
			tasks[i] = &core.Task{
				StageID:      stage.ID,
				JobID:        stage.JobID,
				Ordinal:      next + i,
				Status:       core.TaskStatusPending,
				MaxAttempts:  attempts,
				Data:         nt.Data,
				UserMetadata: nt.UserMetadata,
			}
		}
		if err := t.tx.CreateTasks(t.ctx, tasks); err != nil {
			return err
		}

		if err := t.refreshStage(stage); err != nil {
			return err
		}
		if err := t.saveStage(stage, stage.Status); err != nil {
			return err
		}

		t.changes.record(&core.TasksCreated{StageID: stage.ID, StageType: stage.Type, Count: len(tasks), Timestamp: t.now})
		if eligible(job, stage) {
			t.changes.wakeType(stage.Type)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Debug("tasks created", "stage_id", stageID, "type", stageType, "count", len(tasks))
	return tasks, nil
}
