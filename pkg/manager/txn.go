package manager

import (
	"context"
	"time"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/fsm"
	"github.com/MapColonies/jobnik/pkg/progress"
	"github.com/MapColonies/jobnik/pkg/sequencer"
)

// txn is one attempt at an operation's unit of work. It carries the
// transactional storage view and collects the side effects to publish
// after commit.
type txn struct {
	ctx     context.Context
	tx      core.Storage
	now     time.Time
	changes changes
}

// changes are the events and wake-ups produced by a committed transaction.
type changes struct {
	events []core.Event
	wake   []string
}

func (c *changes) record(e core.Event) {
	c.events = append(c.events, e)
}

func (c *changes) wakeType(stageType string) {
	c.wake = append(c.wake, stageType)
}

// wakeTypes returns the stage types to notify, deduplicated, in first-seen order.
func (c *changes) wakeTypes() []string {
	seen := make(map[string]bool, len(c.wake))
	out := make([]string, 0, len(c.wake))
	for _, t := range c.wake {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// saveJob persists job, guarded by from, and records a status change event.
func (t *txn) saveJob(job *core.Job, from core.JobStatus) error {
	if err := t.tx.UpdateJob(t.ctx, job, from); err != nil {
		return err
	}
	if job.Status != from {
		snap := *job
		t.changes.record(&core.JobStatusChanged{Job: &snap, From: from, To: job.Status, Timestamp: t.now})
	}
	return nil
}

// saveStage persists stage, guarded by from, and records a status change
// event. A stage that becomes PENDING wakes consumers of its type.
func (t *txn) saveStage(stage *core.Stage, from core.StageStatus) error {
	if err := t.tx.UpdateStage(t.ctx, stage, from); err != nil {
		return err
	}
	if stage.Status == from {
		return nil
	}
	snap := *stage
	t.changes.record(&core.StageStatusChanged{Stage: &snap, From: from, To: stage.Status, Timestamp: t.now})
	if stage.Status == core.StageStatusPending {
		t.changes.wakeType(stage.Type)
	}
	return nil
}

// refreshStage re-derives a stage's summary and percentage from its tasks.
func (t *txn) refreshStage(stage *core.Stage) error {
	counts, err := t.tx.CountTasksByStatus(t.ctx, stage.ID)
	if err != nil {
		return err
	}
	stage.Summary = progress.Summarize(counts)
	stage.Percentage = progress.StagePercentage(stage.Summary)
	return nil
}

// lockTaskTree locks a task with its stage and job, in job, stage, task order.
func (t *txn) lockTaskTree(taskID string) (*core.Job, *core.Stage, *core.Task, error) {
	probe, err := t.tx.GetTask(t.ctx, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	if probe == nil {
		return nil, nil, nil, core.NotFound(core.KindTask, taskID)
	}

	job, err := t.tx.LockJob(t.ctx, probe.JobID)
	if err != nil {
		return nil, nil, nil, err
	}
	stage, err := t.tx.LockStage(t.ctx, probe.StageID)
	if err != nil {
		return nil, nil, nil, err
	}
	task, err := t.tx.LockTask(t.ctx, taskID)
	if err != nil {
		return nil, nil, nil, err
	}
	if job == nil || stage == nil || task == nil {
		// Deleted between the probe and the locks.
		return nil, nil, nil, core.NotFound(core.KindTask, taskID)
	}
	return job, stage, task, nil
}

// settleStage re-derives a stage after one of its tasks reached a terminal
// state, finishing the stage when failed is set or every task completed.
// A stage that finishes is handed to the sequencer.
func (t *txn) settleStage(job *core.Job, stage *core.Stage, failed bool) error {
	from := stage.Status
	if err := t.refreshStage(stage); err != nil {
		return err
	}
	if from.Finite() {
		// Late reports on a finished stage only move its counters.
		return t.saveStage(stage, from)
	}

	switch {
	case failed:
		stage.Status = core.StageStatusFailed
	case progress.AllTasksCompleted(stage.Summary):
		stage.Status = core.StageStatusCompleted
	}
	if stage.Status != from {
		if err := fsm.Stage(stage.ID, from, stage.Status); err != nil {
			return err
		}
	}
	if err := t.saveStage(stage, from); err != nil {
		return err
	}
	if stage.Status.Finite() {
		return t.sequence(job, stage)
	}
	return nil
}

// sequence applies the sequencer's decision for a finished stage and
// recomputes the job percentage.
func (t *txn) sequence(job *core.Job, finished *core.Stage) error {
	if job.Status.Finite() {
		return nil
	}
	stages, err := t.tx.ListStages(t.ctx, job.ID)
	if err != nil {
		return err
	}
	for i, st := range stages {
		if st.ID == finished.ID {
			stages[i] = finished
		}
	}

	from := job.Status
	decision := sequencer.Next(stages, finished)
	switch {
	case decision.Activate != nil:
		next := decision.Activate
		if err := fsm.Stage(next.ID, next.Status, core.StageStatusPending); err != nil {
			return err
		}
		prev := next.Status
		next.Status = core.StageStatusPending
		if err := t.saveStage(next, prev); err != nil {
			return err
		}
	case decision.CompleteJob:
		if err := fsm.Job(job.ID, from, core.JobStatusCompleted); err != nil {
			return err
		}
		job.Status = core.JobStatusCompleted
	case decision.FailJob:
		if err := fsm.Job(job.ID, from, core.JobStatusFailed); err != nil {
			return err
		}
		job.Status = core.JobStatusFailed
	}

	job.Percentage = progress.NextJobPercentage(job.Percentage, progress.JobPercentage(stages), job.Status)
	return t.saveJob(job, from)
}

// eligible reports whether consumers could claim tasks of stage right now.
func eligible(job *core.Job, stage *core.Stage) bool {
	return job.Status.Dequeueable() && stage.Status.Dequeueable()
}
