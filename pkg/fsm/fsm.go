// Package fsm holds the legal status transitions for jobs, stages and tasks.
//
// Two tables exist per entity: the engine table, consulted for every
// transition the manager performs, and the operator subset, consulted when a
// caller asks for a status change directly.
package fsm

import "github.com/MapColonies/jobnik/pkg/core"

type table[S ~string] map[S][]S

func (t table[S]) allows(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

var jobTransitions = table[core.JobStatus]{
	core.JobStatusCreated: {
		core.JobStatusPending, core.JobStatusPaused, core.JobStatusAborted,
	},
	core.JobStatusPending: {
		core.JobStatusInProgress, core.JobStatusPaused, core.JobStatusAborted,
		core.JobStatusCompleted, core.JobStatusFailed,
	},
	core.JobStatusInProgress: {
		core.JobStatusCompleted, core.JobStatusFailed, core.JobStatusPaused, core.JobStatusAborted,
	},
	// Tasks claimed before the pause may still report.
	core.JobStatusPaused: {
		core.JobStatusPending, core.JobStatusAborted, core.JobStatusCompleted, core.JobStatusFailed,
	},
}

var jobOperatorTransitions = table[core.JobStatus]{
	core.JobStatusCreated:    {core.JobStatusPending, core.JobStatusPaused, core.JobStatusAborted},
	core.JobStatusPending:    {core.JobStatusPaused, core.JobStatusAborted},
	core.JobStatusInProgress: {core.JobStatusPaused, core.JobStatusAborted},
	core.JobStatusPaused:     {core.JobStatusPending, core.JobStatusAborted},
}

var stageTransitions = table[core.StageStatus]{
	core.StageStatusCreated: {
		core.StageStatusPending, core.StageStatusWaiting, core.StageStatusAborted,
	},
	core.StageStatusWaiting: {
		core.StageStatusPending, core.StageStatusAborted,
	},
	core.StageStatusPending: {
		core.StageStatusInProgress, core.StageStatusAborted,
	},
	core.StageStatusInProgress: {
		core.StageStatusCompleted, core.StageStatusFailed, core.StageStatusAborted,
	},
}

var stageOperatorTransitions = table[core.StageStatus]{
	core.StageStatusCreated: {core.StageStatusPending, core.StageStatusWaiting},
	core.StageStatusWaiting: {core.StageStatusPending},
}

var taskTransitions = table[core.TaskStatus]{
	core.TaskStatusCreated: {
		core.TaskStatusPending, core.TaskStatusAborted,
	},
	core.TaskStatusPending: {
		core.TaskStatusInProgress, core.TaskStatusAborted,
	},
	core.TaskStatusInProgress: {
		core.TaskStatusCompleted, core.TaskStatusRetried, core.TaskStatusFailed, core.TaskStatusAborted,
	},
	core.TaskStatusRetried: {
		core.TaskStatusInProgress, core.TaskStatusAborted,
	},
}

var taskOperatorTransitions = table[core.TaskStatus]{
	core.TaskStatusInProgress: {core.TaskStatusCompleted, core.TaskStatusFailed},
}

// Job validates an engine-driven job transition.
func Job(id string, from, to core.JobStatus) error {
	if !jobTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindJob, id, from, to)
	}
	return nil
}

// JobByOperator validates a job transition requested by a caller.
func JobByOperator(id string, from, to core.JobStatus) error {
	if !jobOperatorTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindJob, id, from, to)
	}
	return nil
}

// Stage validates an engine-driven stage transition.
func Stage(id string, from, to core.StageStatus) error {
	if !stageTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindStage, id, from, to)
	}
	return nil
}

// StageByOperator validates a stage transition requested by a caller.
func StageByOperator(id string, from, to core.StageStatus) error {
	if !stageOperatorTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindStage, id, from, to)
	}
	return nil
}

// Task validates an engine-driven task transition.
func Task(id string, from, to core.TaskStatus) error {
	if !taskTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindTask, id, from, to)
	}
	return nil
}

// TaskByOperator validates a task transition requested by a caller.
func TaskByOperator(id string, from, to core.TaskStatus) error {
	if !taskOperatorTransitions.allows(from, to) {
		return core.IllegalTransition(core.KindTask, id, from, to)
	}
	return nil
}
