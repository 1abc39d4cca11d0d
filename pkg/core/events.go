package core

import "time"

// Event is the interface for all engine events.
// Events are emitted only after the transaction that produced them commits.
type Event interface {
	eventMarker()
}

// JobCreated is emitted when a producer creates a job.
type JobCreated struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobCreated) eventMarker() {}

// TasksCreated is emitted when tasks are appended to a stage.
type TasksCreated struct {
	StageID   string
	StageType string
	Count     int
	Timestamp time.Time
}

func (*TasksCreated) eventMarker() {}

// TaskDequeued is emitted when a consumer claims a task.
type TaskDequeued struct {
	Task      *Task
	StageType string
	Timestamp time.Time
}

func (*TaskDequeued) eventMarker() {}

// TaskCompleted is emitted when a task is marked completed.
type TaskCompleted struct {
	Task      *Task
	StageType string
	Timestamp time.Time
}

func (*TaskCompleted) eventMarker() {}

// TaskRetried is emitted when a failed task still has attempts left.
type TaskRetried struct {
	Task      *Task
	StageType string
	Attempt   int
	Timestamp time.Time
}

func (*TaskRetried) eventMarker() {}

// TaskFailed is emitted when a task exhausts its attempts.
type TaskFailed struct {
	Task      *Task
	StageType string
	Timestamp time.Time
}

func (*TaskFailed) eventMarker() {}

// StageStatusChanged is emitted on every stage transition.
type StageStatusChanged struct {
	Stage     *Stage
	From      StageStatus
	To        StageStatus
	Timestamp time.Time
}

func (*StageStatusChanged) eventMarker() {}

// JobStatusChanged is emitted on every job transition.
type JobStatusChanged struct {
	Job       *Job
	From      JobStatus
	To        JobStatus
	Timestamp time.Time
}

func (*JobStatusChanged) eventMarker() {}

// JobDeleted is emitted after a job and its children are removed.
type JobDeleted struct {
	JobID     string
	Timestamp time.Time
}

func (*JobDeleted) eventMarker() {}
