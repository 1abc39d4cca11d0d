// Package jobnik is a multi-stage job orchestration engine backed by a SQL
// database.
//
// Producers create a job, append ordered stages to it and fill each stage
// with tasks. Consumers dequeue tasks by stage type, highest job priority
// first, and report each one completed or failed. The engine moves stages
// and jobs forward as their tasks finish, retries failed tasks within their
// attempt budget, and keeps stage and job percentages current.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	store, _ := jobnik.OpenStorage("sqlite", "jobnik.db?_busy_timeout=5000")
//	store.Migrate(ctx)
//	m := jobnik.New(store)
//
//	// Producer
//	job, _ := m.CreateJob(ctx, jobnik.NewJob{Name: "render tiles", Priority: jobnik.PriorityHigh})
//	stage, _ := m.CreateStage(ctx, job.ID, jobnik.NewStage{Type: "render"})
//	m.CreateTasks(ctx, stage.ID, "render", []jobnik.NewTask{{Data: payload}})
//
//	// Consumer
//	w := jobnik.NewWorker(m, jobnik.StageType("render", jobnik.Concurrency(4)))
//	w.Handle("render", func(ctx context.Context, t *jobnik.Task) error {
//	    return render(ctx, t.Data)
//	})
//	w.Start(ctx)
package jobnik

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/MapColonies/jobnik/pkg/core"
	"github.com/MapColonies/jobnik/pkg/manager"
	"github.com/MapColonies/jobnik/pkg/metrics"
	"github.com/MapColonies/jobnik/pkg/notify"
	"github.com/MapColonies/jobnik/pkg/security"
	"github.com/MapColonies/jobnik/pkg/storage"
	"github.com/MapColonies/jobnik/pkg/worker"
)

var (
	_ worker.TaskSource = (*manager.Manager)(nil)
	_ metrics.Hooks     = (*manager.Manager)(nil)
	_ manager.Notifier  = (*notify.RedisNotifier)(nil)
	_ manager.Notifier  = (*notify.AMQPNotifier)(nil)
	_ manager.Notifier  = notify.Fanout(nil)
	_ manager.Notifier  = notify.Nop{}
)

// Type aliases
type (
	// Job is the top-level unit of work, owning an ordered list of stages.
	Job = core.Job

	// Stage is one ordered step of a job.
	Stage = core.Stage

	// Task is the smallest claimable unit of work.
	Task = core.Task

	// Summary aggregates the task statuses of a stage.
	Summary = core.Summary

	// NewJob is the producer input for CreateJob.
	NewJob = core.NewJob

	// NewStage is the producer input for CreateStage.
	NewStage = core.NewStage

	// NewTask is the producer input for one task of CreateTasks.
	NewTask = core.NewTask

	// JobFilter narrows ListJobs results.
	JobFilter = core.JobFilter

	Priority    = core.Priority
	JobStatus   = core.JobStatus
	StageStatus = core.StageStatus
	TaskStatus  = core.TaskStatus

	// Storage defines the persistence layer.
	Storage = core.Storage

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// PoolOption configures the database connection pool.
	PoolOption = storage.PoolOption

	// Manager runs every job, stage and task operation.
	Manager = manager.Manager

	// Option configures a Manager.
	Option = manager.Option

	// Notifier announces stage types that gained claimable work.
	Notifier = manager.Notifier

	// Worker consumes tasks from a Manager.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// Handler processes one claimed task.
	Handler = worker.Handler

	// Event is the interface for all engine events.
	Event = core.Event

	JobCreated         = core.JobCreated
	JobStatusChanged   = core.JobStatusChanged
	JobDeleted         = core.JobDeleted
	StageStatusChanged = core.StageStatusChanged
	TasksCreated       = core.TasksCreated
	TaskDequeued       = core.TaskDequeued
	TaskCompleted      = core.TaskCompleted
	TaskRetried        = core.TaskRetried
	TaskFailed         = core.TaskFailed
)

// Priorities
const (
	PriorityVeryLow  = core.PriorityVeryLow
	PriorityLow      = core.PriorityLow
	PriorityMedium   = core.PriorityMedium
	PriorityHigh     = core.PriorityHigh
	PriorityVeryHigh = core.PriorityVeryHigh
)

// Job statuses
const (
	JobStatusCreated    = core.JobStatusCreated
	JobStatusPending    = core.JobStatusPending
	JobStatusInProgress = core.JobStatusInProgress
	JobStatusPaused     = core.JobStatusPaused
	JobStatusCompleted  = core.JobStatusCompleted
	JobStatusFailed     = core.JobStatusFailed
	JobStatusAborted    = core.JobStatusAborted
)

// Stage statuses
const (
	StageStatusCreated    = core.StageStatusCreated
	StageStatusWaiting    = core.StageStatusWaiting
	StageStatusPending    = core.StageStatusPending
	StageStatusInProgress = core.StageStatusInProgress
	StageStatusCompleted  = core.StageStatusCompleted
	StageStatusFailed     = core.StageStatusFailed
	StageStatusAborted    = core.StageStatusAborted
)

// Task statuses
const (
	TaskStatusPending    = core.TaskStatusPending
	TaskStatusInProgress = core.TaskStatusInProgress
	TaskStatusRetried    = core.TaskStatusRetried
	TaskStatusCompleted  = core.TaskStatusCompleted
	TaskStatusFailed     = core.TaskStatusFailed
	TaskStatusAborted    = core.TaskStatusAborted
)

// Security limits
const (
	MaxStageTypeLength = security.MaxStageTypeLength
	MaxJobNameLength   = security.MaxJobNameLength
	MaxPayloadSize     = security.MaxPayloadSize
	MaxAttempts        = security.MaxAttempts
	MaxTasksPerRequest = security.MaxTasksPerRequest
	MaxConcurrency     = security.MaxConcurrency
)

// New creates a Manager over s.
func New(s Storage, opts ...Option) *Manager {
	return manager.New(s, opts...)
}

// NewGormStorage wraps an open GORM connection.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// OpenStorage connects to a "sqlite" or "postgres" database.
func OpenStorage(driver, dsn string, opts ...PoolOption) (*GormStorage, error) {
	return storage.Open(driver, dsn, nil, opts...)
}

// NewWorker creates a worker consuming from m.
func NewWorker(m *Manager, opts ...WorkerOption) *Worker {
	return worker.NewWorker(m, opts...)
}

// Manager option functions

// DefaultAttempts sets the attempt budget of tasks created without one.
func DefaultAttempts(n int) Option {
	return manager.DefaultAttempts(n)
}

// WithNotifier announces new claimable work through n.
func WithNotifier(n Notifier) Option {
	return manager.WithNotifier(n)
}

// Worker option functions

// StageType configures one stage type's concurrency.
func StageType(name string, opts ...WorkerOption) WorkerOption {
	return worker.StageType(name, opts...)
}

// Concurrency sets how many handlers run per stage type.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// PollInterval sets how often an idle stage type is polled.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// WakeOn polls a stage type as soon as its name arrives on ch.
func WakeOn(ch <-chan string) WorkerOption {
	return worker.WakeOn(ch)
}

// Validation helpers

// ValidateStageType reports whether stageType can route tasks.
func ValidateStageType(stageType string) error {
	return security.ValidateStageType(stageType)
}

// ClampAttempts bounds a task attempt budget.
func ClampAttempts(n int) int {
	return security.ClampAttempts(n)
}

// Submit creates a job with a single stage holding tasks, the common
// one-shot producer flow. Everything commits in separate transactions; on
// error the job may exist without all of its tasks.
func Submit(ctx context.Context, m *Manager, job NewJob, stageType string, tasks []NewTask) (*Job, *Stage, error) {
	j, err := m.CreateJob(ctx, job)
	if err != nil {
		return nil, nil, err
	}
	s, err := m.CreateStage(ctx, j.ID, NewStage{Type: stageType})
	if err != nil {
		return j, nil, err
	}
	if len(tasks) > 0 {
		if _, err := m.CreateTasks(ctx, s.ID, stageType, tasks); err != nil {
			return j, s, err
		}
	}
	return j, s, nil
}
