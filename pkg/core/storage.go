package core

import (
	"context"
	"time"
)

// Storage defines the persistence contract for jobs, stages and tasks.
//
// Getters return (nil, nil) when the row does not exist. Lock* variants take a
// row lock for the rest of the surrounding transaction where the dialect
// supports it. Update* methods are guarded by the expected current status and
// return ErrConflict when the row moved underneath the caller.
type Storage interface {
	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	// Transaction runs fn against a transactional view of the storage.
	// Driver-level serialization failures surface as ErrConflict.
	Transaction(ctx context.Context, fn func(tx Storage) error) error

	// Creation
	CreateJob(ctx context.Context, job *Job) error
	CreateStage(ctx context.Context, stage *Stage) error
	CreateTasks(ctx context.Context, tasks []*Task) error

	// Reads
	GetJob(ctx context.Context, id string) (*Job, error)
	GetStage(ctx context.Context, id string) (*Stage, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	LockJob(ctx context.Context, id string) (*Job, error)
	LockStage(ctx context.Context, id string) (*Stage, error)
	LockTask(ctx context.Context, id string) (*Task, error)
	ListStages(ctx context.Context, jobID string) ([]*Stage, error)
	ListTasks(ctx context.Context, stageID string) ([]*Task, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, int64, error)
	MaxStageOrder(ctx context.Context, jobID string) (int, error)
	CountTasks(ctx context.Context, stageID string) (int, error)
	CountTasksByStatus(ctx context.Context, stageID string) (map[TaskStatus]int, error)

	// Dequeue
	FindDequeueCandidate(ctx context.Context, stageType string) (*Task, error)
	ClaimTask(ctx context.Context, taskID string, now time.Time) error

	// Guarded updates
	UpdateJob(ctx context.Context, job *Job, expected JobStatus) error
	UpdateStage(ctx context.Context, stage *Stage, expected StageStatus) error
	UpdateTask(ctx context.Context, task *Task, expected TaskStatus) error

	// AbortTasks moves every non-terminal task of a job to ABORTED.
	AbortTasks(ctx context.Context, jobID string) (int64, error)

	// Deletion
	DeleteJob(ctx context.Context, jobID string) error
	PurgeJobs(ctx context.Context, statuses []JobStatus, olderThan time.Time) (int64, error)
}
