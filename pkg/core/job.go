// Package core provides the domain models and interfaces for the jobnik engine.
package core

import (
	"time"

	"gorm.io/datatypes"
)

// Priority ranks a job against every other job in the dequeue order.
type Priority string

const (
	PriorityVeryLow  Priority = "VERY_LOW"
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityVeryHigh Priority = "VERY_HIGH"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityVeryLow, PriorityLow, PriorityMedium, PriorityHigh, PriorityVeryHigh}

// Rank returns the numeric weight used for ordering; higher dequeues first.
// Unknown priorities rank as MEDIUM.
func (p Priority) Rank() int {
	switch p {
	case PriorityVeryLow:
		return 1
	case PriorityLow:
		return 2
	case PriorityHigh:
		return 4
	case PriorityVeryHigh:
		return 5
	default:
		return 3
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusCreated    JobStatus = "CREATED"
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusPaused     JobStatus = "PAUSED"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusAborted    JobStatus = "ABORTED"
)

// Finite reports whether the job can no longer change state.
func (s JobStatus) Finite() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusAborted
}

// Dequeueable reports whether tasks of a job in this state may be claimed.
func (s JobStatus) Dequeueable() bool {
	return s == JobStatusPending || s == JobStatusInProgress
}

// FiniteJobStatuses lists the terminal job states.
var FiniteJobStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusAborted}

// StageStatus represents the current state of a stage.
type StageStatus string

const (
	StageStatusCreated    StageStatus = "CREATED"
	StageStatusWaiting    StageStatus = "WAITING" // gated until an operator releases it
	StageStatusPending    StageStatus = "PENDING"
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusCompleted  StageStatus = "COMPLETED"
	StageStatusFailed     StageStatus = "FAILED"
	StageStatusAborted    StageStatus = "ABORTED"
)

// Finite reports whether the stage can no longer change state.
func (s StageStatus) Finite() bool {
	return s == StageStatusCompleted || s == StageStatusFailed || s == StageStatusAborted
}

// Dequeueable reports whether tasks of a stage in this state may be claimed.
func (s StageStatus) Dequeueable() bool {
	return s == StageStatusPending || s == StageStatusInProgress
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusRetried    TaskStatus = "RETRIED"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusAborted    TaskStatus = "ABORTED"
)

// Finite reports whether the task can no longer change state.
func (s TaskStatus) Finite() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusAborted
}

// Claimable reports whether a task in this state may be handed to a consumer.
func (s TaskStatus) Claimable() bool {
	return s == TaskStatusPending || s == TaskStatusRetried
}

// Job is the top-level unit of work. It owns an ordered list of stages.
type Job struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Name         string         `gorm:"index;size:255" json:"name"`
	Priority     Priority       `gorm:"size:20;not null" json:"priority"`
	PriorityRank int            `gorm:"index;not null;default:3" json:"-"`
	Status       JobStatus      `gorm:"index;size:20;not null" json:"status"`
	Percentage   int            `gorm:"not null;default:0" json:"percentage"`
	Data         datatypes.JSON `json:"data,omitempty"`
	UserMetadata datatypes.JSON `json:"userMetadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index;autoCreateTime" json:"creationTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updateTime"`
}

// Summary aggregates the task statuses of one stage.
// Created is kept for clients that expect it; tasks are never persisted as CREATED.
type Summary struct {
	Created    int `gorm:"not null;default:0" json:"created"`
	Pending    int `gorm:"not null;default:0" json:"pending"`
	InProgress int `gorm:"not null;default:0" json:"inProgress"`
	Completed  int `gorm:"not null;default:0" json:"completed"`
	Failed     int `gorm:"not null;default:0" json:"failed"`
	Retried    int `gorm:"not null;default:0" json:"retried"`
	Total      int `gorm:"not null;default:0" json:"total"`
}

// Stage is one ordered step of a job. Its type routes tasks to consumers.
type Stage struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	JobID          string         `gorm:"index;size:36;not null" json:"jobId"`
	Type           string         `gorm:"index;size:255;not null" json:"type"`
	Order          int            `gorm:"column:stage_order;not null" json:"order"`
	Status         StageStatus    `gorm:"index;size:20;not null" json:"status"`
	Percentage     int            `gorm:"not null;default:0" json:"percentage"`
	Summary        Summary        `gorm:"embedded;embeddedPrefix:summary_" json:"summary"`
	StartAsWaiting bool           `gorm:"not null;default:false" json:"startAsWaiting"`
	Data           datatypes.JSON `json:"data,omitempty"`
	UserMetadata   datatypes.JSON `json:"userMetadata,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"creationTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updateTime"`
}

// Task is the smallest claimable unit of work.
type Task struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	StageID      string         `gorm:"index;size:36;not null" json:"stageId"`
	JobID        string         `gorm:"index;size:36;not null" json:"jobId"`
	Ordinal      int            `gorm:"not null;default:0" json:"-"`
	Status       TaskStatus     `gorm:"index;size:20;not null" json:"status"`
	Attempts     int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int            `gorm:"not null;default:3" json:"maxAttempts"`
	Data         datatypes.JSON `json:"data,omitempty"`
	UserMetadata datatypes.JSON `json:"userMetadata,omitempty"`
	StartedAt    *time.Time     `json:"startTime,omitempty"`
	CompletedAt  *time.Time     `json:"endTime,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"creationTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updateTime"`
}

// NewJob is the producer input for creating a job.
type NewJob struct {
	Name         string
	Priority     Priority
	Data         datatypes.JSON
	UserMetadata datatypes.JSON
}

// NewStage is the producer input for appending a stage to a job.
type NewStage struct {
	Type           string
	Data           datatypes.JSON
	UserMetadata   datatypes.JSON
	StartAsWaiting bool
}

// NewTask is the producer input for one task of a stage.
// A zero MaxAttempts takes the manager's default.
type NewTask struct {
	Data         datatypes.JSON
	UserMetadata datatypes.JSON
	MaxAttempts  int
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Status   JobStatus
	Priority Priority
	Name     string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}
