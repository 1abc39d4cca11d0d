// Package progress derives stage summaries and job/stage percentages.
package progress

import "github.com/MapColonies/jobnik/pkg/core"

// Summarize builds a stage summary from per-status task counts.
// Aborted tasks count toward Total only.
func Summarize(counts map[core.TaskStatus]int) core.Summary {
	var s core.Summary
	for status, n := range counts {
		switch status {
		case core.TaskStatusCreated:
			s.Created += n
		case core.TaskStatusPending:
			s.Pending += n
		case core.TaskStatusInProgress:
			s.InProgress += n
		case core.TaskStatusCompleted:
			s.Completed += n
		case core.TaskStatusFailed:
			s.Failed += n
		case core.TaskStatusRetried:
			s.Retried += n
		}
		s.Total += n
	}
	return s
}

// StagePercentage is floor(100 * completed / total); an empty stage is 0.
func StagePercentage(s core.Summary) int {
	if s.Total == 0 {
		return 0
	}
	return 100 * s.Completed / s.Total
}

// AllTasksCompleted reports whether every task of a non-empty stage is done.
func AllTasksCompleted(s core.Summary) bool {
	return s.Total > 0 && s.Completed == s.Total
}

// JobPercentage is floor(100 * completedStages / stages); a job with no stages is 0.
func JobPercentage(stages []*core.Stage) int {
	if len(stages) == 0 {
		return 0
	}
	completed := 0
	for _, st := range stages {
		if st.Status == core.StageStatusCompleted {
			completed++
		}
	}
	return 100 * completed / len(stages)
}

// NextJobPercentage applies the job percentage rules to a fresh computation:
// it never goes backwards, and it is 100 only for a completed job.
func NextJobPercentage(previous, computed int, status core.JobStatus) int {
	if status == core.JobStatusCompleted {
		return 100
	}
	p := computed
	if previous > p {
		p = previous
	}
	if p > 99 {
		p = 99
	}
	return p
}
