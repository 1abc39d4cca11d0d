package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MapColonies/jobnik/pkg/core"
)

func TestSummarize(t *testing.T) {
	s := Summarize(map[core.TaskStatus]int{
		core.TaskStatusPending:    2,
		core.TaskStatusInProgress: 1,
		core.TaskStatusCompleted:  3,
		core.TaskStatusRetried:    1,
		core.TaskStatusFailed:     1,
		core.TaskStatusAborted:    2,
	})

	assert.Equal(t, core.Summary{
		Pending:    2,
		InProgress: 1,
		Completed:  3,
		Failed:     1,
		Retried:    1,
		Total:      10,
	}, s)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, core.Summary{}, Summarize(nil))
}

func TestStagePercentage_Floors(t *testing.T) {
	assert.Equal(t, 0, StagePercentage(core.Summary{}))
	assert.Equal(t, 33, StagePercentage(core.Summary{Completed: 1, Total: 3}))
	assert.Equal(t, 66, StagePercentage(core.Summary{Completed: 2, Total: 3}))
	assert.Equal(t, 100, StagePercentage(core.Summary{Completed: 3, Total: 3}))
}

func TestAllTasksCompleted(t *testing.T) {
	assert.False(t, AllTasksCompleted(core.Summary{}))
	assert.False(t, AllTasksCompleted(core.Summary{Completed: 1, Failed: 1, Total: 2}))
	assert.True(t, AllTasksCompleted(core.Summary{Completed: 2, Total: 2}))
}

func stagesWith(statuses ...core.StageStatus) []*core.Stage {
	out := make([]*core.Stage, len(statuses))
	for i, s := range statuses {
		out[i] = &core.Stage{Order: i + 1, Status: s}
	}
	return out
}

func TestJobPercentage_StageSizedSteps(t *testing.T) {
	c, p := core.StageStatusCompleted, core.StageStatusPending

	assert.Equal(t, 0, JobPercentage(nil))
	assert.Equal(t, 0, JobPercentage(stagesWith(p, p, p, p)))
	assert.Equal(t, 25, JobPercentage(stagesWith(c, p, p, p)))
	assert.Equal(t, 50, JobPercentage(stagesWith(c, c, p, p)))
	assert.Equal(t, 75, JobPercentage(stagesWith(c, c, c, p)))
	assert.Equal(t, 100, JobPercentage(stagesWith(c, c, c, c)))
	assert.Equal(t, 33, JobPercentage(stagesWith(c, p, p)))
}

func TestNextJobPercentage(t *testing.T) {
	assert.Equal(t, 100, NextJobPercentage(75, 100, core.JobStatusCompleted))
	assert.Equal(t, 100, NextJobPercentage(0, 0, core.JobStatusCompleted))
	assert.Equal(t, 99, NextJobPercentage(75, 100, core.JobStatusInProgress), "only completed jobs reach 100")
	assert.Equal(t, 50, NextJobPercentage(50, 40, core.JobStatusInProgress), "never decreases")
	assert.Equal(t, 60, NextJobPercentage(50, 60, core.JobStatusInProgress))
	assert.Equal(t, 25, NextJobPercentage(25, 25, core.JobStatusFailed))
}
