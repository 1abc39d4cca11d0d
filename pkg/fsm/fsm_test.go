package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapColonies/jobnik/pkg/core"
)

var allJobStatuses = []core.JobStatus{
	core.JobStatusCreated, core.JobStatusPending, core.JobStatusInProgress, core.JobStatusPaused,
	core.JobStatusCompleted, core.JobStatusFailed, core.JobStatusAborted,
}

var allStageStatuses = []core.StageStatus{
	core.StageStatusCreated, core.StageStatusWaiting, core.StageStatusPending, core.StageStatusInProgress,
	core.StageStatusCompleted, core.StageStatusFailed, core.StageStatusAborted,
}

var allTaskStatuses = []core.TaskStatus{
	core.TaskStatusCreated, core.TaskStatusPending, core.TaskStatusInProgress, core.TaskStatusRetried,
	core.TaskStatusCompleted, core.TaskStatusFailed, core.TaskStatusAborted,
}

func TestJob_TerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range core.FiniteJobStatuses {
		for _, to := range allJobStatuses {
			assert.Error(t, Job("j", from, to), "%s -> %s", from, to)
			assert.Error(t, JobByOperator("j", from, to), "%s -> %s", from, to)
		}
	}
}

func TestJob_AbortFromEveryNonTerminalState(t *testing.T) {
	for _, from := range allJobStatuses {
		if from.Finite() {
			continue
		}
		assert.NoError(t, JobByOperator("j", from, core.JobStatusAborted), from)
	}
}

func TestJob_CompletedToAbortedMessage(t *testing.T) {
	err := JobByOperator("j", core.JobStatusCompleted, core.JobStatusAborted)
	require.Error(t, err)

	assert.Equal(t, "Illegal status transition from COMPLETED to ABORTED", err.Error())
	assert.True(t, errors.Is(err, core.ErrIllegalJobTransition))
}

func TestJob_OperatorCannotForceCompletion(t *testing.T) {
	assert.Error(t, JobByOperator("j", core.JobStatusInProgress, core.JobStatusCompleted))
	assert.Error(t, JobByOperator("j", core.JobStatusPending, core.JobStatusFailed))
	assert.Error(t, JobByOperator("j", core.JobStatusPending, core.JobStatusInProgress))
	assert.NoError(t, Job("j", core.JobStatusInProgress, core.JobStatusCompleted))
}

func TestJob_PauseResume(t *testing.T) {
	assert.NoError(t, JobByOperator("j", core.JobStatusPending, core.JobStatusPaused))
	assert.NoError(t, JobByOperator("j", core.JobStatusInProgress, core.JobStatusPaused))
	assert.NoError(t, JobByOperator("j", core.JobStatusPaused, core.JobStatusPending))
	assert.Error(t, JobByOperator("j", core.JobStatusPaused, core.JobStatusPaused))
	assert.Error(t, JobByOperator("j", core.JobStatusPaused, core.JobStatusInProgress))
}

func TestOperatorTablesAreSubsetsOfEngineTables(t *testing.T) {
	for _, from := range allJobStatuses {
		for _, to := range allJobStatuses {
			if JobByOperator("j", from, to) == nil {
				assert.NoError(t, Job("j", from, to), "%s -> %s", from, to)
			}
		}
	}
	for _, from := range allStageStatuses {
		for _, to := range allStageStatuses {
			if StageByOperator("s", from, to) == nil {
				assert.NoError(t, Stage("s", from, to), "%s -> %s", from, to)
			}
		}
	}
	for _, from := range allTaskStatuses {
		for _, to := range allTaskStatuses {
			if TaskByOperator("t", from, to) == nil {
				assert.NoError(t, Task("t", from, to), "%s -> %s", from, to)
			}
		}
	}
}

func TestStage_WaitingOnlyReleasedToPending(t *testing.T) {
	assert.NoError(t, StageByOperator("s", core.StageStatusWaiting, core.StageStatusPending))
	assert.Error(t, Stage("s", core.StageStatusWaiting, core.StageStatusInProgress))
	assert.Error(t, StageByOperator("s", core.StageStatusWaiting, core.StageStatusCompleted))
}

func TestStage_TerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range []core.StageStatus{core.StageStatusCompleted, core.StageStatusFailed, core.StageStatusAborted} {
		for _, to := range allStageStatuses {
			err := Stage("s", from, to)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrIllegalStageTransition))
		}
	}
}

func TestTask_Lifecycle(t *testing.T) {
	assert.NoError(t, Task("t", core.TaskStatusPending, core.TaskStatusInProgress))
	assert.NoError(t, Task("t", core.TaskStatusInProgress, core.TaskStatusRetried))
	assert.NoError(t, Task("t", core.TaskStatusRetried, core.TaskStatusInProgress))
	assert.NoError(t, Task("t", core.TaskStatusInProgress, core.TaskStatusFailed))

	err := Task("t", core.TaskStatusPending, core.TaskStatusCompleted)
	require.Error(t, err)
	assert.Equal(t, core.CodeIllegalTaskStatusTransition, core.CodeOf(err))
}

func TestTaskByOperator_OnlyReportsOnClaimedTasks(t *testing.T) {
	assert.NoError(t, TaskByOperator("t", core.TaskStatusInProgress, core.TaskStatusCompleted))
	assert.NoError(t, TaskByOperator("t", core.TaskStatusInProgress, core.TaskStatusFailed))
	assert.Error(t, TaskByOperator("t", core.TaskStatusPending, core.TaskStatusCompleted))
	assert.Error(t, TaskByOperator("t", core.TaskStatusInProgress, core.TaskStatusRetried))
}
