package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapColonies/jobnik/pkg/core"
)

func makeStages(statuses ...core.StageStatus) []*core.Stage {
	out := make([]*core.Stage, len(statuses))
	for i, s := range statuses {
		out[i] = &core.Stage{ID: string(rune('a' + i)), Order: i + 1, Status: s}
	}
	return out
}

func TestNext_ActivatesFollowingCreatedStage(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusCreated, core.StageStatusCreated)

	d := Next(stages, stages[0])

	require.NotNil(t, d.Activate)
	assert.Equal(t, 2, d.Activate.Order)
	assert.False(t, d.CompleteJob)
	assert.False(t, d.FailJob)
}

func TestNext_WaitingSuccessorStaysGated(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusWaiting, core.StageStatusCreated)

	d := Next(stages, stages[0])

	assert.Equal(t, Decision{}, d)
}

func TestNext_LastStageCompletesJob(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusCompleted)

	d := Next(stages, stages[1])

	assert.True(t, d.CompleteJob)
	assert.Nil(t, d.Activate)
}

func TestNext_FailedStageFailsJob(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusFailed, core.StageStatusCreated)

	d := Next(stages, stages[1])

	assert.True(t, d.FailJob)
	assert.Nil(t, d.Activate, "later stages never activate after a failure")
}

func TestNext_ReleasedStageAlreadyPending(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusPending)

	d := Next(stages, stages[0])

	assert.Equal(t, Decision{}, d)
}

func TestNext_NonTerminalStageIsNoop(t *testing.T) {
	stages := makeStages(core.StageStatusInProgress)
	assert.Equal(t, Decision{}, Next(stages, stages[0]))
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, core.StageStatusPending, InitialStatus(1, false))
	assert.Equal(t, core.StageStatusCreated, InitialStatus(2, false))
	assert.Equal(t, core.StageStatusWaiting, InitialStatus(1, true))
	assert.Equal(t, core.StageStatusWaiting, InitialStatus(3, true))
}

func TestNext_OutOfOrderCompletionWaitsForEarlierStages(t *testing.T) {
	stages := makeStages(core.StageStatusPending, core.StageStatusCompleted, core.StageStatusCreated)

	d := Next(stages, stages[1])

	assert.Equal(t, Decision{}, d, "stage 3 must not start while stage 1 is unfinished")
}

func TestNext_SkipsCompletedStagesWhenActivating(t *testing.T) {
	stages := makeStages(core.StageStatusCompleted, core.StageStatusCompleted, core.StageStatusCreated)

	d := Next(stages, stages[0])

	require.NotNil(t, d.Activate)
	assert.Equal(t, 3, d.Activate.Order)
}
