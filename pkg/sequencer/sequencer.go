// Package sequencer decides what happens to a job once one of its stages
// reaches a terminal state.
package sequencer

import "github.com/MapColonies/jobnik/pkg/core"

// Decision is the outcome of a sequencing step. At most one of Activate,
// CompleteJob and FailJob is set.
type Decision struct {
	// Activate is the next stage to move from CREATED to PENDING.
	Activate *core.Stage
	// CompleteJob is set when every stage of the job is completed.
	CompleteJob bool
	// FailJob is set when the finished stage failed.
	FailJob bool
}

// Next returns the decision for a job whose stage finished. stages must
// reflect the finished stage's new status.
func Next(stages []*core.Stage, finished *core.Stage) Decision {
	switch finished.Status {
	case core.StageStatusFailed:
		return Decision{FailJob: true}
	case core.StageStatusCompleted:
	default:
		return Decision{}
	}

	if allCompleted(stages) {
		return Decision{CompleteJob: true}
	}

	// Only the lowest unfinished stage may start, and only once every stage
	// before it has completed. A WAITING stage stays gated until released.
	next := firstUnfinished(stages)
	if next != nil && next.Status == core.StageStatusCreated {
		return Decision{Activate: next}
	}
	return Decision{}
}

// InitialStatus returns the status of a stage appended at the given order.
func InitialStatus(order int, startAsWaiting bool) core.StageStatus {
	switch {
	case startAsWaiting:
		return core.StageStatusWaiting
	case order == 1:
		return core.StageStatusPending
	default:
		return core.StageStatusCreated
	}
}

// firstUnfinished returns the lowest-order stage that is not COMPLETED.
func firstUnfinished(stages []*core.Stage) *core.Stage {
	var next *core.Stage
	for _, st := range stages {
		if st.Status != core.StageStatusCompleted && (next == nil || st.Order < next.Order) {
			next = st
		}
	}
	return next
}

func allCompleted(stages []*core.Stage) bool {
	if len(stages) == 0 {
		return false
	}
	for _, st := range stages {
		if st.Status != core.StageStatusCompleted {
			return false
		}
	}
	return true
}
