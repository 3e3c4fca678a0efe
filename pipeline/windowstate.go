package pipeline

import (
	"fmt"

	"github.com/rivergate/chronicle/window"
)

// state is one position in the window-splitting state machine (§4.10).
type state string

const (
	stateQueued       state = "queued"
	stateProcessing   state = "processing"
	stateSplitPending state = "split_pending"
	stateDone         state = "done"
	stateFailed       state = "failed"
)

// windowJob is one queued unit of work: a window plus the bookkeeping the
// split state machine needs. ordinal is assigned when the job is popped
// for processing (not at creation), since a split replaces one job with
// several and only the commit order — not the original window sequence —
// needs to be monotonic for the run tracker's cursor.
type windowJob struct {
	win     *window.Window
	ordinal int
	st      state
}

// ErrSplitBudgetExhausted is the terminal failure reason when a window
// cannot be split further: either it has fewer than SplitFactor *
// MinWindowSize entries, or splitting it again would exceed MaxSplitDepth.
var ErrSplitBudgetExhausted = fmt.Errorf("pipeline: split budget exhausted")

// canSplit reports whether job may still be subdivided under budget,
// testable property 7: depth+1 <= maxDepth and size >= factor*minSize
// (2*minSize at the default factor).
func canSplit(j *windowJob, maxDepth, minSize, factor int) bool {
	if j.win.Depth+1 > maxDepth {
		return false
	}
	return len(j.win.Entries) >= factor*minSize
}

// split transitions job from processing to split_pending and returns its
// children, queued at depth+1. Callers must have already verified
// canSplit. Children are not ordinal-tagged here: ordinals are assigned
// when a job is popped for processing, not at creation.
func split(j *windowJob, factor int) ([]*windowJob, error) {
	j.st = stateSplitPending
	parts, err := window.SplitN(j.win, factor)
	if err != nil {
		return nil, err
	}
	children := make([]*windowJob, 0, len(parts))
	for _, p := range parts {
		children = append(children, &windowJob{win: p, st: stateQueued})
	}
	return children, nil
}
