package controller

// Stage is the pipeline position of a request.
type Stage int

const (
	// StageNone is the position before a request exists.
	StageNone Stage = iota
	// StagePlanning waits for the planner.
	StagePlanning
	// StageCoding waits for all coder subtasks.
	StageCoding
	// StageReview waits for the reviewer.
	StageReview
	// StageDone is the successful terminal stage.
	StageDone
	// StageFailed is the unsuccessful terminal stage.
	StageFailed
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StagePlanning:
		return "planning"
	case StageCoding:
		return "coding"
	case StageReview:
		return "review"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool { return s == StageDone || s == StageFailed }

// canAdvanceTo enforces forward-only movement: the next stage in order, or
// failed from any non-terminal stage.
func (s Stage) canAdvanceTo(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return next == s+1 && next <= StageDone
}
