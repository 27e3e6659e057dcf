package formdomain

// SubmissionStatus enumerates the submission lifecycle states.
type SubmissionStatus string

// Canonical submission statuses. Transitions are one-directional:
// draft -> completed or draft -> errored. Terminal states never move again.
const (
	StatusDraft     SubmissionStatus = "draft"
	StatusCompleted SubmissionStatus = "completed"
	StatusErrored   SubmissionStatus = "errored"
)

// Valid reports whether the status is one of the canonical states.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusErrored:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusErrored
}

// CanTransition reports whether moving from s to next is a legal state
// machine step.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	if s != StatusDraft {
		return false
	}
	return next == StatusCompleted || next == StatusErrored
}
