package formdomain

import "errors"

// Sentinel errors surfaced by store implementations. Higher layers match
// these with errors.Is and never inspect error strings.
var (
	// ErrFormNotFound indicates the requested form does not exist.
	ErrFormNotFound = errors.New("formdomain: form not found")
	// ErrSubmissionNotFound indicates the requested submission does not exist.
	ErrSubmissionNotFound = errors.New("formdomain: submission not found")
	// ErrElementNotFound indicates a value references an unknown element.
	ErrElementNotFound = errors.New("formdomain: element not found")
	// ErrValueExists indicates a write-once violation for
	// (submission, element, field) on a non-multivalue element.
	ErrValueExists = errors.New("formdomain: value already recorded")
	// ErrSubmissionClosed indicates a value write against a submission in a
	// terminal state.
	ErrSubmissionClosed = errors.New("formdomain: submission closed")
	// ErrInvalidTransition indicates an illegal submission status change.
	ErrInvalidTransition = errors.New("formdomain: invalid status transition")
	// ErrFormMismatch indicates a value's element belongs to a different form
	// than its submission.
	ErrFormMismatch = errors.New("formdomain: element not part of submission form")
	// ErrVersionConflict indicates a compare-and-swap lost against a
	// concurrent aggregate writer.
	ErrVersionConflict = errors.New("formdomain: aggregate version conflict")
)
