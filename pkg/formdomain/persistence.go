package formdomain

import "context"

// SubmissionStore is the read-only facade over form, element, submission and
// value records consumed by the results engine.
type SubmissionStore interface {
	// GetForm returns the form or ErrFormNotFound.
	GetForm(ctx context.Context, formID string) (Form, error)
	// ListElements returns the form's elements ordered by
	// (container sort, element sort).
	ListElements(ctx context.Context, formID string) ([]Element, error)
	// ListChoices returns an element's choices in choice sort order.
	ListChoices(ctx context.Context, elementID string) ([]ElementChoice, error)
	// ListSubmissions returns the form's submissions with the given status
	// ordered by completion timestamp ascending.
	ListSubmissions(ctx context.Context, formID string, status SubmissionStatus) ([]Submission, error)
	// CountSubmissions counts the form's submissions with the given status.
	CountSubmissions(ctx context.Context, formID string, status SubmissionStatus) (int, error)
	// ListValues returns all values recorded for a submission.
	ListValues(ctx context.Context, submissionID string) ([]SubmissionValue, error)
}

// SubmissionWriter mutates form definitions and drives the submission state
// machine. Definition writes exist primarily for seeding and tests; the
// engine itself only completes and fails submissions.
type SubmissionWriter interface {
	CreateForm(ctx context.Context, form Form) (Form, error)
	CreateContainer(ctx context.Context, container Container) (Container, error)
	CreateElement(ctx context.Context, element Element) (Element, error)
	CreateChoice(ctx context.Context, choice ElementChoice) (ElementChoice, error)
	// StartSubmission creates a draft submission for the form.
	StartSubmission(ctx context.Context, submission Submission) (Submission, error)
	// AppendValue records one value on a draft submission, enforcing the
	// write-once and same-form invariants.
	AppendValue(ctx context.Context, value SubmissionValue) error
	// CompleteSubmission transitions draft -> completed, stamping the
	// completion time. The stored values become immutable.
	CompleteSubmission(ctx context.Context, submissionID string) (Submission, error)
	// FailSubmission transitions draft -> errored.
	FailSubmission(ctx context.Context, submissionID string) (Submission, error)
}

// AggregateStore holds the per-form, per-evaluator aggregate slices. Writes
// go through compare-and-swap so racing submission completions cannot lose
// updates; Replace is reserved for explicit rebuilds.
type AggregateStore interface {
	// GetAggregate returns the evaluator's slice for the form. A missing
	// slice is returned as the zero value, not an error.
	GetAggregate(ctx context.Context, formID, evaluatorSlug string) (AggregateSlice, error)
	// CompareAndSwapAggregate replaces the slice data if the stored version
	// still equals expected, bumping the version. Returns ErrVersionConflict
	// otherwise.
	CompareAndSwapAggregate(ctx context.Context, formID, evaluatorSlug string, expected uint64, data map[string]any) error
	// ReplaceAggregate atomically overwrites the slice regardless of version.
	ReplaceAggregate(ctx context.Context, formID, evaluatorSlug string, data map[string]any) error
}

// Store combines every persistence capability the engine needs. Concrete
// adapters live under internal/store.
type Store interface {
	SubmissionStore
	SubmissionWriter
	AggregateStore
}
