package engine

import (
	"fmt"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// CompletedSubmission pairs a completed submission with its recorded values,
// the unit an evaluator folds over.
type CompletedSubmission struct {
	Submission formdomain.Submission
	Values     []formdomain.SubmissionValue
}

// FormContext carries the form definition evaluators may need: the form, its
// analyzable elements in order, and choices keyed by element id.
type FormContext struct {
	Form     formdomain.Form
	Elements []formdomain.Element
	Choices  map[string][]formdomain.ElementChoice
}

// SeriesPoint is one labeled value of a rendered result series.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ResultView is the render-ready output of an evaluator's ShowResults.
type ResultView struct {
	Evaluator string        `json:"evaluator"`
	Title     string        `json:"title"`
	Series    []SeriesPoint `json:"series"`
}

// Evaluator implements one statistic family over a form's submissions. Each
// evaluator owns an exclusively-namespaced slice of the per-form aggregate
// state, keyed by its slug, so evaluators enabled on the same form never
// collide.
//
// EvaluateSingle folds one completed submission into the aggregate and
// returns the updated state without mutating the input. EvaluateMultiple
// recomputes from a submission sequence ordered by completion time; the
// canonical implementation is a left fold of EvaluateSingle (see
// FoldSubmissions). Fold order is significant unless the evaluator also
// implements CommutativeEvaluator.
type Evaluator interface {
	Slug() string
	EvaluateSingle(state map[string]any, submission CompletedSubmission, form FormContext) (map[string]any, error)
	EvaluateMultiple(state map[string]any, submissions []CompletedSubmission, form FormContext) (map[string]any, error)
	ShowResults(state map[string]any, form FormContext) (ResultView, error)
}

// CommutativeEvaluator is implemented by evaluators whose fold result is
// independent of submission order. Order sensitivity is the default; an
// evaluator must opt in explicitly to claim commutativity.
type CommutativeEvaluator interface {
	Commutative() bool
}

// StateValidator is implemented by evaluators that can detect corrupt
// aggregate slices. A validation failure triggers an automatic rebuild.
type StateValidator interface {
	ValidateState(state map[string]any) error
}

// FoldSubmissions left-folds EvaluateSingle over submissions in the given
// order. Evaluators use it as their EvaluateMultiple implementation.
func FoldSubmissions(ev Evaluator, state map[string]any, submissions []CompletedSubmission, form FormContext) (map[string]any, error) {
	var err error
	for _, submission := range submissions {
		state, err = ev.EvaluateSingle(state, submission, form)
		if err != nil {
			return nil, fmt.Errorf("fold %s over submission %s: %w", ev.Slug(), submission.Submission.ID, err)
		}
	}
	return state, nil
}
