// Package evaluators contains the built-in statistic families registered
// with the results engine. Each evaluator owns the aggregate namespace of
// its slug and folds completed submissions into it.
package evaluators

import (
	"fmt"
	"sort"

	"github.com/awsmug/torro-forms-sub006/internal/engine"
)

const monthLayout = "2006-01"

// Participation counts completed submissions, bucketed per calendar month.
// The count is order-independent, so the evaluator declares commutativity.
type Participation struct{}

// NewParticipation constructs the participation evaluator.
func NewParticipation() Participation { return Participation{} }

// Slug returns the evaluator identifier.
func (Participation) Slug() string { return "participation" }

// Commutative reports that the fold result is independent of submission order.
func (Participation) Commutative() bool { return true }

// EvaluateSingle folds one completed submission into the counts.
func (Participation) EvaluateSingle(state map[string]any, submission engine.CompletedSubmission, _ engine.FormContext) (map[string]any, error) {
	if state == nil {
		state = map[string]any{}
	}
	total, _ := asFloat(state["total"])
	state["total"] = total + 1

	months, ok := state["months"].(map[string]any)
	if !ok {
		months = map[string]any{}
		state["months"] = months
	}
	bucket := submission.Submission.Timestamp.UTC().Format(monthLayout)
	count, _ := asFloat(months[bucket])
	months[bucket] = count + 1
	return state, nil
}

// EvaluateMultiple recomputes the counts as a left fold over the ordered
// submissions.
func (p Participation) EvaluateMultiple(state map[string]any, submissions []engine.CompletedSubmission, form engine.FormContext) (map[string]any, error) {
	return engine.FoldSubmissions(p, state, submissions, form)
}

// ShowResults renders the per-month series in chronological order.
func (Participation) ShowResults(state map[string]any, _ engine.FormContext) (engine.ResultView, error) {
	view := engine.ResultView{Evaluator: "participation", Title: "Participation over time"}
	months, _ := state["months"].(map[string]any)
	labels := make([]string, 0, len(months))
	for label := range months {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		value, ok := asFloat(months[label])
		if !ok {
			return engine.ResultView{}, fmt.Errorf("month %s holds non-numeric count %v", label, months[label])
		}
		view.Series = append(view.Series, engine.SeriesPoint{Label: label, Value: value})
	}
	return view, nil
}

// ValidateState rejects slices whose counters are not numeric. An empty
// state is valid and means zero submissions folded so far.
func (Participation) ValidateState(state map[string]any) error {
	if len(state) == 0 {
		return nil
	}
	if _, ok := asFloat(state["total"]); !ok {
		return fmt.Errorf("total holds non-numeric value %v", state["total"])
	}
	months, ok := state["months"].(map[string]any)
	if !ok {
		return fmt.Errorf("months bucket missing")
	}
	for label, raw := range months {
		if _, ok := asFloat(raw); !ok {
			return fmt.Errorf("month %s holds non-numeric count %v", label, raw)
		}
	}
	return nil
}

// asFloat coerces the numeric types a JSON round-trip may produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
