package evaluators

import (
	"fmt"
	"sort"

	"github.com/awsmug/torro-forms-sub006/internal/engine"
)

// ElementChoices counts how often each choice of each analyzable choice
// element was selected. Counting is order-independent.
type ElementChoices struct{}

// NewElementChoices constructs the choice frequency evaluator.
func NewElementChoices() ElementChoices { return ElementChoices{} }

// Slug returns the evaluator identifier.
func (ElementChoices) Slug() string { return "element-choices" }

// Commutative reports that the fold result is independent of submission order.
func (ElementChoices) Commutative() bool { return true }

// EvaluateSingle folds one completed submission into the per-choice counts.
func (ElementChoices) EvaluateSingle(state map[string]any, submission engine.CompletedSubmission, form engine.FormContext) (map[string]any, error) {
	if state == nil {
		state = map[string]any{}
	}
	known := make(map[string]map[string]struct{}, len(form.Choices))
	for elementID, choices := range form.Choices {
		values := make(map[string]struct{}, len(choices))
		for _, choice := range choices {
			values[choice.Value] = struct{}{}
		}
		known[elementID] = values
	}
	for _, value := range submission.Values {
		choiceValues, ok := known[value.ElementID]
		if !ok {
			continue
		}
		if _, ok := choiceValues[value.Value]; !ok {
			continue
		}
		counts, ok := state[value.ElementID].(map[string]any)
		if !ok {
			counts = map[string]any{}
			state[value.ElementID] = counts
		}
		count, _ := asFloat(counts[value.Value])
		counts[value.Value] = count + 1
	}
	return state, nil
}

// EvaluateMultiple recomputes the counts as a left fold over the ordered
// submissions.
func (c ElementChoices) EvaluateMultiple(state map[string]any, submissions []engine.CompletedSubmission, form engine.FormContext) (map[string]any, error) {
	return engine.FoldSubmissions(c, state, submissions, form)
}

// ShowResults flattens the counts into one series per element choice, in
// element order with choices in choice sort order.
func (ElementChoices) ShowResults(state map[string]any, form engine.FormContext) (engine.ResultView, error) {
	view := engine.ResultView{Evaluator: "element-choices", Title: "Choice frequencies"}
	for _, element := range form.Elements {
		counts, _ := state[element.ID].(map[string]any)
		for _, choice := range form.Choices[element.ID] {
			value, _ := asFloat(counts[choice.Value])
			view.Series = append(view.Series, engine.SeriesPoint{
				Label: fmt.Sprintf("%s: %s", element.Label, choice.Value),
				Value: value,
			})
		}
	}
	return view, nil
}

// ValidateState rejects slices whose counters are not numeric maps.
func (ElementChoices) ValidateState(state map[string]any) error {
	elementIDs := make([]string, 0, len(state))
	for elementID := range state {
		elementIDs = append(elementIDs, elementID)
	}
	sort.Strings(elementIDs)
	for _, elementID := range elementIDs {
		counts, ok := state[elementID].(map[string]any)
		if !ok {
			return fmt.Errorf("element %s holds non-map counts %v", elementID, state[elementID])
		}
		for choice, raw := range counts {
			if _, ok := asFloat(raw); !ok {
				return fmt.Errorf("element %s choice %s holds non-numeric count %v", elementID, choice, raw)
			}
		}
	}
	return nil
}
