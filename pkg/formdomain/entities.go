// Package formdomain defines the persistent entities, the submission state
// machine, and the store interfaces consumed by the results engine.
package formdomain

import "time"

// ElementType identifies the kind of input an element accepts.
type ElementType string

// Supported element type identifiers used in pivot schema derivation.
const (
	// ElementTextfield is a single-line scalar text input.
	ElementTextfield ElementType = "textfield"
	// ElementTextarea is a multi-line scalar text input.
	ElementTextarea ElementType = "textarea"
	// ElementDropdown is a single-selection choice input rendered as a select box.
	ElementDropdown ElementType = "dropdown"
	// ElementOneChoice is a single-selection choice input rendered as radio buttons.
	ElementOneChoice ElementType = "onechoice"
	// ElementMultipleChoice is a multi-selection choice input.
	ElementMultipleChoice ElementType = "multiplechoice"
	// ElementContent carries static markup and never accepts values.
	ElementContent ElementType = "content"
)

// DefaultChoiceField groups sub-choices of an element when no explicit field
// grouping is configured.
const DefaultChoiceField = "_main"

// Form is the top-level survey definition. It owns containers.
type Form struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Container is an ordered sub-page of a form. It owns elements.
type Container struct {
	ID     string `json:"id"`
	FormID string `json:"form_id"`
	Sort   int    `json:"sort"`
}

// Element is a single input (or content block) inside a container.
type Element struct {
	ID          string      `json:"id"`
	ContainerID string      `json:"container_id"`
	Type        ElementType `json:"type"`
	Label       string      `json:"label"`
	Sort        int         `json:"sort"`
	Choice      bool        `json:"is_choice"`
	Multivalue  bool        `json:"is_multivalue"`
	Analyzable  bool        `json:"is_analyzable"`
}

// ElementChoice enumerates one selectable value of a choice element. Field
// groups sub-choices within the element; the default group is "_main".
type ElementChoice struct {
	ID        string `json:"id"`
	ElementID string `json:"element_id"`
	Field     string `json:"field"`
	Value     string `json:"value"`
	Sort      int    `json:"sort"`
}

// Submission is one respondent's pass through a form. Created as draft and
// transitioned exactly once to completed or errored.
type Submission struct {
	ID        string           `json:"id"`
	FormID    string           `json:"form_id"`
	UserID    string           `json:"user_id"`
	Timestamp time.Time        `json:"timestamp"`
	Status    SubmissionStatus `json:"status"`
}

// SubmissionValue is one submitted value. Write-once per
// (submission, element, field); multiple rows per element are valid only for
// multivalue elements, one row per selected choice.
type SubmissionValue struct {
	SubmissionID string `json:"submission_id"`
	ElementID    string `json:"element_id"`
	Field        string `json:"field"`
	Value        string `json:"value"`
}

// AggregateSlice is the versioned aggregate state owned by a single evaluator
// on a single form. Version supports optimistic compare-and-swap updates.
type AggregateSlice struct {
	Data    map[string]any `json:"data"`
	Version uint64         `json:"version"`
}

// Clone returns a deep copy of the slice data safe for mutation by an
// evaluator fold.
func (s AggregateSlice) Clone() map[string]any {
	return CloneAggregateData(s.Data)
}

// CloneAggregateData deep-copies aggregate data. Nested maps are copied;
// leaf values are JSON scalars and copied by assignment.
func CloneAggregateData(in map[string]any) map[string]any {
	return cloneAnyMap(in)
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneAnyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
