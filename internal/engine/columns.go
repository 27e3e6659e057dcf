// Package engine implements the results evaluation and aggregation engine:
// pivoting sparse submission values into a dense queryable relation, running
// filter/sort/page queries over it, rendering rows for display and export,
// and maintaining per-form aggregate statistics through pluggable evaluators.
package engine

import (
	"fmt"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// ColumnKind distinguishes how a pivot column derives its values.
type ColumnKind string

const (
	// KindScalar holds the single submitted value of a non-choice element.
	KindScalar ColumnKind = "scalar"
	// KindChoiceBool holds yes/no for one choice of a choice element.
	KindChoiceBool ColumnKind = "choice_bool"
	// KindSynthetic holds engine-provided values (submission identity) or
	// values produced by an injected column resolver.
	KindSynthetic ColumnKind = "synthetic"
)

// Reserved synthetic column slugs present in every non-empty schema.
const (
	ColumnID    = "id"
	ColumnLabel = "label"
)

// Values stored for choice_bool columns.
const (
	ChoiceYes = "yes"
	ChoiceNo  = "no"
)

// ColumnResolver computes an injected column's raw value for one submission.
type ColumnResolver func(submission formdomain.Submission) string

// Column describes one pivot schema column. The slug is the stable machine
// identity; the title is the human label used at presentation time.
type Column struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	ElementID   string     `json:"element_id,omitempty"`
	Kind        ColumnKind `json:"kind"`
	ChoiceValue string     `json:"choice_value,omitempty"`
	ChoiceField string     `json:"choice_field,omitempty"`

	resolver ColumnResolver
}

// Row is one pivot relation row keyed by column slug. Every schema column is
// present; absent values are empty strings.
type Row map[string]string

// elementSlug generates the base slug for a scalar element column.
func elementSlug(elementID string) string {
	return fmt.Sprintf("element_%s", elementID)
}

// choiceSlug generates the base slug for a choice_bool column.
func choiceSlug(elementID, choiceID string) string {
	return fmt.Sprintf("element_%s_%s", elementID, choiceID)
}

// slugSet assigns unique slugs, disambiguating collisions deterministically
// in encounter order: slug, "slug (2)", "slug (3)", ...
type slugSet map[string]struct{}

func (s slugSet) assign(base string) string {
	if _, taken := s[base]; !taken {
		s[base] = struct{}{}
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", base, i)
		if _, taken := s[candidate]; !taken {
			s[candidate] = struct{}{}
			return candidate
		}
	}
}
