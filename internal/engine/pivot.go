package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Pivot is the dense relation derived from a form's sparse submission
// values: an ordered column schema plus one row per completed submission.
type Pivot struct {
	FormID      string
	Fingerprint string
	Columns     []Column
	Rows        []Row
}

// Schema returns the ordered column schema.
func (p *Pivot) Schema() []Column {
	out := make([]Column, len(p.Columns))
	copy(out, p.Columns)
	return out
}

// Builder converts submission values into cached pivots. Rebuilds of the
// same (form, fingerprint) are single-flighted; different forms build in
// parallel.
type Builder struct {
	store formdomain.SubmissionStore

	mu     sync.RWMutex
	custom map[string][]Column
	cache  map[string]*Pivot
	// gen is bumped per form on every invalidation; a build only caches its
	// result when the form's generation is unchanged since the scan started,
	// so a completion landing mid-build cannot pin a stale relation.
	gen   map[string]uint64
	group singleflight.Group
}

// NewBuilder constructs a pivot builder over the submission store.
func NewBuilder(store formdomain.SubmissionStore) *Builder {
	return &Builder{
		store:  store,
		custom: make(map[string][]Column),
		cache:  make(map[string]*Pivot),
		gen:    make(map[string]uint64),
	}
}

// AddColumn injects a computed column into the form's pivot schema. Injected
// columns participate in the same slug disambiguation as element-derived
// columns and are appended after them in encounter order.
func (b *Builder) AddColumn(formID, slug, title string, resolver ColumnResolver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.custom[formID] = append(b.custom[formID], Column{
		Slug:     slug,
		Title:    title,
		Kind:     KindSynthetic,
		resolver: resolver,
	})
	// A schema change invalidates every cached pivot of the form.
	b.evictForm(formID)
}

// Invalidate drops every cached pivot for the form. Called when submissions
// complete so subsequent builds observe the new row.
func (b *Builder) Invalidate(formID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictForm(formID)
}

func (b *Builder) evictForm(formID string) {
	b.gen[formID]++
	prefix := formID + "@"
	for key := range b.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(b.cache, key)
		}
	}
}

// Build returns the form's pivot, rebuilding only when the cached relation's
// element fingerprint no longer matches. An optional element-id allow-list
// restricts which analyzable elements contribute columns.
func (b *Builder) Build(ctx context.Context, formID string, allowElements []string) (*Pivot, error) {
	if _, err := b.store.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	elements, err := b.analyzableElements(ctx, formID, allowElements)
	if err != nil {
		return nil, err
	}
	choices := make(map[string][]formdomain.ElementChoice, len(elements))
	for _, element := range elements {
		if !element.Choice && !element.Multivalue {
			continue
		}
		elementChoices, err := b.store.ListChoices(ctx, element.ID)
		if err != nil {
			return nil, err
		}
		choices[element.ID] = elementChoices
	}
	b.mu.RLock()
	custom := append([]Column(nil), b.custom[formID]...)
	b.mu.RUnlock()

	fingerprint := fingerprintOf(elements, choices, custom, allowElements)
	key := formID + "@" + fingerprint

	b.mu.RLock()
	cached, ok := b.cache[key]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	built, err, _ := b.group.Do(key, func() (any, error) {
		b.mu.RLock()
		cached, ok := b.cache[key]
		startGen := b.gen[formID]
		b.mu.RUnlock()
		if ok {
			return cached, nil
		}
		pivot, err := b.build(ctx, formID, fingerprint, elements, choices, custom)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.gen[formID] == startGen {
			b.cache[key] = pivot
		}
		b.mu.Unlock()
		return pivot, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*Pivot), nil
}

func (b *Builder) analyzableElements(ctx context.Context, formID string, allow []string) ([]formdomain.Element, error) {
	elements, err := b.store.ListElements(ctx, formID)
	if err != nil {
		return nil, err
	}
	var allowed map[string]struct{}
	if len(allow) > 0 {
		allowed = make(map[string]struct{}, len(allow))
		for _, id := range allow {
			allowed[id] = struct{}{}
		}
	}
	out := elements[:0:0]
	for _, element := range elements {
		if !element.Analyzable {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[element.ID]; !ok {
				continue
			}
		}
		out = append(out, element)
	}
	return out, nil
}

// fingerprintOf hashes the ordered element/choice identifiers plus injected
// column slugs, so any add or remove invalidates cached pivots of the form.
func fingerprintOf(elements []formdomain.Element, choices map[string][]formdomain.ElementChoice, custom []Column, allow []string) string {
	h := sha256.New()
	for _, element := range elements {
		fmt.Fprintf(h, "e:%s;", element.ID)
		for _, choice := range choices[element.ID] {
			fmt.Fprintf(h, "c:%s;", choice.ID)
		}
	}
	for _, col := range custom {
		fmt.Fprintf(h, "x:%s;", col.Slug)
	}
	for _, id := range allow {
		fmt.Fprintf(h, "a:%s;", id)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (b *Builder) build(ctx context.Context, formID, fingerprint string, elements []formdomain.Element, choices map[string][]formdomain.ElementChoice, custom []Column) (*Pivot, error) {
	columns := buildSchema(elements, choices, custom)
	pivot := &Pivot{FormID: formID, Fingerprint: fingerprint}
	if len(columns) == 0 {
		return pivot, nil
	}
	pivot.Columns = columns

	submissions, err := b.store.ListSubmissions(ctx, formID, formdomain.StatusCompleted)
	if err != nil {
		return nil, err
	}
	for _, submission := range submissions {
		values, err := b.store.ListValues(ctx, submission.ID)
		if err != nil {
			return nil, err
		}
		pivot.Rows = append(pivot.Rows, buildRow(columns, submission, values))
	}
	return pivot, nil
}

// buildSchema derives the ordered column schema: submission identity first,
// then element columns in (container sort, element sort) order with choice
// columns in choice sort order, then injected columns.
func buildSchema(elements []formdomain.Element, choices map[string][]formdomain.ElementChoice, custom []Column) []Column {
	if len(elements) == 0 && len(custom) == 0 {
		return nil
	}
	taken := make(slugSet)
	columns := []Column{
		{Slug: taken.assign(ColumnID), Title: "ID", Kind: KindSynthetic},
		{Slug: taken.assign(ColumnLabel), Title: "Label", Kind: KindSynthetic},
	}
	for _, element := range elements {
		if element.Choice || element.Multivalue {
			for _, choice := range choices[element.ID] {
				columns = append(columns, Column{
					Slug:        taken.assign(choiceSlug(element.ID, choice.ID)),
					Title:       fmt.Sprintf("%s: %s", element.Label, choice.Value),
					ElementID:   element.ID,
					Kind:        KindChoiceBool,
					ChoiceValue: choice.Value,
					ChoiceField: choice.Field,
				})
			}
			continue
		}
		columns = append(columns, Column{
			Slug:      taken.assign(elementSlug(element.ID)),
			Title:     element.Label,
			ElementID: element.ID,
			Kind:      KindScalar,
		})
	}
	for _, col := range custom {
		col.Slug = taken.assign(col.Slug)
		columns = append(columns, col)
	}
	return columns
}

// buildRow projects one submission's sparse values onto the dense schema.
// Missing values are empty strings; choice_bool columns are yes/no.
func buildRow(columns []Column, submission formdomain.Submission, values []formdomain.SubmissionValue) Row {
	row := make(Row, len(columns))
	for _, col := range columns {
		switch {
		case col.Slug == ColumnID && col.Kind == KindSynthetic && col.resolver == nil:
			row[col.Slug] = submission.ID
		case col.Slug == ColumnLabel && col.Kind == KindSynthetic && col.resolver == nil:
			row[col.Slug] = "#" + submission.ID
		case col.resolver != nil:
			row[col.Slug] = col.resolver(submission)
		case col.Kind == KindChoiceBool:
			row[col.Slug] = ChoiceNo
			for _, value := range values {
				if value.ElementID == col.ElementID && value.Field == col.ChoiceField && value.Value == col.ChoiceValue {
					row[col.Slug] = ChoiceYes
					break
				}
			}
		default:
			row[col.Slug] = ""
			for _, value := range values {
				if value.ElementID == col.ElementID {
					row[col.Slug] = value.Value
					break
				}
			}
		}
	}
	return row
}
