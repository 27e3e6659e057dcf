package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Selector decides per read whether an evaluator's results come from the
// stored aggregate slice or a live recompute. High-volume forms read the
// stored slice in O(1); low-volume forms recompute exactly from the
// submissions themselves. The write path keeps both in agreement.
type Selector struct {
	store          formdomain.Store
	registry       *Registry
	breakpoint     int
	rebuildTimeout time.Duration
}

// NewSelector constructs a strategy selector. breakpoint is the completed
// submission count above which reads switch to the stored aggregate.
func NewSelector(store formdomain.Store, registry *Registry, breakpoint int, rebuildTimeout time.Duration) *Selector {
	if breakpoint <= 0 {
		breakpoint = DefaultBreakpoint
	}
	if rebuildTimeout <= 0 {
		rebuildTimeout = DefaultRebuildTimeout
	}
	return &Selector{store: store, registry: registry, breakpoint: breakpoint, rebuildTimeout: rebuildTimeout}
}

// ResultSource names the read strategy that served an evaluation result.
type ResultSource string

const (
	// SourceAggregate marks a read served from the stored aggregate slice.
	SourceAggregate ResultSource = "aggregate"
	// SourceLive marks a read recomputed from the submissions themselves.
	SourceLive ResultSource = "live"
)

// Results returns the evaluator's aggregate for the form, choosing the read
// strategy by completed submission volume. A corrupt stored slice triggers
// one automatic rebuild before the read is retried.
func (s *Selector) Results(ctx context.Context, formID, evaluatorSlug string) (map[string]any, ResultSource, error) {
	ev, err := s.registry.Get(evaluatorSlug)
	if err != nil {
		return nil, "", err
	}
	count, err := s.store.CountSubmissions(ctx, formID, formdomain.StatusCompleted)
	if err != nil {
		return nil, "", err
	}
	if count <= s.breakpoint {
		state, err := s.recomputeLive(ctx, ev, formID)
		return state, SourceLive, err
	}

	slice, err := s.store.GetAggregate(ctx, formID, evaluatorSlug)
	if err != nil {
		return nil, "", err
	}
	if err := validateState(ev, slice.Data); err == nil {
		return slice.Data, SourceAggregate, nil
	}
	// Corrupt slice: rebuild once, then retry the read.
	if err := s.Rebuild(ctx, formID, evaluatorSlug); err != nil {
		return nil, "", err
	}
	slice, err = s.store.GetAggregate(ctx, formID, evaluatorSlug)
	if err != nil {
		return nil, "", err
	}
	if err := validateState(ev, slice.Data); err != nil {
		return nil, "", fmt.Errorf("evaluator %s on form %s after rebuild: %w: %v", evaluatorSlug, formID, ErrAggregateCorrupt, err)
	}
	return slice.Data, SourceAggregate, nil
}

// Rebuild recomputes the evaluator's aggregate slice from a full scan of the
// form's completed submissions and atomically replaces the stored slice. It
// repairs corruption and backfills evaluators enabled after submissions
// already exist. The scan is bounded by the configured timeout.
func (s *Selector) Rebuild(ctx context.Context, formID, evaluatorSlug string) error {
	ev, err := s.registry.Get(evaluatorSlug)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.rebuildTimeout)
	defer cancel()

	state, err := s.recomputeLive(ctx, ev, formID)
	if err != nil {
		return wrapRebuildErr(formID, evaluatorSlug, err)
	}
	if err := ctx.Err(); err != nil {
		return wrapRebuildErr(formID, evaluatorSlug, err)
	}
	if err := s.store.ReplaceAggregate(ctx, formID, evaluatorSlug, state); err != nil {
		return wrapRebuildErr(formID, evaluatorSlug, err)
	}
	return nil
}

func wrapRebuildErr(formID, evaluatorSlug string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("rebuild %s on form %s: %w", evaluatorSlug, formID, ErrRebuildTimeout)
	}
	return fmt.Errorf("rebuild %s on form %s: %w", evaluatorSlug, formID, err)
}

func (s *Selector) recomputeLive(ctx context.Context, ev Evaluator, formID string) (map[string]any, error) {
	form, err := loadFormContext(ctx, s.store, formID)
	if err != nil {
		return nil, err
	}
	submissions, err := loadCompleted(ctx, s.store, formID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, err := ev.EvaluateMultiple(map[string]any{}, submissions, form)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s on form %s: %w", ev.Slug(), formID, err)
	}
	return state, nil
}

func validateState(ev Evaluator, state map[string]any) error {
	validator, ok := ev.(StateValidator)
	if !ok {
		return nil
	}
	return validator.ValidateState(state)
}

// loadFormContext assembles the form definition evaluators receive.
func loadFormContext(ctx context.Context, store formdomain.SubmissionStore, formID string) (FormContext, error) {
	form, err := store.GetForm(ctx, formID)
	if err != nil {
		return FormContext{}, err
	}
	elements, err := store.ListElements(ctx, formID)
	if err != nil {
		return FormContext{}, err
	}
	analyzable := elements[:0:0]
	choices := make(map[string][]formdomain.ElementChoice)
	for _, element := range elements {
		if !element.Analyzable {
			continue
		}
		analyzable = append(analyzable, element)
		if element.Choice || element.Multivalue {
			elementChoices, err := store.ListChoices(ctx, element.ID)
			if err != nil {
				return FormContext{}, err
			}
			choices[element.ID] = elementChoices
		}
	}
	return FormContext{Form: form, Elements: analyzable, Choices: choices}, nil
}

// loadCompleted fetches the form's completed submissions with their values,
// ordered by completion time ascending.
func loadCompleted(ctx context.Context, store formdomain.SubmissionStore, formID string) ([]CompletedSubmission, error) {
	submissions, err := store.ListSubmissions(ctx, formID, formdomain.StatusCompleted)
	if err != nil {
		return nil, err
	}
	out := make([]CompletedSubmission, 0, len(submissions))
	for _, submission := range submissions {
		values, err := store.ListValues(ctx, submission.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CompletedSubmission{Submission: submission, Values: values})
	}
	return out, nil
}
