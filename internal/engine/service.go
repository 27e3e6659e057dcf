package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// casMaxAttempts bounds the optimistic retry loop for aggregate updates.
// Every conflict round makes global progress (one writer wins), so the bound
// is only reached under pathological contention.
const casMaxAttempts = 256

// AggregateResult is the outcome of an evaluation read: the aggregate state,
// the strategy that served it, and the evaluator's render-ready view.
type AggregateResult struct {
	FormID    string         `json:"form_id"`
	Evaluator string         `json:"evaluator"`
	Source    ResultSource   `json:"source"`
	State     map[string]any `json:"state"`
	View      ResultView     `json:"view"`
}

// Engine is the facade exposed to presentation and export layers. It wires
// the pivot builder, query executor, formatter, evaluator registry, and
// strategy selector over one store.
type Engine struct {
	cfg       Config
	store     formdomain.Store
	registry  *Registry
	builder   *Builder
	formatter *Formatter
	selector  *Selector
	metrics   MetricsRecorder
	logger    *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]map[string]struct{}
}

// New constructs an engine from a config, store, and evaluator registry.
func New(cfg Config, store formdomain.Store, registry *Registry) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		builder:   NewBuilder(store),
		formatter: NewFormatter(cfg.Locale),
		selector:  NewSelector(store, registry, cfg.Breakpoint, cfg.RebuildTimeout),
		metrics:   NopMetricsRecorder{},
		logger:    slog.Default(),
		pending:   make(map[string]map[string]struct{}),
	}
}

// SetMetricsRecorder wires a metrics recorder observed around every operation.
func (e *Engine) SetMetricsRecorder(rec MetricsRecorder) {
	if rec != nil {
		e.metrics = rec
	}
}

// SetLogger overrides the logger used for write-path diagnostics.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Formatter exposes the engine's formatter for rule registration.
func (e *Engine) Formatter() *Formatter { return e.formatter }

// Store exposes the underlying store, primarily for seeding.
func (e *Engine) Store() formdomain.Store { return e.store }

func (e *Engine) observe(ctx context.Context, operation string, start time.Time, err error) {
	e.metrics.Observe(ctx, operation, err == nil, time.Since(start))
}

// GetSchema returns the form's ordered pivot column schema.
func (e *Engine) GetSchema(ctx context.Context, formID string) (columns []Column, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "get_schema", start, err) }()
	pivot, err := e.builder.Build(ctx, formID, nil)
	if err != nil {
		return nil, err
	}
	return pivot.Schema(), nil
}

// AddColumn injects a computed column into the form's pivot schema without
// modifying the engine. Injected columns share the collision rule with
// element-derived columns.
func (e *Engine) AddColumn(formID, slug, title string, resolver ColumnResolver) {
	e.builder.AddColumn(formID, slug, title, resolver)
}

// Query returns one page of the form's pivot rows plus the total matching
// count. A zero limit substitutes the configured page size; a negative limit
// disables pagination.
func (e *Engine) Query(ctx context.Context, formID string, opts QueryOptions) (rows []Row, total int, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "query", start, err) }()
	pivot, err := e.builder.Build(ctx, formID, nil)
	if err != nil {
		return nil, 0, err
	}
	if opts.Limit == 0 {
		opts.Limit = e.cfg.PageSize
	}
	rows, total = pivot.Query(opts)
	return rows, total, nil
}

// Format renders rows of the form's pivot for the target mode, returning the
// human column headers alongside the rendered rows.
func (e *Engine) Format(ctx context.Context, formID string, rows []Row, mode Mode) (headers []string, formatted []FormattedRow, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "format", start, err) }()
	pivot, err := e.builder.Build(ctx, formID, nil)
	if err != nil {
		return nil, nil, err
	}
	schema := pivot.Schema()
	return e.formatter.Headers(schema), e.formatter.Format(schema, rows, mode), nil
}

// Evaluate returns one evaluator's results for the form, choosing the read
// strategy by submission volume.
func (e *Engine) Evaluate(ctx context.Context, formID, evaluatorSlug string) (result AggregateResult, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "evaluate", start, err) }()
	state, source, err := e.selector.Results(ctx, formID, evaluatorSlug)
	if err != nil {
		return AggregateResult{}, err
	}
	ev, err := e.registry.Get(evaluatorSlug)
	if err != nil {
		return AggregateResult{}, err
	}
	form, err := loadFormContext(ctx, e.store, formID)
	if err != nil {
		return AggregateResult{}, err
	}
	view, err := ev.ShowResults(state, form)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("show results %s on form %s: %w", evaluatorSlug, formID, err)
	}
	return AggregateResult{FormID: formID, Evaluator: evaluatorSlug, Source: source, State: state, View: view}, nil
}

// RebuildAggregate recomputes and atomically replaces one evaluator's
// aggregate slice from a full submission scan.
func (e *Engine) RebuildAggregate(ctx context.Context, formID, evaluatorSlug string) (err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "rebuild_aggregate", start, err) }()
	if err = e.selector.Rebuild(ctx, formID, evaluatorSlug); err != nil {
		return err
	}
	e.clearPending(formID, evaluatorSlug)
	return nil
}

// StartSubmission creates a draft submission for the form.
func (e *Engine) StartSubmission(ctx context.Context, submission formdomain.Submission) (formdomain.Submission, error) {
	return e.store.StartSubmission(ctx, submission)
}

// AddValue records one value on a draft submission.
func (e *Engine) AddValue(ctx context.Context, value formdomain.SubmissionValue) error {
	return e.store.AppendValue(ctx, value)
}

// FailSubmission transitions a draft submission to errored. No evaluator
// runs for errored submissions.
func (e *Engine) FailSubmission(ctx context.Context, submissionID string) (formdomain.Submission, error) {
	return e.store.FailSubmission(ctx, submissionID)
}

// CompleteSubmission transitions the submission to completed, atomically
// persisting its values, then folds it into every registered evaluator's
// aggregate. Evaluator failures never roll the completion back; they are
// recorded for a later rebuild.
func (e *Engine) CompleteSubmission(ctx context.Context, submissionID string) (sub formdomain.Submission, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, "complete_submission", start, err) }()
	sub, err = e.store.CompleteSubmission(ctx, submissionID)
	if err != nil {
		return formdomain.Submission{}, err
	}
	e.builder.Invalidate(sub.FormID)

	values, err := e.store.ListValues(ctx, sub.ID)
	if err != nil {
		// The submission is already completed; treat the read failure like an
		// evaluator failure and leave repair to rebuilds.
		e.logger.Error("load values for completed submission", "submission", sub.ID, "error", err)
		values = nil
	}
	form, formErr := loadFormContext(ctx, e.store, sub.FormID)
	if formErr != nil {
		e.logger.Error("load form context for completed submission", "form", sub.FormID, "error", formErr)
		for _, ev := range e.registry.List() {
			e.markPending(sub.FormID, ev.Slug())
		}
		return sub, nil
	}
	completed := CompletedSubmission{Submission: sub, Values: values}
	for _, ev := range e.registry.List() {
		if updateErr := e.applySingle(ctx, ev, sub.FormID, completed, form); updateErr != nil {
			e.logger.Error("evaluator update failed", "evaluator", ev.Slug(), "form", sub.FormID, "submission", sub.ID, "error", updateErr)
			e.markPending(sub.FormID, ev.Slug())
		}
	}
	return sub, nil
}

// applySingle folds one completed submission into an evaluator's slice using
// optimistic compare-and-swap with bounded retry, preserving the monotonic
// aggregate invariant under concurrent completions.
func (e *Engine) applySingle(ctx context.Context, ev Evaluator, formID string, submission CompletedSubmission, form FormContext) error {
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		slice, err := e.store.GetAggregate(ctx, formID, ev.Slug())
		if err != nil {
			return err
		}
		state := slice.Clone()
		if state == nil {
			state = map[string]any{}
		}
		next, err := ev.EvaluateSingle(state, submission, form)
		if err != nil {
			return err
		}
		err = e.store.CompareAndSwapAggregate(ctx, formID, ev.Slug(), slice.Version, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, formdomain.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("evaluator %s on form %s: cas retries exhausted", ev.Slug(), formID)
}

func (e *Engine) markPending(formID, evaluatorSlug string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if e.pending[formID] == nil {
		e.pending[formID] = make(map[string]struct{})
	}
	e.pending[formID][evaluatorSlug] = struct{}{}
}

func (e *Engine) clearPending(formID, evaluatorSlug string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if slugs, ok := e.pending[formID]; ok {
		delete(slugs, evaluatorSlug)
		if len(slugs) == 0 {
			delete(e.pending, formID)
		}
	}
}

// PendingRebuilds lists evaluator slices whose write path failed and that
// await a rebuild, keyed by form id.
func (e *Engine) PendingRebuilds() map[string][]string {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	out := make(map[string][]string, len(e.pending))
	for formID, slugs := range e.pending {
		list := make([]string, 0, len(slugs))
		for slug := range slugs {
			list = append(list, slug)
		}
		sort.Strings(list)
		out[formID] = list
	}
	return out
}

// RepairPending rebuilds every recorded failed slice, clearing entries that
// rebuild successfully.
func (e *Engine) RepairPending(ctx context.Context) error {
	var firstErr error
	for formID, slugs := range e.PendingRebuilds() {
		for _, slug := range slugs {
			if err := e.RebuildAggregate(ctx, formID, slug); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
	}
	return firstErr
}
