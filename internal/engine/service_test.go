package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/awsmug/torro-forms-sub006/internal/store/memory"
	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

func newTestEngine(t *testing.T, cfg Config, evaluators ...Evaluator) (*Engine, *memory.Store) {
	t.Helper()
	store := seedSurvey(t)
	registry, err := NewRegistry(evaluators...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng := New(cfg, store, registry)
	eng.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return eng, store
}

func TestCompleteSubmissionFoldsAggregates(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig(), countEvaluator{slug: "participation"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if _, err := eng.CompleteSubmission(ctx, sub.ID); err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
	}

	slice, err := store.GetAggregate(ctx, "f1", "participation")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if slice.Data["total"] != float64(3) {
		t.Fatalf("aggregate total = %v, want 3", slice.Data["total"])
	}
	if slice.Version != 3 {
		t.Fatalf("aggregate version = %d, want one bump per completion", slice.Version)
	}
}

func TestConcurrentCompletionsNeverLoseUpdates(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig(), countEvaluator{slug: "participation"})
	ctx := context.Background()

	const workers = 50
	ids := make([]string, workers)
	for i := range ids {
		sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ids[i] = sub.ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := eng.CompleteSubmission(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent completion: %v", err)
	}

	count, err := store.CountSubmissions(ctx, "f1", formdomain.StatusCompleted)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != workers {
		t.Fatalf("completed count = %d, want %d", count, workers)
	}
	slice, err := store.GetAggregate(ctx, "f1", "participation")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if slice.Data["total"] != float64(workers) {
		t.Fatalf("aggregate total = %v, want %d despite contention", slice.Data["total"], workers)
	}
	if len(eng.PendingRebuilds()) != 0 {
		t.Fatalf("pending rebuilds = %v, want none", eng.PendingRebuilds())
	}
}

func TestEvaluatorFailureDoesNotBlockCompletion(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig(),
		countEvaluator{slug: "participation"},
		faultyEvaluator{countEvaluator{slug: "faulty"}},
	)
	ctx := context.Background()

	sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := eng.CompleteSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("completion must succeed despite the failing evaluator: %v", err)
	}
	if done.Status != formdomain.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}

	// The healthy evaluator still folded the submission.
	slice, err := store.GetAggregate(ctx, "f1", "participation")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if slice.Data["total"] != float64(1) {
		t.Fatalf("healthy evaluator total = %v, want 1", slice.Data["total"])
	}

	pending := eng.PendingRebuilds()
	if slugs, ok := pending["f1"]; !ok || len(slugs) != 1 || slugs[0] != "faulty" {
		t.Fatalf("pending rebuilds = %v, want the faulty slice recorded", pending)
	}

	// Repair recomputes the failed slice and clears the record.
	if err := eng.RepairPending(ctx); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if len(eng.PendingRebuilds()) != 0 {
		t.Fatalf("pending rebuilds after repair = %v", eng.PendingRebuilds())
	}
	slice, err = store.GetAggregate(ctx, "f1", "faulty")
	if err != nil {
		t.Fatalf("get repaired aggregate: %v", err)
	}
	if slice.Data["total"] != float64(1) {
		t.Fatalf("repaired total = %v, want 1", slice.Data["total"])
	}
}

func TestQuerySubstitutesDefaultPageSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 2
	eng, _ := newTestEngine(t, cfg, countEvaluator{slug: "participation"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := eng.CompleteSubmission(ctx, sub.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	rows, total, err := eng.Query(ctx, "f1", QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("default paging: total=%d rows=%d, want 3/2", total, len(rows))
	}

	// A negative limit disables pagination.
	rows, total, err = eng.Query(ctx, "f1", QueryOptions{Limit: -1})
	if err != nil {
		t.Fatalf("query unpaged: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("unpaged: total=%d rows=%d, want 3/3", total, len(rows))
	}
}

func TestGetSchemaAndFormat(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig(), countEvaluator{slug: "participation"})
	ctx := context.Background()

	sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.AddValue(ctx, formdomain.SubmissionValue{SubmissionID: sub.ID, ElementID: "e-color", Value: "Red"}); err != nil {
		t.Fatalf("add value: %v", err)
	}
	if _, err := eng.CompleteSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	columns, err := eng.GetSchema(ctx, "f1")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	rows, _, err := eng.Query(ctx, "f1", QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	headers, formatted, err := eng.Format(ctx, "f1", rows, ModeDisplay)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	if len(headers) != len(columns) {
		t.Fatalf("headers %d, columns %d", len(headers), len(columns))
	}
	if len(formatted) != 1 || len(formatted[0]) != len(columns) {
		t.Fatalf("formatted rows misaligned with schema")
	}
	for i, col := range columns {
		if col.Slug == "element_e-color_c-red" && formatted[0][i] != "Yes" {
			t.Fatalf("display cell for selected choice = %q, want Yes", formatted[0][i])
		}
	}
}

func TestFailedSubmissionSkipsEvaluators(t *testing.T) {
	eng, store := newTestEngine(t, DefaultConfig(), countEvaluator{slug: "participation"})
	ctx := context.Background()

	sub, err := eng.StartSubmission(ctx, formdomain.Submission{FormID: "f1"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := eng.FailSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("fail: %v", err)
	}
	slice, err := store.GetAggregate(ctx, "f1", "participation")
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}
	if slice.Version != 0 {
		t.Fatalf("errored submission must not touch aggregates: %+v", slice)
	}
}

func TestMetricsRecorders(t *testing.T) {
	eng, _ := newTestEngine(t, DefaultConfig(), countEvaluator{slug: "participation"})
	ctx := context.Background()

	expvarRec := NewExpvarMetricsRecorder("")
	eng.SetMetricsRecorder(expvarRec)
	if _, _, err := eng.Query(ctx, "f1", QueryOptions{}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, _, err := eng.Query(ctx, "missing", QueryOptions{}); err == nil {
		t.Fatalf("query on unknown form must fail")
	}
	snap := expvarRec.Snapshot()
	if snap.Results["query"]["success"] != 1 || snap.Results["query"]["error"] != 1 {
		t.Fatalf("expvar results = %v, want one success and one error", snap.Results)
	}

	promRec, err := NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("prometheus recorder: %v", err)
	}
	eng.SetMetricsRecorder(promRec)
	if _, _, err := eng.Query(ctx, "f1", QueryOptions{}); err != nil {
		t.Fatalf("query with prometheus recorder: %v", err)
	}
}
