package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

func TestStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "forms.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	form, err := store.CreateForm(ctx, formdomain.Form{Title: "Feedback"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	container, err := store.CreateContainer(ctx, formdomain.Container{FormID: form.ID})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	element, err := store.CreateElement(ctx, formdomain.Element{
		ContainerID: container.ID, Type: formdomain.ElementTextfield, Label: "Comment", Analyzable: true,
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	sub, err := store.StartSubmission(ctx, formdomain.Submission{FormID: form.ID, UserID: "u1"})
	if err != nil {
		t.Fatalf("start submission: %v", err)
	}
	if err := store.AppendValue(ctx, formdomain.SubmissionValue{SubmissionID: sub.ID, ElementID: element.ID, Value: "fine"}); err != nil {
		t.Fatalf("append value: %v", err)
	}
	if _, err := store.CompleteSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("complete submission: %v", err)
	}
	if err := store.ReplaceAggregate(ctx, form.ID, "participation", map[string]any{"total": float64(1)}); err != nil {
		t.Fatalf("replace aggregate: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reloaded.Close() }()

	got, err := reloaded.GetForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("get form after reload: %v", err)
	}
	if got.Title != "Feedback" {
		t.Fatalf("reloaded form title = %q", got.Title)
	}
	values, err := reloaded.ListValues(ctx, sub.ID)
	if err != nil {
		t.Fatalf("list values after reload: %v", err)
	}
	if len(values) != 1 || values[0].Value != "fine" {
		t.Fatalf("reloaded values = %+v", values)
	}
	count, err := reloaded.CountSubmissions(ctx, form.ID, formdomain.StatusCompleted)
	if err != nil {
		t.Fatalf("count after reload: %v", err)
	}
	if count != 1 {
		t.Fatalf("completed count after reload = %d, want 1", count)
	}
	slice, err := reloaded.GetAggregate(ctx, form.ID, "participation")
	if err != nil {
		t.Fatalf("aggregate after reload: %v", err)
	}
	if slice.Version != 1 || slice.Data["total"] != float64(1) {
		t.Fatalf("reloaded aggregate = %+v", slice)
	}
}

func TestStoreEnforcesInvariantsThroughSnapshotting(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "forms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	form, err := store.CreateForm(ctx, formdomain.Form{Title: "Survey"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	container, err := store.CreateContainer(ctx, formdomain.Container{FormID: form.ID})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	element, err := store.CreateElement(ctx, formdomain.Element{
		ContainerID: container.ID, Type: formdomain.ElementTextfield, Label: "Name", Analyzable: true,
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	sub, err := store.StartSubmission(ctx, formdomain.Submission{FormID: form.ID})
	if err != nil {
		t.Fatalf("start submission: %v", err)
	}
	if err := store.AppendValue(ctx, formdomain.SubmissionValue{SubmissionID: sub.ID, ElementID: element.ID, Value: "a"}); err != nil {
		t.Fatalf("append value: %v", err)
	}
	err = store.AppendValue(ctx, formdomain.SubmissionValue{SubmissionID: sub.ID, ElementID: element.ID, Value: "b"})
	if !errors.Is(err, formdomain.ErrValueExists) {
		t.Fatalf("duplicate write: got %v, want ErrValueExists", err)
	}
}

func TestStoreDefaultsPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("open store with default path: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Path() != "forms.db" {
		t.Fatalf("default path = %q, want forms.db", store.Path())
	}
}
