package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// stubConn emulates the minimal postgres surface the store touches: the
// snapshot table DDL, bucket upserts inside a transaction, and the hydration
// select. Buckets survive across opens so reload behavior is testable.
type stubConn struct {
	mu       sync.Mutex
	buckets  map[string][]byte
	failPing bool
	failExec bool
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	if strings.HasPrefix(trimmed, "INSERT INTO FORM_STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert expects 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket arg is %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload arg is %T", args[1].Value)
		}
		cp := make([]byte, len(payload))
		copy(cp, payload)
		c.mu.Lock()
		c.buckets[bucket] = cp
		c.mu.Unlock()
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(strings.ToLower(query), "from form_state") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	c.mu.Lock()
	rows := make([][]driver.Value, 0, len(c.buckets))
	for bucket, payload := range c.buckets {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		rows = append(rows, []driver.Value{bucket, cp})
	}
	c.mu.Unlock()
	return &stubRows{cols: []string{"bucket", "payload"}, rows: rows}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// stubOpen swaps sqlOpen for the test and restores it on cleanup.
func stubOpen(t *testing.T, conn *stubConn) {
	t.Helper()
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	original := sqlOpen
	sqlOpen = func(_, dsn string) (*sql.DB, error) { return sql.Open(name, dsn) }
	t.Cleanup(func() { sqlOpen = original })
}

func TestStoreSnapshotsAndReloads(t *testing.T) {
	ctx := context.Background()
	conn := &stubConn{buckets: make(map[string][]byte)}
	stubOpen(t, conn)

	store, err := NewStore(ctx, "postgres://stub/forms")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	form, err := store.CreateForm(ctx, formdomain.Form{Title: "Poll"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	container, err := store.CreateContainer(ctx, formdomain.Container{FormID: form.ID})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	element, err := store.CreateElement(ctx, formdomain.Element{
		ContainerID: container.ID, Type: formdomain.ElementTextfield, Label: "Answer", Analyzable: true,
	})
	if err != nil {
		t.Fatalf("create element: %v", err)
	}
	sub, err := store.StartSubmission(ctx, formdomain.Submission{FormID: form.ID})
	if err != nil {
		t.Fatalf("start submission: %v", err)
	}
	if err := store.AppendValue(ctx, formdomain.SubmissionValue{SubmissionID: sub.ID, ElementID: element.ID, Value: "42"}); err != nil {
		t.Fatalf("append value: %v", err)
	}
	if _, err := store.CompleteSubmission(ctx, sub.ID); err != nil {
		t.Fatalf("complete submission: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A fresh store over the same database hydrates from the snapshot.
	reloaded, err := NewStore(ctx, "postgres://stub/forms")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reloaded.Close() }()

	got, err := reloaded.GetForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("get form after reload: %v", err)
	}
	if got.Title != "Poll" {
		t.Fatalf("reloaded form title = %q", got.Title)
	}
	values, err := reloaded.ListValues(ctx, sub.ID)
	if err != nil {
		t.Fatalf("list values after reload: %v", err)
	}
	if len(values) != 1 || values[0].Value != "42" {
		t.Fatalf("reloaded values = %+v", values)
	}
}

func TestStorePingFailureSurfaces(t *testing.T) {
	conn := &stubConn{buckets: make(map[string][]byte), failPing: true}
	stubOpen(t, conn)
	if _, err := NewStore(context.Background(), "postgres://stub/forms"); err == nil {
		t.Fatalf("expected ping failure to propagate")
	}
}

func TestStoreWriteFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	conn := &stubConn{buckets: make(map[string][]byte)}
	stubOpen(t, conn)

	store, err := NewStore(ctx, "postgres://stub/forms")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	conn.failExec = true
	if _, err := store.CreateForm(ctx, formdomain.Form{Title: "Broken"}); err == nil {
		t.Fatalf("expected snapshot failure to surface from the write")
	}
}
