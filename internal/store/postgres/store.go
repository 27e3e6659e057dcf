// Package postgres provides a Postgres-backed form store that mirrors the
// in-memory semantics, snapshotting state as JSONB buckets.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/awsmug/torro-forms-sub006/internal/store/memory"
	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interfaces.
var _ formdomain.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/torroforms?sslmode=disable"
)

// sqlOpen is swapped by tests to stub the database handle.
var sqlOpen = sql.Open

// Store persists form state to Postgres while reusing the in-memory
// implementation for reads and invariant enforcement.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sqlOpen(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS form_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

var postgresBuckets = []string{"forms", "containers", "elements", "choices", "submissions", "values", "aggregates"}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM form_state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := map[string]any{
		"forms":       &snapshot.Forms,
		"containers":  &snapshot.Containers,
		"elements":    &snapshot.Elements,
		"choices":     &snapshot.Choices,
		"submissions": &snapshot.Submissions,
		"values":      &snapshot.Values,
		"aggregates":  &snapshot.Aggregates,
	}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range postgresBuckets {
		var data []byte
		switch bucket {
		case "forms":
			data, err = json.Marshal(snapshot.Forms)
		case "containers":
			data, err = json.Marshal(snapshot.Containers)
		case "elements":
			data, err = json.Marshal(snapshot.Elements)
		case "choices":
			data, err = json.Marshal(snapshot.Choices)
		case "submissions":
			data, err = json.Marshal(snapshot.Submissions)
		case "values":
			data, err = json.Marshal(snapshot.Values)
		case "aggregates":
			data, err = json.Marshal(snapshot.Aggregates)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO form_state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) afterWrite(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return s.persist(ctx)
}

// CreateForm stores a form and snapshots state.
func (s *Store) CreateForm(ctx context.Context, form formdomain.Form) (formdomain.Form, error) {
	created, err := s.Store.CreateForm(ctx, form)
	return created, s.afterWrite(ctx, err)
}

// CreateContainer stores a container and snapshots state.
func (s *Store) CreateContainer(ctx context.Context, container formdomain.Container) (formdomain.Container, error) {
	created, err := s.Store.CreateContainer(ctx, container)
	return created, s.afterWrite(ctx, err)
}

// CreateElement stores an element and snapshots state.
func (s *Store) CreateElement(ctx context.Context, element formdomain.Element) (formdomain.Element, error) {
	created, err := s.Store.CreateElement(ctx, element)
	return created, s.afterWrite(ctx, err)
}

// CreateChoice stores a choice and snapshots state.
func (s *Store) CreateChoice(ctx context.Context, choice formdomain.ElementChoice) (formdomain.ElementChoice, error) {
	created, err := s.Store.CreateChoice(ctx, choice)
	return created, s.afterWrite(ctx, err)
}

// StartSubmission creates a draft submission and snapshots state.
func (s *Store) StartSubmission(ctx context.Context, submission formdomain.Submission) (formdomain.Submission, error) {
	created, err := s.Store.StartSubmission(ctx, submission)
	return created, s.afterWrite(ctx, err)
}

// AppendValue records a value and snapshots state.
func (s *Store) AppendValue(ctx context.Context, value formdomain.SubmissionValue) error {
	return s.afterWrite(ctx, s.Store.AppendValue(ctx, value))
}

// CompleteSubmission transitions the submission and snapshots state.
func (s *Store) CompleteSubmission(ctx context.Context, submissionID string) (formdomain.Submission, error) {
	sub, err := s.Store.CompleteSubmission(ctx, submissionID)
	return sub, s.afterWrite(ctx, err)
}

// FailSubmission transitions the submission and snapshots state.
func (s *Store) FailSubmission(ctx context.Context, submissionID string) (formdomain.Submission, error) {
	sub, err := s.Store.FailSubmission(ctx, submissionID)
	return sub, s.afterWrite(ctx, err)
}

// CompareAndSwapAggregate applies the CAS and snapshots state on success.
func (s *Store) CompareAndSwapAggregate(ctx context.Context, formID, evaluatorSlug string, expected uint64, data map[string]any) error {
	return s.afterWrite(ctx, s.Store.CompareAndSwapAggregate(ctx, formID, evaluatorSlug, expected, data))
}

// ReplaceAggregate overwrites the slice and snapshots state.
func (s *Store) ReplaceAggregate(ctx context.Context, formID, evaluatorSlug string, data map[string]any) error {
	return s.afterWrite(ctx, s.Store.ReplaceAggregate(ctx, formID, evaluatorSlug, data))
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
