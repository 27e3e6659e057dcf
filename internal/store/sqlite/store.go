// Package sqlite persists the in-memory form store to a single SQLite table
// as JSON buckets, snapshotting the full state after every successful write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/awsmug/torro-forms-sub006/internal/store/memory"
	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interfaces.
var _ formdomain.Store = (*Store)(nil)

// Store wraps the in-memory store with SQLite-backed durability.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed store at path, hydrating
// state from any existing snapshot.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "forms.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketForms       = "forms"
	bucketContainers  = "containers"
	bucketElements    = "elements"
	bucketChoices     = "choices"
	bucketSubmissions = "submissions"
	bucketValues      = "values"
	bucketAggregates  = "aggregates"
)

var buckets = []string{bucketForms, bucketContainers, bucketElements, bucketChoices, bucketSubmissions, bucketValues, bucketAggregates}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	payloads := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	if err := decodeBucket(payloads, bucketForms, &snapshot.Forms); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketContainers, &snapshot.Containers); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketElements, &snapshot.Elements); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketChoices, &snapshot.Choices); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketSubmissions, &snapshot.Submissions); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketValues, &snapshot.Values); err != nil {
		return err
	}
	if err := decodeBucket(payloads, bucketAggregates, &snapshot.Aggregates); err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

func decodeBucket[T any](payloads map[string][]byte, bucket string, target *T) error {
	payload, ok := payloads[bucket]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		var data []byte
		switch bucket {
		case bucketForms:
			data, err = json.Marshal(snapshot.Forms)
		case bucketContainers:
			data, err = json.Marshal(snapshot.Containers)
		case bucketElements:
			data, err = json.Marshal(snapshot.Elements)
		case bucketChoices:
			data, err = json.Marshal(snapshot.Choices)
		case bucketSubmissions:
			data, err = json.Marshal(snapshot.Submissions)
		case bucketValues:
			data, err = json.Marshal(snapshot.Values)
		case bucketAggregates:
			data, err = json.Marshal(snapshot.Aggregates)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) afterWrite(err error) error {
	if err != nil {
		return err
	}
	return s.persist()
}

// CreateForm stores a form and snapshots state.
func (s *Store) CreateForm(ctx context.Context, form formdomain.Form) (formdomain.Form, error) {
	created, err := s.Store.CreateForm(ctx, form)
	return created, s.afterWrite(err)
}

// CreateContainer stores a container and snapshots state.
func (s *Store) CreateContainer(ctx context.Context, container formdomain.Container) (formdomain.Container, error) {
	created, err := s.Store.CreateContainer(ctx, container)
	return created, s.afterWrite(err)
}

// CreateElement stores an element and snapshots state.
func (s *Store) CreateElement(ctx context.Context, element formdomain.Element) (formdomain.Element, error) {
	created, err := s.Store.CreateElement(ctx, element)
	return created, s.afterWrite(err)
}

// CreateChoice stores a choice and snapshots state.
func (s *Store) CreateChoice(ctx context.Context, choice formdomain.ElementChoice) (formdomain.ElementChoice, error) {
	created, err := s.Store.CreateChoice(ctx, choice)
	return created, s.afterWrite(err)
}

// StartSubmission creates a draft submission and snapshots state.
func (s *Store) StartSubmission(ctx context.Context, submission formdomain.Submission) (formdomain.Submission, error) {
	created, err := s.Store.StartSubmission(ctx, submission)
	return created, s.afterWrite(err)
}

// AppendValue records a value and snapshots state.
func (s *Store) AppendValue(ctx context.Context, value formdomain.SubmissionValue) error {
	return s.afterWrite(s.Store.AppendValue(ctx, value))
}

// CompleteSubmission transitions the submission and snapshots state.
func (s *Store) CompleteSubmission(ctx context.Context, submissionID string) (formdomain.Submission, error) {
	sub, err := s.Store.CompleteSubmission(ctx, submissionID)
	return sub, s.afterWrite(err)
}

// FailSubmission transitions the submission and snapshots state.
func (s *Store) FailSubmission(ctx context.Context, submissionID string) (formdomain.Submission, error) {
	sub, err := s.Store.FailSubmission(ctx, submissionID)
	return sub, s.afterWrite(err)
}

// CompareAndSwapAggregate applies the CAS and snapshots state on success.
func (s *Store) CompareAndSwapAggregate(ctx context.Context, formID, evaluatorSlug string, expected uint64, data map[string]any) error {
	return s.afterWrite(s.Store.CompareAndSwapAggregate(ctx, formID, evaluatorSlug, expected, data))
}

// ReplaceAggregate overwrites the slice and snapshots state.
func (s *Store) ReplaceAggregate(ctx context.Context, formID, evaluatorSlug string, data map[string]any) error {
	return s.afterWrite(s.Store.ReplaceAggregate(ctx, formID, evaluatorSlug, data))
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
