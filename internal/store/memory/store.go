// Package memory provides an in-memory implementation of the formdomain
// store used for tests and ephemeral environments. It is the reference
// implementation whose semantics the durable adapters mirror.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/awsmug/torro-forms-sub006/pkg/formdomain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interfaces.
var _ formdomain.Store = (*Store)(nil)

type state struct {
	forms       map[string]formdomain.Form
	containers  map[string]formdomain.Container
	elements    map[string]formdomain.Element
	choices     map[string]formdomain.ElementChoice
	submissions map[string]formdomain.Submission
	values      map[string][]formdomain.SubmissionValue
	aggregates  map[string]formdomain.AggregateSlice
}

// Snapshot captures a point-in-time clone of the store state. Durable
// adapters serialize it as JSON buckets.
type Snapshot struct {
	Forms       map[string]formdomain.Form              `json:"forms"`
	Containers  map[string]formdomain.Container         `json:"containers"`
	Elements    map[string]formdomain.Element           `json:"elements"`
	Choices     map[string]formdomain.ElementChoice     `json:"choices"`
	Submissions map[string]formdomain.Submission        `json:"submissions"`
	Values      map[string][]formdomain.SubmissionValue `json:"values"`
	Aggregates  map[string]formdomain.AggregateSlice    `json:"aggregates"`
}

func newState() state {
	return state{
		forms:       make(map[string]formdomain.Form),
		containers:  make(map[string]formdomain.Container),
		elements:    make(map[string]formdomain.Element),
		choices:     make(map[string]formdomain.ElementChoice),
		submissions: make(map[string]formdomain.Submission),
		values:      make(map[string][]formdomain.SubmissionValue),
		aggregates:  make(map[string]formdomain.AggregateSlice),
	}
}

// Store implements formdomain.Store backed by process memory.
type Store struct {
	mu    sync.RWMutex
	state state

	// formMu serializes submission completions per form so higher layers can
	// rely on single-writer discipline for aggregate updates.
	formMuMu sync.Mutex
	formMu   map[string]*sync.Mutex

	now func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state:  newState(),
		formMu: make(map[string]*sync.Mutex),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the completion timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func newID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("memory store id generation: %w", err))
	}
	return prefix + "-" + hex.EncodeToString(buf)
}

func aggregateKey(formID, slug string) string { return formID + "/" + slug }

// FormLock returns the mutex serializing completions for one form.
func (s *Store) FormLock(formID string) *sync.Mutex {
	s.formMuMu.Lock()
	defer s.formMuMu.Unlock()
	mu, ok := s.formMu[formID]
	if !ok {
		mu = &sync.Mutex{}
		s.formMu[formID] = mu
	}
	return mu
}

// CreateForm stores a new form, generating an id when absent.
func (s *Store) CreateForm(_ context.Context, form formdomain.Form) (formdomain.Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if form.ID == "" {
		form.ID = newID("form")
	}
	if _, exists := s.state.forms[form.ID]; exists {
		return formdomain.Form{}, fmt.Errorf("form %s already exists", form.ID)
	}
	s.state.forms[form.ID] = form
	return form, nil
}

// CreateContainer stores an ordered sub-page of a form.
func (s *Store) CreateContainer(_ context.Context, container formdomain.Container) (formdomain.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.forms[container.FormID]; !ok {
		return formdomain.Container{}, fmt.Errorf("container form %s: %w", container.FormID, formdomain.ErrFormNotFound)
	}
	if container.ID == "" {
		container.ID = newID("container")
	}
	s.state.containers[container.ID] = container
	return container, nil
}

// CreateElement stores an element inside an existing container.
func (s *Store) CreateElement(_ context.Context, element formdomain.Element) (formdomain.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.containers[element.ContainerID]; !ok {
		return formdomain.Element{}, fmt.Errorf("element container %s not found", element.ContainerID)
	}
	if element.ID == "" {
		element.ID = newID("element")
	}
	s.state.elements[element.ID] = element
	return element, nil
}

// CreateChoice stores a selectable value for a choice element.
func (s *Store) CreateChoice(_ context.Context, choice formdomain.ElementChoice) (formdomain.ElementChoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.elements[choice.ElementID]; !ok {
		return formdomain.ElementChoice{}, fmt.Errorf("choice element %s: %w", choice.ElementID, formdomain.ErrElementNotFound)
	}
	if choice.ID == "" {
		choice.ID = newID("choice")
	}
	if choice.Field == "" {
		choice.Field = formdomain.DefaultChoiceField
	}
	s.state.choices[choice.ID] = choice
	return choice, nil
}

// GetForm returns the form or ErrFormNotFound.
func (s *Store) GetForm(_ context.Context, formID string) (formdomain.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	form, ok := s.state.forms[formID]
	if !ok {
		return formdomain.Form{}, fmt.Errorf("form %s: %w", formID, formdomain.ErrFormNotFound)
	}
	return form, nil
}

// ListElements returns the form's elements in (container sort, element sort)
// order with container order breaking ties by container id.
func (s *Store) ListElements(_ context.Context, formID string) ([]formdomain.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.forms[formID]; !ok {
		return nil, fmt.Errorf("form %s: %w", formID, formdomain.ErrFormNotFound)
	}
	type ordered struct {
		containerSort int
		containerID   string
		element       formdomain.Element
	}
	var out []ordered
	for _, element := range s.state.elements {
		container, ok := s.state.containers[element.ContainerID]
		if !ok || container.FormID != formID {
			continue
		}
		out = append(out, ordered{containerSort: container.Sort, containerID: container.ID, element: element})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].containerSort != out[j].containerSort {
			return out[i].containerSort < out[j].containerSort
		}
		if out[i].containerID != out[j].containerID {
			return out[i].containerID < out[j].containerID
		}
		if out[i].element.Sort != out[j].element.Sort {
			return out[i].element.Sort < out[j].element.Sort
		}
		return out[i].element.ID < out[j].element.ID
	})
	elements := make([]formdomain.Element, len(out))
	for i, o := range out {
		elements[i] = o.element
	}
	return elements, nil
}

// ListChoices returns an element's choices in (field, sort) order.
func (s *Store) ListChoices(_ context.Context, elementID string) ([]formdomain.ElementChoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var choices []formdomain.ElementChoice
	for _, choice := range s.state.choices {
		if choice.ElementID == elementID {
			choices = append(choices, choice)
		}
	}
	sort.Slice(choices, func(i, j int) bool {
		if choices[i].Field != choices[j].Field {
			return choices[i].Field < choices[j].Field
		}
		if choices[i].Sort != choices[j].Sort {
			return choices[i].Sort < choices[j].Sort
		}
		return choices[i].ID < choices[j].ID
	})
	return choices, nil
}

// ListSubmissions returns the form's submissions with the given status
// ordered by timestamp ascending, breaking ties by submission id.
func (s *Store) ListSubmissions(_ context.Context, formID string, status formdomain.SubmissionStatus) ([]formdomain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.forms[formID]; !ok {
		return nil, fmt.Errorf("form %s: %w", formID, formdomain.ErrFormNotFound)
	}
	var out []formdomain.Submission
	for _, sub := range s.state.submissions {
		if sub.FormID == formID && sub.Status == status {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountSubmissions counts the form's submissions with the given status.
func (s *Store) CountSubmissions(_ context.Context, formID string, status formdomain.SubmissionStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.forms[formID]; !ok {
		return 0, fmt.Errorf("form %s: %w", formID, formdomain.ErrFormNotFound)
	}
	count := 0
	for _, sub := range s.state.submissions {
		if sub.FormID == formID && sub.Status == status {
			count++
		}
	}
	return count, nil
}

// ListValues returns all values recorded for one submission in insertion order.
func (s *Store) ListValues(_ context.Context, submissionID string) ([]formdomain.SubmissionValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.state.submissions[submissionID]; !ok {
		return nil, fmt.Errorf("submission %s: %w", submissionID, formdomain.ErrSubmissionNotFound)
	}
	values := s.state.values[submissionID]
	out := make([]formdomain.SubmissionValue, len(values))
	copy(out, values)
	return out, nil
}

// StartSubmission creates a draft submission for the form.
func (s *Store) StartSubmission(_ context.Context, submission formdomain.Submission) (formdomain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.forms[submission.FormID]; !ok {
		return formdomain.Submission{}, fmt.Errorf("submission form %s: %w", submission.FormID, formdomain.ErrFormNotFound)
	}
	if submission.ID == "" {
		submission.ID = newID("submission")
	}
	if _, exists := s.state.submissions[submission.ID]; exists {
		return formdomain.Submission{}, fmt.Errorf("submission %s already exists", submission.ID)
	}
	submission.Status = formdomain.StatusDraft
	if submission.Timestamp.IsZero() {
		submission.Timestamp = s.now()
	}
	s.state.submissions[submission.ID] = submission
	return submission, nil
}

// AppendValue records one value on a draft submission, enforcing write-once
// and same-form invariants.
func (s *Store) AppendValue(_ context.Context, value formdomain.SubmissionValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.submissions[value.SubmissionID]
	if !ok {
		return fmt.Errorf("submission %s: %w", value.SubmissionID, formdomain.ErrSubmissionNotFound)
	}
	if sub.Status.Terminal() {
		return fmt.Errorf("submission %s: %w", sub.ID, formdomain.ErrSubmissionClosed)
	}
	element, ok := s.state.elements[value.ElementID]
	if !ok {
		return fmt.Errorf("element %s: %w", value.ElementID, formdomain.ErrElementNotFound)
	}
	container, ok := s.state.containers[element.ContainerID]
	if !ok || container.FormID != sub.FormID {
		return fmt.Errorf("element %s on submission %s: %w", element.ID, sub.ID, formdomain.ErrFormMismatch)
	}
	if value.Field == "" {
		value.Field = formdomain.DefaultChoiceField
	}
	for _, existing := range s.state.values[sub.ID] {
		if existing.ElementID != value.ElementID || existing.Field != value.Field {
			continue
		}
		if !element.Multivalue {
			return fmt.Errorf("element %s field %s: %w", element.ID, value.Field, formdomain.ErrValueExists)
		}
		if existing.Value == value.Value {
			return fmt.Errorf("element %s choice %q: %w", element.ID, value.Value, formdomain.ErrValueExists)
		}
	}
	s.state.values[sub.ID] = append(s.state.values[sub.ID], value)
	return nil
}

func (s *Store) transition(submissionID string, next formdomain.SubmissionStatus) (formdomain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.submissions[submissionID]
	if !ok {
		return formdomain.Submission{}, fmt.Errorf("submission %s: %w", submissionID, formdomain.ErrSubmissionNotFound)
	}
	if !sub.Status.CanTransition(next) {
		return formdomain.Submission{}, fmt.Errorf("submission %s %s -> %s: %w", sub.ID, sub.Status, next, formdomain.ErrInvalidTransition)
	}
	sub.Status = next
	sub.Timestamp = s.now()
	s.state.submissions[submissionID] = sub
	return sub, nil
}

// CompleteSubmission transitions draft -> completed and stamps the
// completion time. Completions of the same form serialize through the form's
// lock; callers spanning completion plus follow-up work can hold the same
// lock via FormLock.
func (s *Store) CompleteSubmission(_ context.Context, submissionID string) (formdomain.Submission, error) {
	s.mu.RLock()
	sub, ok := s.state.submissions[submissionID]
	s.mu.RUnlock()
	if !ok {
		return formdomain.Submission{}, fmt.Errorf("submission %s: %w", submissionID, formdomain.ErrSubmissionNotFound)
	}
	lock := s.FormLock(sub.FormID)
	lock.Lock()
	defer lock.Unlock()
	return s.transition(submissionID, formdomain.StatusCompleted)
}

// FailSubmission transitions draft -> errored.
func (s *Store) FailSubmission(_ context.Context, submissionID string) (formdomain.Submission, error) {
	return s.transition(submissionID, formdomain.StatusErrored)
}

// GetAggregate returns the evaluator's slice, zero-valued when missing.
func (s *Store) GetAggregate(_ context.Context, formID, evaluatorSlug string) (formdomain.AggregateSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slice := s.state.aggregates[aggregateKey(formID, evaluatorSlug)]
	return formdomain.AggregateSlice{Data: slice.Clone(), Version: slice.Version}, nil
}

// CompareAndSwapAggregate replaces slice data iff the version matches.
func (s *Store) CompareAndSwapAggregate(_ context.Context, formID, evaluatorSlug string, expected uint64, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aggregateKey(formID, evaluatorSlug)
	current := s.state.aggregates[key]
	if current.Version != expected {
		return fmt.Errorf("aggregate %s at version %d, expected %d: %w", key, current.Version, expected, formdomain.ErrVersionConflict)
	}
	s.state.aggregates[key] = formdomain.AggregateSlice{Data: formdomain.CloneAggregateData(data), Version: current.Version + 1}
	return nil
}

// ReplaceAggregate atomically overwrites the slice regardless of version,
// still bumping the version so concurrent CAS writers notice the swap.
func (s *Store) ReplaceAggregate(_ context.Context, formID, evaluatorSlug string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aggregateKey(formID, evaluatorSlug)
	current := s.state.aggregates[key]
	s.state.aggregates[key] = formdomain.AggregateSlice{Data: formdomain.CloneAggregateData(data), Version: current.Version + 1}
	return nil
}

// ExportState returns a deep copy of the current state for durable snapshots.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Forms:       make(map[string]formdomain.Form, len(s.state.forms)),
		Containers:  make(map[string]formdomain.Container, len(s.state.containers)),
		Elements:    make(map[string]formdomain.Element, len(s.state.elements)),
		Choices:     make(map[string]formdomain.ElementChoice, len(s.state.choices)),
		Submissions: make(map[string]formdomain.Submission, len(s.state.submissions)),
		Values:      make(map[string][]formdomain.SubmissionValue, len(s.state.values)),
		Aggregates:  make(map[string]formdomain.AggregateSlice, len(s.state.aggregates)),
	}
	for k, v := range s.state.forms {
		snap.Forms[k] = v
	}
	for k, v := range s.state.containers {
		snap.Containers[k] = v
	}
	for k, v := range s.state.elements {
		snap.Elements[k] = v
	}
	for k, v := range s.state.choices {
		snap.Choices[k] = v
	}
	for k, v := range s.state.submissions {
		snap.Submissions[k] = v
	}
	for k, v := range s.state.values {
		cp := make([]formdomain.SubmissionValue, len(v))
		copy(cp, v)
		snap.Values[k] = cp
	}
	for k, v := range s.state.aggregates {
		snap.Aggregates[k] = formdomain.AggregateSlice{Data: v.Clone(), Version: v.Version}
	}
	return snap
}

// ImportState replaces the store state from a snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for k, v := range snap.Forms {
		next.forms[k] = v
	}
	for k, v := range snap.Containers {
		next.containers[k] = v
	}
	for k, v := range snap.Elements {
		next.elements[k] = v
	}
	for k, v := range snap.Choices {
		next.choices[k] = v
	}
	for k, v := range snap.Submissions {
		next.submissions[k] = v
	}
	for k, v := range snap.Values {
		cp := make([]formdomain.SubmissionValue, len(v))
		copy(cp, v)
		next.values[k] = cp
	}
	for k, v := range snap.Aggregates {
		next.aggregates[k] = formdomain.AggregateSlice{Data: v.Clone(), Version: v.Version}
	}
	s.state = next
}
