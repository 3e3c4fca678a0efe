package enrichment

import (
	"context"
	"errors"
	"sync"
)

// ErrTaskNotFound is returned by MarkDone/MarkFailed when no task with the
// given id exists. A task that exists but was never claimed is marked
// without error.
var ErrTaskNotFound = errors.New("enrichment: task not found")

// TaskStore is the pending-work queue enrichment workers claim batches
// from, grounded on the teacher's Producer/Consumer/Ack broker contract
// adapted to a claim-by-kind, batch-sized shape.
type TaskStore interface {
	Enqueue(ctx context.Context, t Task) error
	// Claim returns up to n pending tasks of kind, transitioning them to
	// StatusProcessing so a concurrent claim never returns the same task
	// twice.
	Claim(ctx context.Context, kind Kind, n int) ([]Task, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason error) error
}

// MemTaskStore is an in-process TaskStore backed by a mutex-guarded slice,
// the same "small fake standing in for a durable queue" shape as the
// teacher's MockBroker.
type MemTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

func NewMemTaskStore() *MemTaskStore {
	return &MemTaskStore{tasks: make(map[string]*Task)}
}

var _ TaskStore = (*MemTaskStore)(nil)

func (s *MemTaskStore) Enqueue(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Status = StatusPending
	if _, exists := s.tasks[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	cp := t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemTaskStore) Claim(ctx context.Context, kind Kind, n int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []Task
	for _, id := range s.order {
		if len(claimed) >= n {
			break
		}
		t := s.tasks[id]
		if t.Kind == kind && t.Status == StatusPending {
			t.Status = StatusProcessing
			claimed = append(claimed, *t)
		}
	}
	return claimed, nil
}

func (s *MemTaskStore) MarkDone(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Status = StatusDone
	t.Error = ""
	return nil
}

func (s *MemTaskStore) MarkFailed(ctx context.Context, id string, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Status = StatusFailed
	if reason != nil {
		t.Error = reason.Error()
	}
	return nil
}
