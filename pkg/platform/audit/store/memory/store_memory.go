package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "lendaudit/pkg/platform/audit"
)

// InMemoryStore keeps audit records in process. It backs tests and local runs
// without a database.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	failErr error
	now     func() time.Time
	written chan struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		now:     time.Now,
		written: make(chan struct{}, 1024),
	}
}

// FailWith makes every subsequent Insert return err. Pass nil to recover.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *InMemoryStore) Insert(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	if s.failErr != nil {
		err := s.failErr
		s.mu.Unlock()
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Timestamp = s.now()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	select {
	case s.written <- struct{}{}:
	default:
	}
	return nil
}

// List returns all records in insertion order.
func (s *InMemoryStore) List() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...)
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Written signals after each successful insert. Tests use it to wait for
// detached writes.
func (s *InMemoryStore) Written() <-chan struct{} {
	return s.written
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
