package store

import (
	"context"
	"sync"

	"claimguard/pkg/platform/sentinel"
	"claimguard/pkg/requestcontext"
)

// InMemoryStore keeps every version in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Put(ctx context.Context, e Entity) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	k := key(e.EntityKind(), e.EntityID())

	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.records[k]
	if e.EntityKind().WriteOnce() && len(versions) > 0 {
		return sentinel.ErrConflict
	}
	s.records[k] = append(versions, Record{
		Kind:      e.EntityKind(),
		ID:        e.EntityID(),
		Version:   len(versions) + 1,
		Body:      body,
		CreatedAt: requestcontext.Now(ctx),
	})
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, kind Kind, id string, dest any) error {
	s.mu.RLock()
	versions := s.records[key(kind, id)]
	s.mu.RUnlock()
	if len(versions) == 0 {
		return sentinel.ErrNotFound
	}
	return decode(kind, id, versions[len(versions)-1].Body, dest)
}

func (s *InMemoryStore) History(_ context.Context, kind Kind, id string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.records[key(kind, id)]
	if len(versions) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return append([]Record(nil), versions...), nil
}

// Ping always succeeds; it lets the health prober treat every backend alike.
func (s *InMemoryStore) Ping(context.Context) error { return nil }

// Clear drops all records.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]Record)
}

var _ RecordStore = (*InMemoryStore)(nil)
