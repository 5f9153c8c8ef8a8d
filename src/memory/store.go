package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store persists a session's facts and steps outside the process.
type Store interface {
	SaveFact(ctx context.Context, session string, f Fact) error
	SaveStep(ctx context.Context, session string, s Step) error
	Load(ctx context.Context, session string) (Snapshot, error)
}

// Restore rebuilds a Memory for session from store. The returned Memory keeps
// writing to store.
func Restore(ctx context.Context, store Store, session string, opts ...Option) (*Memory, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	snap, err := store.Load(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", session, err)
	}
	m := New(append(opts, WithStore(store, session))...)
	m.load(snap)
	return m, nil
}

// InMemoryStore keeps sessions in process memory. Useful for tests and for
// handing a finished session to a later planner run.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Snapshot)}
}

func (s *InMemoryStore) session(id string) *Snapshot {
	snap, ok := s.sessions[id]
	if !ok {
		snap = &Snapshot{}
		s.sessions[id] = snap
	}
	return snap
}

func (s *InMemoryStore) SaveFact(_ context.Context, session string, f Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.session(session)
	snap.Facts = append(snap.Facts, f)
	return nil
}

func (s *InMemoryStore) SaveStep(_ context.Context, session string, st Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.session(session)
	snap.Steps = append(snap.Steps, st)
	return nil
}

func (s *InMemoryStore) Load(_ context.Context, session string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.sessions[session]
	if !ok {
		return Snapshot{}, nil
	}
	return Snapshot{
		Facts: append([]Fact(nil), snap.Facts...),
		Steps: append([]Step(nil), snap.Steps...),
	}, nil
}

var _ Store = (*InMemoryStore)(nil)
