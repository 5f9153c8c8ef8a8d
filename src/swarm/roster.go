package swarm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/agentforum/src/bus"
)

// Roster keeps workers in registration order, which is also speaking order.
type Roster struct {
	mu      sync.RWMutex
	workers []*Worker
	byID    map[string]*Worker
}

func NewRoster(workers ...*Worker) (*Roster, error) {
	r := &Roster{byID: make(map[string]*Worker)}
	for _, w := range workers {
		if err := r.Add(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers w. Empty and duplicate ids are rejected.
func (r *Roster) Add(w *Worker) error {
	if w == nil {
		return fmt.Errorf("worker is nil")
	}
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("worker id is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[w.ID]; exists {
		return fmt.Errorf("worker %s already registered", w.ID)
	}
	r.byID[w.ID] = w
	r.workers = append(r.workers, w)
	return nil
}

func (r *Roster) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// Workers returns the workers in registration order.
func (r *Roster) Workers() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Worker(nil), r.workers...)
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Join subscribes every worker's inbox to b under its id.
func (r *Roster) Join(b *bus.MessageBus) {
	for _, w := range r.Workers() {
		b.Subscribe(w.ID, w)
	}
}
