// Package memory is the planner's working memory: an append-only fact log in
// which later writes shadow earlier ones, plus the ordered step history.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Importance marks how much weight a fact carries in prompts and summaries.
type Importance string

const (
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// ParseImportance maps free-form model output onto an Importance. Anything
// that is not recognisably "high" is normal.
func ParseImportance(s string) Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "important", "critical":
		return ImportanceHigh
	default:
		return ImportanceNormal
	}
}

// Fact is one remembered key/value pair. Step is the index the next step would
// receive at the time the fact was written.
type Fact struct {
	Key        string     `json:"key" bson:"key"`
	Value      string     `json:"value" bson:"value"`
	Importance Importance `json:"importance" bson:"importance"`
	Step       int        `json:"step" bson:"step"`
	At         time.Time  `json:"at" bson:"at"`
}

// Step records one executed action and what it produced.
type Step struct {
	Index  int       `json:"index" bson:"index"`
	Action string    `json:"action" bson:"action"`
	Result string    `json:"result" bson:"result"`
	At     time.Time `json:"at" bson:"at"`
}

// Snapshot is an immutable copy of a Memory.
type Snapshot struct {
	Facts []Fact `json:"facts"`
	Steps []Step `json:"steps"`
}

// Latest returns the shadowing value for key within the snapshot.
func (s Snapshot) Latest(key string) (string, bool) {
	for i := len(s.Facts) - 1; i >= 0; i-- {
		if s.Facts[i].Key == key {
			return s.Facts[i].Value, true
		}
	}
	return "", false
}

// DefaultResultLimit is the number of characters of a step result kept in memory.
const DefaultResultLimit = 200

// Memory is safe for concurrent use. When a Store is attached every write is
// persisted as well; store failures are logged and the in-process copy stays
// authoritative.
type Memory struct {
	mu    sync.RWMutex
	facts []Fact
	steps []Step

	store        Store
	session      string
	storeTimeout time.Duration
	resultLimit  int
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Memory.
type Option func(*Memory)

// WithStore persists every fact and step under session.
func WithStore(store Store, session string) Option {
	return func(m *Memory) {
		m.store = store
		m.session = session
	}
}

// WithStoreTimeout bounds each store write. Defaults to two seconds.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Memory) {
		if d > 0 {
			m.storeTimeout = d
		}
	}
}

// WithResultLimit truncates step results to n characters. Zero keeps them whole.
func WithResultLimit(n int) Option {
	return func(m *Memory) {
		if n >= 0 {
			m.resultLimit = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func New(opts ...Option) *Memory {
	m := &Memory{
		storeTimeout: 2 * time.Second,
		resultLimit:  DefaultResultLimit,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddFact appends a fact. Earlier facts with the same key are kept for audit
// and shadowed by this one.
func (m *Memory) AddFact(key, value string, importance Importance) Fact {
	if importance == "" {
		importance = ImportanceNormal
	}
	m.mu.Lock()
	f := Fact{Key: key, Value: value, Importance: importance, Step: len(m.steps) + 1, At: m.now()}
	m.facts = append(m.facts, f)
	m.mu.Unlock()

	m.logger.Debug("fact saved", zap.String("key", key), zap.String("importance", string(importance)))
	if err := m.persist(func(ctx context.Context) error { return m.store.SaveFact(ctx, m.session, f) }); err != nil {
		m.logger.Warn("persist fact failed", zap.String("key", key), zap.Error(err))
	}
	return f
}

// GetFact returns the value of the most recently added fact with key.
func (m *Memory) GetFact(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.facts) - 1; i >= 0; i-- {
		if m.facts[i].Key == key {
			return m.facts[i].Value, true
		}
	}
	return "", false
}

// AllFacts returns every fact in write order, shadowed ones included.
func (m *Memory) AllFacts() []Fact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fact(nil), m.facts...)
}

// FactHistory returns every value key has held, oldest first.
func (m *Memory) FactHistory(key string) []Fact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Fact
	for _, f := range m.facts {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// AddStep appends a step with the next index. The result is truncated to the
// configured limit.
func (m *Memory) AddStep(action, result string) Step {
	m.mu.Lock()
	s := Step{Index: len(m.steps) + 1, Action: action, Result: truncate(result, m.resultLimit), At: m.now()}
	m.steps = append(m.steps, s)
	m.mu.Unlock()

	if err := m.persist(func(ctx context.Context) error { return m.store.SaveStep(ctx, m.session, s) }); err != nil {
		m.logger.Warn("persist step failed", zap.Int("step", s.Index), zap.Error(err))
	}
	return s
}

func (m *Memory) persist(save func(context.Context) error) error {
	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.storeTimeout)
	defer cancel()
	return save(ctx)
}

// Steps returns the steps in execution order.
func (m *Memory) Steps() []Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Step(nil), m.steps...)
}

// Snapshot copies the current facts and steps.
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Facts: append([]Fact(nil), m.facts...),
		Steps: append([]Step(nil), m.steps...),
	}
}

// Summarize renders the facts one per line, high-importance ones starred.
func (m *Memory) Summarize() string {
	return m.Snapshot().Summarize()
}

// Summarize renders the facts one per line, high-importance ones starred.
func (s Snapshot) Summarize() string {
	if len(s.Facts) == 0 {
		return "Memory is empty."
	}
	var b strings.Builder
	b.WriteString("Current memory:\n")
	for _, f := range s.Facts {
		marker := "-"
		if f.Importance == ImportanceHigh {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", marker, f.Key, truncate(f.Value, 100))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Memory) load(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts[:0], snap.Facts...)
	m.steps = append(m.steps[:0], snap.Steps...)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
