// Package state holds the shared key/value state of a coordination session
// together with its append-only mutation and message log.
package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecordKind distinguishes log entries.
type RecordKind string

const (
	RecordUpdate  RecordKind = "update"
	RecordMessage RecordKind = "message"
)

// Record is one entry of the append-only log. Update records carry Key, Value
// and Writer; message records carry Message.
type Record struct {
	Seq     int        `json:"seq"`
	Kind    RecordKind `json:"kind"`
	Key     string     `json:"key,omitempty"`
	Value   any        `json:"value,omitempty"`
	Writer  string     `json:"writer,omitempty"`
	Message any        `json:"message,omitempty"`
	At      time.Time  `json:"at"`
}

// Mirror receives every record after it has been appended. Failures are logged
// and never fail the mutation.
type Mirror interface {
	Mirror(ctx context.Context, rec Record) error
}

// SharedState is the blackboard shared by all workers of a session.
// All mutation goes through Update and RecordMessage.
type SharedState struct {
	mu     sync.RWMutex
	values map[string]any
	log    []Record

	mirror        Mirror
	mirrorTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures a SharedState.
type Option func(*SharedState)

// WithMirror forwards every record to m.
func WithMirror(m Mirror) Option {
	return func(s *SharedState) { s.mirror = m }
}

// WithMirrorTimeout bounds each mirror call. Defaults to two seconds.
func WithMirrorTimeout(d time.Duration) Option {
	return func(s *SharedState) {
		if d > 0 {
			s.mirrorTimeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *SharedState) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *SharedState) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty SharedState.
func New(opts ...Option) *SharedState {
	s := &SharedState{
		values:        make(map[string]any),
		mirrorTimeout: 2 * time.Second,
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update sets key to value and appends a mutation record naming writer.
func (s *SharedState) Update(key string, value any, writer string) {
	s.mu.Lock()
	s.values[key] = value
	rec := s.appendLocked(Record{Kind: RecordUpdate, Key: key, Value: value, Writer: writer})
	s.mu.Unlock()

	s.logger.Debug("state updated", zap.String("key", key), zap.String("writer", writer), zap.Int("seq", rec.Seq))
	s.forward(rec)
}

// RecordMessage appends a message record to the log.
func (s *SharedState) RecordMessage(msg any) {
	s.mu.Lock()
	rec := s.appendLocked(Record{Kind: RecordMessage, Message: msg})
	s.mu.Unlock()

	s.forward(rec)
}

func (s *SharedState) appendLocked(rec Record) Record {
	rec.Seq = len(s.log) + 1
	rec.At = s.now()
	s.log = append(s.log, rec)
	return rec
}

func (s *SharedState) forward(rec Record) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
	defer cancel()
	if err := s.mirror.Mirror(ctx, rec); err != nil {
		s.logger.Warn("state mirror failed", zap.Int("seq", rec.Seq), zap.Error(err))
	}
}

// Get returns the most recent value for key, or def when the key was never written.
func (s *SharedState) Get(key string, def any) any {
	if v, ok := s.Lookup(key); ok {
		return v
	}
	return def
}

// Lookup reports the most recent value for key and whether it exists.
func (s *SharedState) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns a copy of the current key/value mapping. Later updates do
// not affect it. Values themselves are not deep-copied.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Log returns a copy of the full record log in append order.
func (s *SharedState) Log() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.log...)
}

// Updates returns the mutation records in append order.
func (s *SharedState) Updates() []Record {
	return s.filter(RecordUpdate)
}

// Messages returns the message records in append order.
func (s *SharedState) Messages() []Record {
	return s.filter(RecordMessage)
}

func (s *SharedState) filter(kind RecordKind) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.log {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of log records.
func (s *SharedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// GetString returns the value for key when it is a string.
func (s *SharedState) GetString(key string) (string, bool) {
	v, ok := s.Lookup(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}
