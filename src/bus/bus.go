// Package bus routes messages between named workers, synchronously and in
// publish order.
package bus

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/state"
)

// ErrNoSender is returned when a message without a sender is published.
var ErrNoSender = errors.New("bus: message has no sender")

// Handler receives delivered messages.
type Handler interface {
	OnMessage(msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg Message)

func (f HandlerFunc) OnMessage(msg Message) { f(msg) }

// MessageBus delivers messages to subscribed workers. Handlers run on the
// publishing goroutine and may publish again; history order is the order in
// which Publish was entered.
type MessageBus struct {
	mu          sync.Mutex
	subscribers map[string][]Handler
	order       []string
	history     []Message

	state  *state.SharedState
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a MessageBus.
type Option func(*MessageBus)

// WithState records every published message into s.
func WithState(s *state.SharedState) Option {
	return func(b *MessageBus) { b.state = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *MessageBus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the timestamp assigned to messages without one.
func WithClock(now func() time.Time) Option {
	return func(b *MessageBus) {
		if now != nil {
			b.now = now
		}
	}
}

func New(opts ...Option) *MessageBus {
	b := &MessageBus{
		subscribers: make(map[string][]Handler),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe appends h to workerID's handlers. A worker may hold several handlers;
// they run in subscription order.
func (b *MessageBus) Subscribe(workerID string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[workerID]; !ok {
		b.order = append(b.order, workerID)
	}
	b.subscribers[workerID] = append(b.subscribers[workerID], h)
}

// Publish records msg and delivers it. A direct message reaches only the
// receiver's handlers; a broadcast reaches every subscriber except the sender,
// in registration order. Messages to unknown receivers are recorded but not
// delivered.
func (b *MessageBus) Publish(msg Message) error {
	if msg.Sender == "" {
		return ErrNoSender
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = b.now()
	}
	if msg.Kind == "" {
		msg.Kind = KindInfo
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	targets := b.targetsLocked(msg)
	b.mu.Unlock()

	if b.state != nil {
		b.state.RecordMessage(msg)
	}

	if len(targets) == 0 && !msg.IsBroadcast() {
		b.logger.Debug("message recorded without delivery",
			zap.String("sender", msg.Sender), zap.String("receiver", msg.Receiver), zap.String("kind", string(msg.Kind)))
	}
	for _, h := range targets {
		h.OnMessage(msg)
	}
	return nil
}

// targetsLocked snapshots the handlers that should see msg.
func (b *MessageBus) targetsLocked(msg Message) []Handler {
	if !msg.IsBroadcast() {
		return append([]Handler(nil), b.subscribers[msg.Receiver]...)
	}
	var out []Handler
	for _, id := range b.order {
		if id == msg.Sender {
			continue
		}
		out = append(out, b.subscribers[id]...)
	}
	return out
}

// MessagesFor returns, in publish order, every message addressed to workerID or
// to Broadcast.
func (b *MessageBus) MessagesFor(workerID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.history {
		if m.Receiver == workerID || m.IsBroadcast() {
			out = append(out, m)
		}
	}
	return out
}

// History returns every published message in publish order.
func (b *MessageBus) History() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.history...)
}

// Subscribers returns subscribed worker ids in registration order.
func (b *MessageBus) Subscribers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}
