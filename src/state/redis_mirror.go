package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// LogKey is the Redis list holding the mirrored log of a session.
func LogKey(session string) string {
	return fmt.Sprintf("agentforum:%s:log", session)
}

// EventsChannel is the Pub/Sub channel mirrored records are published on.
func EventsChannel(session string) string {
	return fmt.Sprintf("agentforum:%s:state_events", session)
}

// RedisMirror appends every record to a Redis list and publishes it for live
// observers. The list outlives the process for postmortem replay.
type RedisMirror struct {
	rdb     *redis.Client
	session string
}

// NewRedisMirror connects a mirror for session. Returns an error if session is empty.
func NewRedisMirror(redisOpts *redis.Options, session string) (*RedisMirror, error) {
	if session == "" {
		return nil, fmt.Errorf("session cannot be empty")
	}
	return &RedisMirror{rdb: redis.NewClient(redisOpts), session: session}, nil
}

// Close closes the Redis connection.
func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}

// Ping verifies Redis connectivity.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

// Mirror writes rec to the session log and publishes it.
func (m *RedisMirror) Mirror(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := m.rdb.RPush(ctx, LogKey(m.session), payload).Err(); err != nil {
		return fmt.Errorf("failed to append record to Redis: %w", err)
	}
	if err := m.rdb.Publish(ctx, EventsChannel(m.session), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish record event: %w", err)
	}
	return nil
}

// Replay reads the mirrored log back in append order. Values come back in
// their JSON-decoded form.
func (m *RedisMirror) Replay(ctx context.Context) ([]Record, error) {
	raw, err := m.rdb.LRange(ctx, LogKey(m.session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log from Redis: %w", err)
	}
	out := make([]Record, 0, len(raw))
	for i, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Subscription delivers records published by a RedisMirror.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan Record
	errors <-chan error
	cancel func()
	once   sync.Once
}

func (s *Subscription) Events() <-chan Record { return s.events }

// Errors reports undecodable payloads; the subscription keeps running.
func (s *Subscription) Errors() <-chan error { return s.errors }

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens for records mirrored by any process using this session.
// Delivery is at-most-once, as with Redis Pub/Sub.
func (m *RedisMirror) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := m.rdb.Subscribe(ctx, EventsChannel(m.session))
	// Wait for the subscription to be confirmed so no record published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventsChan := make(chan Record, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec Record
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal record event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case eventsChan <- rec:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: eventsChan, errors: errorsChan, cancel: cancelFunc}, nil
}

var _ Mirror = (*RedisMirror)(nil)
