package models

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by ScriptedOracle once every queued reply was used.
var ErrScriptExhausted = errors.New("scripted oracle: no replies left")

// Reply is one queued ScriptedOracle answer. Func, when set, wins over the
// static fields and sees the transcript it is answering.
type Reply struct {
	Completion Completion
	Err        error
	Func       func(transcript []Message, opts Options) (Completion, error)
}

// Call records one Complete invocation.
type Call struct {
	Transcript []Message
	Options    Options
}

// ScriptedOracle replays queued replies in order and records every call.
type ScriptedOracle struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScriptedOracle queues plain text replies.
func NewScriptedOracle(texts ...string) *ScriptedOracle {
	s := &ScriptedOracle{}
	for _, t := range texts {
		s.Push(Reply{Completion: Completion{Content: t}})
	}
	return s
}

// Push appends replies to the queue.
func (s *ScriptedOracle) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// PushText appends plain text replies to the queue.
func (s *ScriptedOracle) PushText(texts ...string) {
	for _, t := range texts {
		s.Push(Reply{Completion: Completion{Content: t}})
	}
}

// PushError queues a failing reply.
func (s *ScriptedOracle) PushError(err error) {
	s.Push(Reply{Err: err})
}

func (s *ScriptedOracle) Complete(ctx context.Context, transcript []Message, opts Options) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Transcript: append([]Message(nil), transcript...), Options: opts})
	if len(s.replies) == 0 {
		s.mu.Unlock()
		return Completion{}, ErrScriptExhausted
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	s.mu.Unlock()

	if next.Func != nil {
		return next.Func(transcript, opts)
	}
	if next.Err != nil {
		return Completion{}, next.Err
	}
	return next.Completion, nil
}

// Calls returns a copy of every recorded call.
func (s *ScriptedOracle) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of Complete invocations so far.
func (s *ScriptedOracle) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Remaining returns the number of replies still queued.
func (s *ScriptedOracle) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

var _ Oracle = (*ScriptedOracle)(nil)
