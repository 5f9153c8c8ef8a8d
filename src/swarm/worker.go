// Package swarm holds the participants of a coordination session. Every
// participant is a Worker; roles differ only in their profile data.
package swarm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/models"
)

const (
	DefaultSpeakTemperature   = 0.8
	DefaultProcessTemperature = 0.7

	// others' statements are clipped to this many characters in a speaking prompt
	othersExcerpt = 150
)

// Statement is one contribution to a discussion.
type Statement struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Context is what a worker may see when it takes its turn.
type Context struct {
	Round    int
	Guidance string
	Others   []Statement
}

// Worker is a role-parameterised participant backed by an oracle.
type Worker struct {
	ID          string
	Role        string
	Perspective string

	oracle      models.Oracle
	speakTemp   float64
	processTemp float64
	logger      *zap.Logger

	mu         sync.Mutex
	statements []string
	inbox      []bus.Message
}

type Option func(*Worker)

func WithSpeakTemperature(t float64) Option {
	return func(w *Worker) { w.speakTemp = t }
}

func WithProcessTemperature(t float64) Option {
	return func(w *Worker) { w.processTemp = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(id, role, perspective string, oracle models.Oracle, opts ...Option) *Worker {
	w := &Worker{
		ID:          id,
		Role:        role,
		Perspective: perspective,
		oracle:      oracle,
		speakTemp:   DefaultSpeakTemperature,
		processTemp: DefaultProcessTemperature,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Speak produces the worker's statement for one forum turn. The statement is
// kept only if the oracle call succeeds.
func (w *Worker) Speak(ctx context.Context, topic string, c Context) (string, error) {
	if w.oracle == nil {
		return "", fmt.Errorf("worker %s has no oracle", w.ID)
	}
	text, err := models.Ask(ctx, w.oracle, w.speakPrompt(topic, c), models.Options{Temperature: w.speakTemp})
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	w.statements = append(w.statements, text)
	w.mu.Unlock()

	w.logger.Debug("statement", zap.String("worker", w.ID), zap.Int("round", c.Round), zap.Int("others", len(c.Others)))
	return text, nil
}

func (w *Worker) speakPrompt(topic string, c Context) string {
	round := c.Round
	if round < 1 {
		round = 1
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, %s.\n", w.ID, w.Role)
	fmt.Fprintf(&sb, "Your perspective: %s\n\n", w.Perspective)
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	fmt.Fprintf(&sb, "Round: %d\n\n", round)
	fmt.Fprintf(&sb, "Host guidance: %s\n", c.Guidance)
	if len(c.Others) > 0 {
		sb.WriteString("\nOther experts' views:\n")
		for _, s := range c.Others {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Speaker, excerpt(s.Content, othersExcerpt))
		}
	}
	sb.WriteString("\nGive your view from your professional angle:\n")
	sb.WriteString("1. If nobody has spoken yet, state your position directly\n")
	sb.WriteString("2. If other experts have spoken, build on them or contrast with them\n")
	sb.WriteString("3. Stay professional, 3-4 sentences\n\n")
	sb.WriteString("Do not restate what others said; bring a new angle or evidence.")
	return sb.String()
}

// Process asks the worker to handle a task in its role, optionally with
// supporting context.
func (w *Worker) Process(ctx context.Context, task, extra string) (string, error) {
	if w.oracle == nil {
		return "", fmt.Errorf("worker %s has no oracle", w.ID)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a %s.\n\n", w.ID, w.Role)
	fmt.Fprintf(&sb, "Your expertise: %s\n\n", w.Perspective)
	fmt.Fprintf(&sb, "Current task: %s\n\n", task)
	if strings.TrimSpace(extra) != "" {
		fmt.Fprintf(&sb, "Context:\n%s\n\n", extra)
	}
	sb.WriteString("Complete the task and give your professional opinion. Keep it concise.")

	return models.Ask(ctx, w.oracle, sb.String(), models.Options{Temperature: w.processTemp})
}

// Statements returns the worker's own statements, oldest first.
func (w *Worker) Statements() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.statements...)
}

// OnMessage records inbound bus traffic in the worker's inbox.
func (w *Worker) OnMessage(msg bus.Message) {
	w.mu.Lock()
	w.inbox = append(w.inbox, msg)
	w.mu.Unlock()
}

// Inbox returns the messages delivered to this worker.
func (w *Worker) Inbox() []bus.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]bus.Message(nil), w.inbox...)
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var _ bus.Handler = (*Worker)(nil)
