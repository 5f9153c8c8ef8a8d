// Package forum runs a moderated, round-based discussion between workers.
package forum

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
)

const (
	HostSpeaker = "Host"

	DefaultMaxRounds             = 3
	DefaultGuidanceTemperature   = 0.7
	DefaultConclusionTemperature = 0.6

	// previous statements are clipped to this many characters in a guidance prompt
	guidanceExcerpt = 200
)

// Entry is one item of the discussion history.
type Entry = swarm.Statement

// Phase is the host's position in the session state machine.
type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseRound    Phase = "round"
	PhaseGuidance Phase = "guidance"
	PhaseConclude Phase = "conclude"
	PhaseDone     Phase = "done"
)

// Order selects how speakers are sequenced within a round.
type Order int

const (
	// OrderFixed uses roster registration order in every round.
	OrderFixed Order = iota
	// OrderShuffled permutes the roster each round using a seeded RNG.
	OrderShuffled
)

// RoundResult is the frozen outcome of one speaking round.
type RoundResult struct {
	Number     int
	Statements []Entry
	Guidance   string
}

// Event is reported to the progress callback as the session produces output.
type Event struct {
	Phase   Phase
	Round   int
	Speaker string
	Content string
}

var (
	ErrNoWorkers  = errors.New("forum has no workers")
	ErrAlreadyRun = errors.New("forum session already ran")
)

// SessionError reports an oracle failure together with the discussion so far.
type SessionError struct {
	Phase   Phase
	Round   int
	Speaker string
	History []Entry
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("forum %s (round %d, %s): %v", e.Phase, e.Round, e.Speaker, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Host moderates a forum session over a roster of workers.
type Host struct {
	topic        string
	oracle       models.Oracle
	roster       *swarm.Roster
	maxRounds    int
	order        Order
	seed         int64
	bus          *bus.MessageBus
	state        *state.SharedState
	progress     func(Event)
	logger       *zap.Logger
	guidanceTemp float64
	concludeTemp float64

	mu         sync.Mutex
	phase      Phase
	round      int
	opened     bool
	started    bool
	history    []Entry
	rounds     []RoundResult
	conclusion string
}

type Option func(*Host)

func WithMaxRounds(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxRounds = n
		}
	}
}

func WithOrder(o Order) Option {
	return func(h *Host) { h.order = o }
}

// WithSeed seeds the RNG used by OrderShuffled.
func WithSeed(seed int64) Option {
	return func(h *Host) { h.seed = seed }
}

// WithBus publishes the opening, every statement, guidance and the conclusion
// as broadcasts.
func WithBus(b *bus.MessageBus) Option {
	return func(h *Host) { h.bus = b }
}

// WithState writes statements, guidance and the conclusion into shared state.
func WithState(s *state.SharedState) Option {
	return func(h *Host) { h.state = s }
}

func WithProgress(fn func(Event)) Option {
	return func(h *Host) { h.progress = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithGuidanceTemperature(t float64) Option {
	return func(h *Host) { h.guidanceTemp = t }
}

func WithConclusionTemperature(t float64) Option {
	return func(h *Host) { h.concludeTemp = t }
}

func New(topic string, oracle models.Oracle, roster *swarm.Roster, opts ...Option) *Host {
	h := &Host{
		topic:        topic,
		oracle:       oracle,
		roster:       roster,
		maxRounds:    DefaultMaxRounds,
		guidanceTemp: DefaultGuidanceTemperature,
		concludeTemp: DefaultConclusionTemperature,
		logger:       zap.NewNop(),
		phase:        PhaseOpen,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open returns the opening statement. It is announced once and is not part
// of the discussion history.
func (h *Host) Open() string {
	opening := fmt.Sprintf("Welcome, experts!\n\nToday's topic is: %s\n\nPlease share your views and findings from your own professional angle.\nLet's begin the first round.", h.topic)

	h.mu.Lock()
	first := !h.opened
	h.opened = true
	h.mu.Unlock()

	if first {
		h.record(KeyTopic, h.topic, HostSpeaker)
		h.announce(HostSpeaker, opening, bus.KindInfo)
		h.emit(Event{Phase: PhaseOpen, Speaker: HostSpeaker, Content: opening})
	}
	return opening
}

// Run executes the whole session and returns the conclusion. A Host runs once.
func (h *Host) Run(ctx context.Context) (string, error) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return "", ErrAlreadyRun
	}
	h.started = true
	h.mu.Unlock()

	var workers []*swarm.Worker
	if h.roster != nil {
		workers = h.roster.Workers()
	}
	if len(workers) == 0 {
		return "", ErrNoWorkers
	}

	h.Open()
	h.logger.Info("forum opened", zap.String("topic", h.topic), zap.Int("workers", len(workers)), zap.Int("max_rounds", h.maxRounds))

	var rng *rand.Rand
	if h.order == OrderShuffled {
		rng = rand.New(rand.NewSource(h.seed))
	}

	guidance := ""
	for n := 1; n <= h.maxRounds; n++ {
		h.setPhase(PhaseRound, n)
		statements, err := h.speakRound(ctx, n, guidance, speakingOrder(workers, rng))
		if err != nil {
			return "", err
		}

		if n < h.maxRounds {
			h.setPhase(PhaseGuidance, n)
			guidance, err = h.guide(ctx, n, statements)
			if err != nil {
				return "", err
			}
			continue
		}

		h.mu.Lock()
		h.history = append(h.history, statements...)
		h.mu.Unlock()
	}

	h.setPhase(PhaseConclude, h.maxRounds)
	conclusion, err := h.conclude(ctx)
	if err != nil {
		return "", err
	}
	h.setPhase(PhaseDone, h.maxRounds)
	return conclusion, nil
}

// speakRound gives every worker one turn. The i-th speaker sees the i-1
// statements already made this round and the previous round's guidance.
func (h *Host) speakRound(ctx context.Context, n int, guidance string, workers []*swarm.Worker) ([]Entry, error) {
	statements := make([]Entry, 0, len(workers))
	for _, w := range workers {
		others := append([]Entry(nil), statements...)
		text, err := w.Speak(ctx, h.topic, swarm.Context{Round: n, Guidance: guidance, Others: others})
		if err != nil {
			return nil, h.fail(PhaseRound, n, w.ID, err)
		}
		statements = append(statements, Entry{Speaker: w.ID, Content: text})

		h.record(RoundKey(n, w.ID), text, w.ID)
		h.announce(w.ID, text, bus.KindStatement)
		h.emit(Event{Phase: PhaseRound, Round: n, Speaker: w.ID, Content: text})
	}

	h.mu.Lock()
	h.rounds = append(h.rounds, RoundResult{Number: n, Statements: append([]Entry(nil), statements...)})
	h.mu.Unlock()
	return statements, nil
}

// guide appends the round's statements to history, then asks for guidance and
// appends it as a Host entry.
func (h *Host) guide(ctx context.Context, n int, statements []Entry) (string, error) {
	h.mu.Lock()
	h.history = append(h.history, statements...)
	h.mu.Unlock()

	text, err := models.Ask(ctx, h.oracle, h.guidancePrompt(n, statements), models.Options{Temperature: h.guidanceTemp})
	if err != nil {
		return "", h.fail(PhaseGuidance, n, HostSpeaker, err)
	}

	h.mu.Lock()
	h.history = append(h.history, Entry{Speaker: HostSpeaker, Content: text})
	if len(h.rounds) > 0 {
		h.rounds[len(h.rounds)-1].Guidance = text
	}
	h.mu.Unlock()

	h.record(GuidanceKey(n), text, HostSpeaker)
	h.announce(HostSpeaker, text, bus.KindGuidance)
	h.emit(Event{Phase: PhaseGuidance, Round: n, Speaker: HostSpeaker, Content: text})
	h.logger.Debug("guidance issued", zap.Int("round", n))
	return text, nil
}

func (h *Host) guidancePrompt(n int, statements []Entry) string {
	parts := make([]string, 0, len(statements))
	for _, s := range statements {
		parts = append(parts, fmt.Sprintf("%s: %s", s.Speaker, clip(s.Content, guidanceExcerpt)))
	}
	var sb strings.Builder
	sb.WriteString("You are the forum host.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", h.topic)
	fmt.Fprintf(&sb, "Round: %d/%d\n\n", n, h.maxRounds)
	sb.WriteString("Statements just made:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nPlease:\n")
	sb.WriteString("1. Briefly summarise the points of consensus\n")
	sb.WriteString("2. Point out disagreements or areas that need more depth\n")
	sb.WriteString("3. Pose 1-2 guiding questions for the next round\n\n")
	sb.WriteString("Keep it to 3-4 sentences.")
	return sb.String()
}

func (h *Host) conclude(ctx context.Context) (string, error) {
	history := h.History()
	parts := make([]string, 0, len(history))
	for _, e := range history {
		parts = append(parts, fmt.Sprintf("[%s]: %s", e.Speaker, e.Content))
	}
	var sb strings.Builder
	sb.WriteString("You are the forum host. Please summarise this discussion.\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n\n", h.topic)
	sb.WriteString("Full discussion record:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nPlease provide:\n")
	sb.WriteString("1. Core consensus (2-3 points)\n")
	sb.WriteString("2. Main disagreements (1-2 points)\n")
	sb.WriteString("3. Overall recommendations (2 points)\n\n")
	sb.WriteString("Stay professional and concise.")

	text, err := models.Ask(ctx, h.oracle, sb.String(), models.Options{Temperature: h.concludeTemp})
	if err != nil {
		return "", h.fail(PhaseConclude, h.maxRounds, HostSpeaker, err)
	}

	h.mu.Lock()
	h.conclusion = text
	h.mu.Unlock()

	h.record(KeyConclusion, text, HostSpeaker)
	h.announce(HostSpeaker, text, bus.KindConclusion)
	h.emit(Event{Phase: PhaseConclude, Round: h.maxRounds, Speaker: HostSpeaker, Content: text})
	h.logger.Info("forum concluded", zap.Int("history", len(history)))
	return text, nil
}

// ShouldContinue reports whether another speaking round is due.
func (h *Host) ShouldContinue() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase != PhaseDone && h.round < h.maxRounds
}

func (h *Host) Topic() string  { return h.topic }
func (h *Host) MaxRounds() int { return h.maxRounds }

func (h *Host) Phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// Round is the number of the current or last speaking round; 0 before Run.
func (h *Host) Round() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.round
}

// History returns a copy of the discussion history.
func (h *Host) History() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), h.history...)
}

// Rounds returns the frozen statement lists of the completed rounds.
func (h *Host) Rounds() []RoundResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RoundResult, len(h.rounds))
	for i, r := range h.rounds {
		r.Statements = append([]Entry(nil), r.Statements...)
		out[i] = r
	}
	return out
}

func (h *Host) Conclusion() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conclusion
}

func (h *Host) setPhase(p Phase, round int) {
	h.mu.Lock()
	h.phase = p
	h.round = round
	h.mu.Unlock()
}

func (h *Host) fail(p Phase, round int, speaker string, err error) error {
	h.logger.Warn("forum session failed", zap.String("phase", string(p)), zap.Int("round", round), zap.String("speaker", speaker), zap.Error(err))
	return &SessionError{Phase: p, Round: round, Speaker: speaker, History: h.History(), Err: err}
}

func (h *Host) announce(sender, text string, kind bus.Kind) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(bus.NewMessage(sender, bus.Broadcast, text, kind)); err != nil {
		h.logger.Warn("publish failed", zap.String("sender", sender), zap.Error(err))
	}
}

func (h *Host) record(key, value, writer string) {
	if h.state != nil {
		h.state.Update(key, value, writer)
	}
}

func (h *Host) emit(e Event) {
	if h.progress != nil {
		h.progress(e)
	}
}

func speakingOrder(workers []*swarm.Worker, rng *rand.Rand) []*swarm.Worker {
	if rng == nil {
		return workers
	}
	out := append([]*swarm.Worker(nil), workers...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
