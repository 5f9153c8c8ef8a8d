package forum

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
)

func newRoster(t *testing.T, oracle models.Oracle, ids ...string) *swarm.Roster {
	t.Helper()
	r, err := swarm.NewRoster()
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, r.Add(swarm.New(id, id+" role", id+" view", oracle)))
	}
	return r
}

func prompt(c models.Call) string { return c.Transcript[0].Content }

func TestTwoRoundSession(t *testing.T) {
	oracle := models.NewScriptedOracle(
		"X says r1", "Y says r1",
		"guidance one",
		"X says r2", "Y says r2",
		"the conclusion",
	)
	roster := newRoster(t, oracle, "X", "Y")
	h := New("topic", oracle, roster, WithMaxRounds(2))

	conclusion, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "the conclusion", conclusion)
	assert.Equal(t, 6, oracle.CallCount())
	assert.Equal(t, PhaseDone, h.Phase())
	assert.False(t, h.ShouldContinue())

	assert.Equal(t, []Entry{
		{Speaker: "X", Content: "X says r1"},
		{Speaker: "Y", Content: "Y says r1"},
		{Speaker: HostSpeaker, Content: "guidance one"},
		{Speaker: "X", Content: "X says r2"},
		{Speaker: "Y", Content: "Y says r2"},
	}, h.History())

	calls := oracle.Calls()
	assert.Contains(t, prompt(calls[1]), "- X: X says r1")
	assert.Contains(t, prompt(calls[1]), "Host guidance: \n")

	assert.Equal(t, DefaultGuidanceTemperature, calls[2].Options.Temperature)
	assert.Contains(t, prompt(calls[2]), "Round: 1/2")

	conclusionPrompt := prompt(calls[5])
	assert.Equal(t, DefaultConclusionTemperature, calls[5].Options.Temperature)
	assert.Equal(t, 5, strings.Count(conclusionPrompt, "]: "))
	assert.Contains(t, conclusionPrompt, "[Host]: guidance one")
}

func TestRoundVisibility(t *testing.T) {
	oracle := models.NewScriptedOracle(
		"a1", "b1", "c1",
		"g1",
		"a2", "b2", "c2",
		"g2",
		"a3", "b3", "c3",
		"done",
	)
	roster := newRoster(t, oracle, "A", "B", "C")
	h := New("topic", oracle, roster, WithMaxRounds(3))
	_, err := h.Run(context.Background())
	require.NoError(t, err)

	calls := oracle.Calls()
	require.Len(t, calls, 12)

	// round 1
	assert.NotContains(t, prompt(calls[0]), "Other experts' views")
	assert.Contains(t, prompt(calls[1]), "- A: a1")
	assert.NotContains(t, prompt(calls[1]), "b1")
	assert.Contains(t, prompt(calls[2]), "- A: a1")
	assert.Contains(t, prompt(calls[2]), "- B: b1")

	// round 2 speakers see g1 and only round-2 statements
	r2first := prompt(calls[4])
	assert.Contains(t, r2first, "Host guidance: g1")
	assert.Contains(t, r2first, "Round: 2")
	assert.NotContains(t, r2first, "a1")
	assert.NotContains(t, r2first, "c1")
	r2last := prompt(calls[6])
	assert.Contains(t, r2last, "- A: a2")
	assert.Contains(t, r2last, "- B: b2")
	assert.NotContains(t, r2last, "a3")

	// round 3 sees the latest guidance only
	assert.Contains(t, prompt(calls[8]), "Host guidance: g2")
	assert.NotContains(t, prompt(calls[8]), "g1")

	// guidance prompts only summarise their own round
	assert.Contains(t, prompt(calls[7]), "A: a2")
	assert.NotContains(t, prompt(calls[7]), "a1")
}

func TestBoundedRounds(t *testing.T) {
	for _, rounds := range []int{1, 2, 4} {
		oracle := &models.ScriptedOracle{}
		guidance, conclusions, statements := 0, 0, 0
		for i := 0; i < 20; i++ {
			oracle.Push(models.Reply{Func: func(tr []models.Message, _ models.Options) (models.Completion, error) {
				p := tr[0].Content
				switch {
				case strings.HasPrefix(p, "You are the forum host. Please summarise"):
					conclusions++
				case strings.HasPrefix(p, "You are the forum host."):
					guidance++
				default:
					statements++
				}
				return models.Completion{Content: "ok"}, nil
			}})
		}
		h := New("t", oracle, newRoster(t, oracle, "A", "B"), WithMaxRounds(rounds))
		_, err := h.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, rounds*2, statements, "rounds=%d", rounds)
		assert.Equal(t, rounds-1, guidance, "rounds=%d", rounds)
		assert.Equal(t, 1, conclusions, "rounds=%d", rounds)
		assert.Len(t, h.Rounds(), rounds)
		assert.Len(t, h.History(), rounds*2+rounds-1)
	}
}

func TestRoundsAreFrozen(t *testing.T) {
	oracle := models.NewScriptedOracle("a1", "b1", "g", "a2", "b2", "end")
	h := New("t", oracle, newRoster(t, oracle, "A", "B"), WithMaxRounds(2))
	_, err := h.Run(context.Background())
	require.NoError(t, err)

	rounds := h.Rounds()
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Number)
	assert.Equal(t, "g", rounds[0].Guidance)
	assert.Equal(t, "", rounds[1].Guidance)

	rounds[0].Statements[0].Content = "tampered"
	assert.Equal(t, "a1", h.Rounds()[0].Statements[0].Content)
}

func TestPublishesAndRecords(t *testing.T) {
	oracle := models.NewScriptedOracle("a1", "b1", "g", "a2", "b2", "end")
	st := state.New()
	mb := bus.New(bus.WithState(st))
	roster := newRoster(t, oracle, "A", "B")
	roster.Join(mb)

	var events []Event
	h := New("t", oracle, roster, WithMaxRounds(2), WithBus(mb), WithState(st), WithProgress(func(e Event) {
		events = append(events, e)
	}))
	_, err := h.Run(context.Background())
	require.NoError(t, err)

	// opening, 4 statements, 1 guidance, conclusion
	history := mb.History()
	require.Len(t, history, 7)
	assert.Equal(t, bus.KindInfo, history[0].Kind)
	assert.Equal(t, HostSpeaker, history[0].Sender)
	assert.Equal(t, bus.KindStatement, history[1].Kind)
	assert.Equal(t, "A", history[1].Sender)
	assert.Equal(t, bus.KindGuidance, history[3].Kind)
	assert.Equal(t, bus.KindConclusion, history[6].Kind)
	for _, m := range history {
		assert.True(t, m.IsBroadcast())
	}

	// broadcasts never reach the sender
	a, _ := roster.Get("A")
	for _, m := range a.Inbox() {
		assert.NotEqual(t, "A", m.Sender)
	}

	assert.Equal(t, "a2", st.Get(RoundKey(2, "A"), nil))
	assert.Equal(t, "g", st.Get(GuidanceKey(1), nil))
	assert.Equal(t, "end", st.Get(KeyConclusion, nil))
	assert.Equal(t, "t", st.Get(KeyTopic, nil))
	assert.Len(t, st.Messages(), 7)

	require.Len(t, events, 7)
	assert.Equal(t, PhaseOpen, events[0].Phase)
	assert.Equal(t, Event{Phase: PhaseRound, Round: 1, Speaker: "B", Content: "b1"}, events[2])
	assert.Equal(t, PhaseConclude, events[6].Phase)
}

func TestOpenIsNotHistory(t *testing.T) {
	h := New("climate", models.NewScriptedOracle(), newRoster(t, nil, "A"))
	opening := h.Open()
	assert.Contains(t, opening, "climate")
	assert.Empty(t, h.History())
	assert.Equal(t, PhaseOpen, h.Phase())
	assert.Equal(t, 0, h.Round())
	assert.True(t, h.ShouldContinue())
}

func TestWorkerFailureCarriesHistory(t *testing.T) {
	oracle := models.NewScriptedOracle("a1", "b1", "g", "a2")
	oracle.PushError(errors.New("rate limited"))
	h := New("t", oracle, newRoster(t, oracle, "A", "B"), WithMaxRounds(2))

	_, err := h.Run(context.Background())
	var se *SessionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PhaseRound, se.Phase)
	assert.Equal(t, 2, se.Round)
	assert.Equal(t, "B", se.Speaker)
	assert.Len(t, se.History, 3)

	var oe *models.OracleError
	assert.True(t, errors.As(err, &oe))
}

func TestGuidanceFailure(t *testing.T) {
	oracle := models.NewScriptedOracle("a1", "   ")
	h := New("t", oracle, newRoster(t, oracle, "A"), WithMaxRounds(2))

	_, err := h.Run(context.Background())
	var se *SessionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, PhaseGuidance, se.Phase)
	assert.Equal(t, HostSpeaker, se.Speaker)
	assert.ErrorIs(t, err, models.ErrEmptyCompletion)
}

func TestRunRequiresWorkersAndRunsOnce(t *testing.T) {
	_, err := New("t", models.NewScriptedOracle(), nil).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoWorkers)

	oracle := models.NewScriptedOracle("a", "end")
	h := New("t", oracle, newRoster(t, oracle, "A"), WithMaxRounds(1))
	_, err = h.Run(context.Background())
	require.NoError(t, err)
	_, err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestShuffledOrderIsSeeded(t *testing.T) {
	order := func(seed int64) []string {
		oracle := &models.ScriptedOracle{}
		for i := 0; i < 20; i++ {
			oracle.PushText("ok")
		}
		h := New("t", oracle, newRoster(t, oracle, "A", "B", "C", "D"), WithMaxRounds(3), WithOrder(OrderShuffled), WithSeed(seed))
		_, err := h.Run(context.Background())
		require.NoError(t, err)
		var speakers []string
		for _, r := range h.Rounds() {
			for _, s := range r.Statements {
				speakers = append(speakers, s.Speaker)
			}
		}
		return speakers
	}

	first := order(7)
	assert.Equal(t, first, order(7))
	assert.Len(t, first, 12)
	for i := 0; i < 12; i += 4 {
		assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, first[i:i+4])
	}
}
