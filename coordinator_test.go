package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"

	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/forum"
	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/planner"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
	"github.com/Protocol-Lattice/agentforum/src/team"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

func newCoordinator(t *testing.T, oracle models.Oracle, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), append([]Option{WithOracle(oracle)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewDefaults(t *testing.T) {
	c := newCoordinator(t, models.NewScriptedOracle())

	assert.NotEmpty(t, c.Session())
	assert.NotNil(t, c.State())
	assert.NotNil(t, c.Bus())
	assert.Equal(t, 0, c.Catalog().Len())
	assert.Nil(t, c.MemoryStore())

	var ids []string
	for _, w := range c.Roster().Workers() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"QueryAgent", "InsightAgent", "MediaAgent"}, ids)
	assert.Equal(t, ids, c.Bus().Subscribers())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(context.Background(), WithOracle(nil))
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Forum.MaxRounds = 0
	_, err = New(context.Background(), WithConfig(cfg))
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Provider = "carrier-pigeon"
	_, err = New(context.Background(), WithConfig(cfg))
	assert.ErrorContains(t, err, "unknown provider")

	_, err = New(context.Background(), WithOracle(models.NewScriptedOracle()),
		WithProfiles(swarm.Profile{ID: "A"}, swarm.Profile{ID: "A"}))
	assert.Error(t, err)
}

func TestRunForum(t *testing.T) {
	oracle := models.NewScriptedOracle("a says", "b says", "wrap up")
	c := newCoordinator(t, oracle, WithProfiles(
		swarm.Profile{ID: "A", Role: "first"},
		swarm.Profile{ID: "B", Role: "second"},
	))

	var events []forum.Event
	conclusion, err := c.RunForum(context.Background(), "cities", 1, func(e forum.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	assert.Equal(t, "wrap up", conclusion)
	assert.Equal(t, 3, oracle.CallCount())
	assert.Equal(t, "wrap up", c.State().Get(forum.KeyConclusion, nil))
	assert.NotEmpty(t, events)

	// the panel is subscribed, so it sees the host's broadcasts
	w, ok := c.Roster().Get("B")
	require.True(t, ok)
	assert.NotEmpty(t, w.Inbox())
}

func TestRunForumFailureKeepsDiscussion(t *testing.T) {
	oracle := models.NewScriptedOracle("a says")
	oracle.PushError(errors.New("offline"))
	c := newCoordinator(t, oracle, WithProfiles(swarm.Profile{ID: "A"}, swarm.Profile{ID: "B"}))

	_, err := c.RunForum(context.Background(), "cities", 2, nil)
	var se *forum.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "B", se.Speaker)
}

func TestRunPlannerWritesAnswer(t *testing.T) {
	oracle := models.NewScriptedOracle(
		`{"status":"continue","next_action":{"tool":"echo","arguments":{"text":"hi"}}}`,
		`{"status":"completed","final_answer":"hi back"}`,
	)
	c := newCoordinator(t, oracle, WithTools(&tools.EchoTool{}))

	var iterations []planner.Iteration
	res, err := c.RunPlanner(context.Background(), "greet", 0, func(it planner.Iteration) {
		iterations = append(iterations, it)
	})
	require.NoError(t, err)
	assert.Equal(t, "hi back", res.FinalAnswer)
	assert.Len(t, iterations, 2)
	assert.Equal(t, "hi back", c.State().Get(KeyPlannerAnswer, nil))
	assert.Equal(t, "greet", c.State().Get(KeyPlannerTask, nil))
}

func TestRunPlannerResumesSessionMemory(t *testing.T) {
	store := memory.NewInMemoryStore()

	first := newCoordinator(t, models.NewScriptedOracle(
		`{"status":"continue","action":{"type":"save_to_memory","memory_key":"city","memory_value":"Oslo"}}`,
		`{"status":"completed","final_answer":"noted"}`,
	), WithMemoryStore(store), WithSession("s1"))
	_, err := first.RunPlanner(context.Background(), "remember the city", 0, nil)
	require.NoError(t, err)

	second := newCoordinator(t, models.NewScriptedOracle(
		`{"status":"completed","final_answer":"Oslo"}`,
	), WithMemoryStore(store), WithSession("s1"))
	res, err := second.RunPlanner(context.Background(), "which city?", 0, nil)
	require.NoError(t, err)

	v, ok := res.Memory.Latest("city")
	require.True(t, ok)
	assert.Equal(t, "Oslo", v)
}

func TestRunPlannerFailure(t *testing.T) {
	oracle := models.NewScriptedOracle(`{"status":"continue","next_action":null}`)
	c := newCoordinator(t, oracle)

	_, err := c.RunPlanner(context.Background(), "t", 3, nil)
	assert.ErrorIs(t, err, planner.ErrStalled)
	_, ok := c.State().Lookup(KeyPlannerAnswer)
	assert.False(t, ok)
}

func TestRunResearch(t *testing.T) {
	oracle := models.NewScriptedOracle("notes one", "the analysis", "notes two", "second analysis")
	c := newCoordinator(t, oracle)

	analysis, err := c.RunResearch(context.Background(), "energy", []string{"solar"})
	require.NoError(t, err)
	assert.Equal(t, "the analysis", analysis)
	assert.Equal(t, "energy", c.State().Get(KeyResearchTopic, nil))

	// a second run on the same bus must not double the handlers
	analysis, err = c.RunResearch(context.Background(), "energy", []string{"wind"})
	require.NoError(t, err)
	assert.Equal(t, "second analysis", analysis)
	assert.Equal(t, 4, oracle.CallCount())
	v, _ := c.State().GetString(team.ResearchKey("wind"))
	assert.Equal(t, "notes two", v)
}

func TestRunTeam(t *testing.T) {
	oracle := models.NewScriptedOracle("batteries", "battery notes", "insight", "draft", "final")
	c := newCoordinator(t, oracle)

	var stages []team.Stage
	rep, err := c.RunTeam(context.Background(), "energy storage", func(s team.Stage, _ string) {
		stages = append(stages, s)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"batteries"}, rep.Topics)
	assert.Equal(t, "final", rep.Final)
	assert.Len(t, stages, 5)
	assert.Equal(t, "final", c.State().Get(team.KeyTeamReport, nil))
}

func TestRunAnalysis(t *testing.T) {
	oracle := models.NewScriptedOracle("a material", "b material", "a view", "b view", "agreed", "report")
	c := newCoordinator(t, oracle, WithProfiles(
		swarm.Profile{ID: "A", Role: "first"},
		swarm.Profile{ID: "B", Role: "second"},
	))

	var stages []team.Stage
	var events []forum.Event
	res, err := c.RunAnalysis(context.Background(), "grid storage", 1,
		func(s team.Stage, _ string) { stages = append(stages, s) },
		func(e forum.Event) { events = append(events, e) })
	require.NoError(t, err)
	assert.Equal(t, "agreed", res.Conclusion)
	assert.Equal(t, "report", res.Report)
	assert.Equal(t, []team.Stage{team.StageCollect, team.StageForum, team.StageReport}, stages)
	assert.NotEmpty(t, events)
	assert.Equal(t, "report", c.State().Get(team.KeyAnalysisReport, nil))
	assert.Equal(t, "a material", c.State().Get(team.CollectKey("A"), nil))
}

func TestRedisMirrorFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Storage.RedisAddr = mr.Addr()

	c := newCoordinator(t, models.NewScriptedOracle(`{"status":"completed","final_answer":"ok"}`),
		WithConfig(cfg), WithSession("mirrored"))
	_, err := c.RunPlanner(context.Background(), "t", 1, nil)
	require.NoError(t, err)

	items, err := mr.List(state.LogKey("mirrored"))
	require.NoError(t, err)
	assert.Len(t, items, c.State().Len())
	require.NoError(t, c.Close())
}

func TestWebSearchRegisteredFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Search.TavilyAPIKey = "tvly-test"
	c := newCoordinator(t, models.NewScriptedOracle(), WithConfig(cfg))

	_, spec, ok := c.Catalog().Lookup("web_search")
	require.True(t, ok)
	assert.Equal(t, "web_search", spec.Name)
}

func TestCacheFromConfig(t *testing.T) {
	t.Setenv("AGENT_LLM_CACHE_SIZE", "8")
	t.Setenv("AGENT_LLM_CACHE_PATH", filepath.Join(t.TempDir(), "cache.json"))
	cfg := config.Default()
	require.NoError(t, cfg.ApplyEnv(os.LookupEnv))

	inner := models.NewScriptedOracle()
	c := newCoordinator(t, inner, WithConfig(cfg))
	cached, ok := c.Oracle().(*models.CachedOracle)
	require.True(t, ok)
	assert.Same(t, inner, cached.Oracle)

	plain := newCoordinator(t, inner)
	assert.Same(t, inner, plain.Oracle())
}

type fakeUTCP struct {
	tools []utcptools.Tool
	calls []string
}

func (f *fakeUTCP) SearchTools(string, int) ([]utcptools.Tool, error) { return f.tools, nil }

func (f *fakeUTCP) CallTool(_ context.Context, name string, args map[string]any) (any, error) {
	f.calls = append(f.calls, name)
	return "sunny in " + args["city"].(string), nil
}

func TestUTCPToolsReachPlanner(t *testing.T) {
	client := &fakeUTCP{tools: []utcptools.Tool{{Name: "weather.current", Description: "Current weather."}}}
	oracle := models.NewScriptedOracle(
		`{"status":"continue","next_action":{"tool":"weather.current","arguments":{"city":"Oslo"}}}`,
		`{"status":"completed","final_answer":"sunny"}`,
	)
	c := newCoordinator(t, oracle, WithUTCPClient(client))

	require.Equal(t, 1, c.Catalog().Len())
	res, err := c.RunPlanner(context.Background(), "weather in Oslo", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "sunny", res.FinalAnswer)
	assert.Equal(t, []string{"weather.current"}, client.calls)
	require.Len(t, res.Memory.Steps, 1)
	assert.Equal(t, "sunny in Oslo", res.Memory.Steps[0].Result)
}

func TestUTCPConfigMissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Search.UTCPConfig = filepath.Join(t.TempDir(), "providers.json")

	_, err := New(context.Background(), WithConfig(cfg), WithOracle(models.NewScriptedOracle()))
	assert.ErrorContains(t, err, "utcp client")
}

func TestWithWorkersJoinsPanel(t *testing.T) {
	oracle := models.NewScriptedOracle()
	extra := swarm.New("Guest", "visitor", "outside view", oracle)
	c := newCoordinator(t, oracle, WithWorkers(extra))

	assert.Equal(t, 1, c.Roster().Len())
	got, ok := c.Roster().Get("Guest")
	require.True(t, ok)
	assert.Same(t, extra, got)
}
