package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	agent "github.com/Protocol-Lattice/agentforum"
	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

// run executes the root command with oracle behind every coordinator.
func run(t *testing.T, oracle models.Oracle, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true

	prev := coordinatorFactory
	t.Cleanup(func() {
		coordinatorFactory = prev
		configPath, provider, model, logLevel = "", "", "", ""
		forumRounds, forumShuffle, forumSeed = 0, false, 0
		analyzeRounds = 0
		planIterations, teamConcurrency = 0, 0
		researchSubs, researchMessages = nil, false
	})
	coordinatorFactory = func(ctx context.Context, cfg config.Config, _ *zap.Logger) (*agent.Coordinator, error) {
		return agent.New(ctx,
			agent.WithConfig(cfg),
			agent.WithOracle(oracle),
			agent.WithProfiles(swarm.Profile{ID: "A", Role: "first"}, swarm.Profile{ID: "B", Role: "second"}),
			agent.WithTools(&tools.CalculatorTool{}),
		)
	}

	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), errOut.String(), err
}

func TestRootShowsHelp(t *testing.T) {
	out, _, err := run(t, models.NewScriptedOracle())
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "forum")
}

func TestForumCommand(t *testing.T) {
	oracle := models.NewScriptedOracle("a view", "b view", "the end")
	out, _, err := run(t, oracle, "forum", "--rounds", "1", "city", "planning")
	require.NoError(t, err)
	assert.Contains(t, out, "[A] a view")
	assert.Contains(t, out, "[B] b view")
	assert.Contains(t, out, "the end")
	assert.Contains(t, out, "forum finished")
	assert.Contains(t, oracle.Calls()[0].Transcript[0].Content, "city planning")
}

func TestForumCommandPrintsPartialDiscussion(t *testing.T) {
	oracle := models.NewScriptedOracle("a view")
	oracle.PushError(errors.New("offline"))
	out, errOut, err := run(t, oracle, "forum", "--rounds", "1", "topic")
	require.Error(t, err)
	assert.Contains(t, out, "discussion so far")
	assert.Contains(t, errOut, "Forum failed")
	assert.Contains(t, errOut, "round: 1")
}

func TestPlanCommand(t *testing.T) {
	oracle := models.NewScriptedOracle(
		`{"status":"continue","next_action":{"tool":"calculator","arguments":{"expression":"6 * 7"}}}`,
		`{"status":"completed","final_answer":"42"}`,
	)
	out, _, err := run(t, oracle, "plan", "six", "times", "seven")
	require.NoError(t, err)
	assert.Contains(t, out, "tools: calculator")
	assert.Contains(t, out, "Iteration 1")
	assert.Contains(t, out, "answer: 42")
}

func TestPlanCommandFailureShowsMemory(t *testing.T) {
	oracle := models.NewScriptedOracle(`{"status":"continue","next_action":null}`)
	out, errOut, err := run(t, oracle, "plan", "-i", "2", "stuck")
	require.Error(t, err)
	assert.Contains(t, out, "Memory")
	assert.Contains(t, errOut, "Planner failed")
}

func TestResearchCommand(t *testing.T) {
	oracle := models.NewScriptedOracle("notes", "big picture")
	out, _, err := run(t, oracle, "research", "energy", "--sub", "solar", "--messages")
	require.NoError(t, err)
	assert.Contains(t, out, "researching solar")
	assert.Contains(t, out, "big picture")
	assert.Contains(t, out, "[research_request]")
}

func TestResearchCommandNeedsSubTopics(t *testing.T) {
	_, _, err := run(t, models.NewScriptedOracle(), "research", "energy")
	assert.Error(t, err)
}

func TestTeamCommand(t *testing.T) {
	oracle := models.NewScriptedOracle("one topic", "notes", "insight", "draft", "polished")
	out, _, err := run(t, oracle, "team", "storage")
	require.NoError(t, err)
	assert.Contains(t, out, "REVIEW")
	assert.Contains(t, out, "polished")
	assert.Contains(t, out, "report ready (1 topics)")
}

func TestAnalyzeCommand(t *testing.T) {
	oracle := models.NewScriptedOracle("a material", "b material", "a view", "b view", "agreed", "the report")
	out, _, err := run(t, oracle, "analyze", "--rounds", "1", "grid", "storage")
	require.NoError(t, err)
	assert.Contains(t, out, "COLLECT")
	assert.Contains(t, out, "[A] a view")
	assert.Contains(t, out, "REPORT")
	assert.Contains(t, out, "the report")
	assert.Contains(t, out, "analysis report ready (2 contributions)")
	assert.Equal(t, 6, oracle.CallCount())
}

func TestAnalyzeCommandForumFailure(t *testing.T) {
	oracle := models.NewScriptedOracle("a material", "b material", "a view")
	oracle.PushError(errors.New("offline"))
	out, errOut, err := run(t, oracle, "analyze", "--rounds", "1", "grid")
	require.Error(t, err)
	assert.Contains(t, out, "discussion so far")
	assert.Contains(t, errOut, "Analysis failed")
	assert.Contains(t, errOut, "phase: round")
}

func TestInvalidConfigFlag(t *testing.T) {
	_, errOut, err := run(t, models.NewScriptedOracle(), "plan", "--config", "/does/not/exist.yml", "x")
	require.Error(t, err)
	assert.Contains(t, errOut, "Invalid configuration")
}
