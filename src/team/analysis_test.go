package team

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/forum"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
)

func analysisPanel(t *testing.T, oracle models.Oracle) *swarm.Roster {
	t.Helper()
	roster, err := swarm.NewRoster(
		swarm.New("Query", "web researcher", "public sources", oracle),
		swarm.New("Insight", "data analyst", "numbers", oracle),
	)
	require.NoError(t, err)
	return roster
}

func TestAnalysisCollectsDebatesAndReports(t *testing.T) {
	oracle := models.NewScriptedOracle(
		"query material", "insight material",
		"query view", "insight view",
		"conclusion",
		"full report",
	)
	var stages []Stage
	a := NewAnalysis(oracle, analysisPanel(t, oracle),
		[]forum.Option{forum.WithMaxRounds(1)},
		WithProgress(func(s Stage, _ string) { stages = append(stages, s) }),
	)

	res, err := a.Run(context.Background(), "solar power")
	require.NoError(t, err)
	assert.Equal(t, []swarm.Statement{
		{Speaker: "Query", Content: "query material"},
		{Speaker: "Insight", Content: "insight material"},
	}, res.Research)
	assert.Equal(t, "conclusion", res.Conclusion)
	assert.Equal(t, "full report", res.Report)
	assert.Equal(t, []Stage{StageCollect, StageForum, StageReport}, stages)
	require.Equal(t, 6, oracle.CallCount())

	calls := oracle.Calls()
	assert.Contains(t, lastPrompt(calls[0].Transcript), "public sources")
	second := lastPrompt(calls[1].Transcript)
	assert.Contains(t, second, "Other experts' views:\n- Query: query material")

	report := lastPrompt(calls[5].Transcript)
	assert.Contains(t, report, "solar power")
	assert.Contains(t, report, "[QUERY]\nquery material")
	assert.Contains(t, report, "[INSIGHT]\ninsight material")
	assert.Contains(t, report, "Forum conclusion:\nconclusion")
	assert.Equal(t, DefaultReportTemperature, calls[5].Options.Temperature)

	st := a.State()
	assert.Equal(t, "solar power", st.Get(KeyAnalysisTopic, nil))
	assert.Equal(t, "query material", st.Get(CollectKey("Query"), nil))
	assert.Equal(t, "conclusion", st.Get(KeyAnalysisConclusion, nil))
	assert.Equal(t, "conclusion", st.Get(forum.KeyConclusion, nil))
	assert.Equal(t, "full report", st.Get(KeyAnalysisReport, nil))
}

func TestAnalysisAnnouncesOnBus(t *testing.T) {
	oracle := models.NewScriptedOracle("m1", "m2", "v1", "v2", "done", "report")
	panel := analysisPanel(t, oracle)
	b := bus.New()
	panel.Join(b)

	_, err := NewAnalysis(oracle, panel, []forum.Option{forum.WithMaxRounds(1)}, WithBus(b)).
		Run(context.Background(), "tides")
	require.NoError(t, err)

	var senders []string
	for _, m := range b.History() {
		senders = append(senders, m.Sender)
	}
	require.NotEmpty(t, senders)
	assert.Equal(t, []string{"Query", "Insight"}, senders[:2])
	assert.Equal(t, swarm.WriterAgent.ID, senders[len(senders)-1])

	query, _ := panel.Get("Query")
	assert.NotEmpty(t, query.Inbox())
}

func TestAnalysisForumFailureKeepsSession(t *testing.T) {
	boom := errors.New("boom")
	oracle := models.NewScriptedOracle("m1", "m2", "v1")
	oracle.PushError(boom)
	a := NewAnalysis(oracle, analysisPanel(t, oracle), []forum.Option{forum.WithMaxRounds(1)})

	res, err := a.Run(context.Background(), "tides")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *forum.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, forum.PhaseRound, se.Phase)
	assert.True(t, strings.HasPrefix(err.Error(), "forum: "))
	assert.Len(t, res.Research, 2)
	assert.Empty(t, res.Report)
}

func TestAnalysisCollectFailure(t *testing.T) {
	oracle := models.NewScriptedOracle("m1")
	oracle.PushError(errors.New("offline"))
	_, err := NewAnalysis(oracle, analysisPanel(t, oracle), nil).Run(context.Background(), "tides")
	assert.ErrorContains(t, err, "collect: Insight")
	assert.Equal(t, 2, oracle.CallCount())
}

func TestAnalysisNeedsPanel(t *testing.T) {
	_, err := NewAnalysis(models.NewScriptedOracle(), nil, nil).Run(context.Background(), "tides")
	assert.ErrorIs(t, err, forum.ErrNoWorkers)
}
