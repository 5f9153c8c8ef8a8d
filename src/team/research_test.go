package team

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func lastPrompt(transcript []models.Message) string {
	return transcript[len(transcript)-1].Content
}

// researchOracle answers research prompts with "notes on <topic>" and analysis
// prompts with a fixed analysis.
func researchOracle(calls *atomic.Int32) models.Oracle {
	return models.OracleFunc(func(_ context.Context, transcript []models.Message, _ models.Options) (models.Completion, error) {
		calls.Add(1)
		p := lastPrompt(transcript)
		switch {
		case strings.Contains(p, "research specialist"):
			start := strings.Index(p, `"`)
			end := strings.Index(p[start+1:], `"`)
			return models.Completion{Content: "notes on " + p[start+1:start+1+end]}, nil
		case strings.Contains(p, "analysis specialist"):
			return models.Completion{Content: "overall analysis"}, nil
		}
		return models.Completion{}, errors.New("unexpected prompt")
	})
}

func TestResearchPipelineProducesAnalysis(t *testing.T) {
	var calls atomic.Int32
	var stages []Stage
	p := NewResearchPipeline(researchOracle(&calls), WithProgress(func(s Stage, _ string) {
		stages = append(stages, s)
	}))

	analysis, err := p.Run(context.Background(), "AI", []string{"history", "ethics"})
	require.NoError(t, err)
	assert.Equal(t, "overall analysis", analysis)
	assert.EqualValues(t, 3, calls.Load())

	st := p.State()
	assert.Equal(t, 2, st.Get(KeyExpectedResearchCount, 0))
	v, _ := st.GetString(ResearchKey("history"))
	assert.Equal(t, "notes on history", v)
	v, _ = st.GetString(ResearchKey("ethics"))
	assert.Equal(t, "notes on ethics", v)
	v, _ = st.GetString(KeyFinalAnalysis)
	assert.Equal(t, "overall analysis", v)

	assert.Equal(t, []Stage{StageResearch, StageResearch, StageAnalysis}, stages)
}

func TestResearchPipelineMessageFlow(t *testing.T) {
	var calls atomic.Int32
	p := NewResearchPipeline(researchOracle(&calls))
	_, err := p.Run(context.Background(), "AI", []string{"history"})
	require.NoError(t, err)

	var kinds []bus.Kind
	for _, m := range p.Bus().History() {
		kinds = append(kinds, m.Kind)
	}
	assert.Equal(t, []bus.Kind{bus.KindResearchRequest, bus.KindResearchComplete, bus.KindAnalysisComplete}, kinds)

	done := p.Bus().MessagesFor(CoordinatorID)
	require.NotEmpty(t, done)
	assert.Equal(t, bus.KindAnalysisComplete, done[len(done)-1].Kind)
	assert.Len(t, p.State().Messages(), 3)
}

func TestResearchPipelineReportsResearchFailure(t *testing.T) {
	oracle := models.OracleFunc(func(_ context.Context, transcript []models.Message, _ models.Options) (models.Completion, error) {
		if strings.Contains(lastPrompt(transcript), `"broken"`) {
			return models.Completion{}, errors.New("provider down")
		}
		return models.Completion{Content: "fine"}, nil
	})
	p := NewResearchPipeline(oracle)

	_, err := p.Run(context.Background(), "AI", []string{"ok", "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	_, ok := p.State().Lookup(KeyFinalAnalysis)
	assert.False(t, ok)
	v, _ := p.State().GetString(ResearchKey("ok"))
	assert.Equal(t, "fine", v)
}

func TestResearchPipelineAnalysisFailure(t *testing.T) {
	oracle := models.OracleFunc(func(_ context.Context, transcript []models.Message, _ models.Options) (models.Completion, error) {
		if strings.Contains(lastPrompt(transcript), "analysis specialist") {
			return models.Completion{}, errors.New("quota")
		}
		return models.Completion{Content: "notes"}, nil
	})
	p := NewResearchPipeline(oracle)

	_, err := p.Run(context.Background(), "AI", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestResearchPipelineNeedsTopics(t *testing.T) {
	p := NewResearchPipeline(models.NewScriptedOracle())
	_, err := p.Run(context.Background(), "AI", nil)
	assert.Error(t, err)
}

func TestResearchPipelineCanRunTwice(t *testing.T) {
	var calls atomic.Int32
	p := NewResearchPipeline(researchOracle(&calls))
	_, err := p.Run(context.Background(), "AI", []string{"a"})
	require.NoError(t, err)
	analysis, err := p.Run(context.Background(), "AI", []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, "overall analysis", analysis)
}
