package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
)

// Bus identities of the research pipeline.
const (
	ResearcherID  = "ResearchAgent"
	AnalystID     = "AnalysisAgent"
	CoordinatorID = "Coordinator"
)

// Shared state keys of the research pipeline.
const (
	KeyExpectedResearchCount = "expected_research_count"
	KeyFinalAnalysis         = "final_analysis"
)

// ResearchKey is where the researcher stores its result for topic.
func ResearchKey(topic string) string { return "research_" + topic }

// Finding is a research result as it travels from researcher to analyst.
type Finding struct {
	Topic    string `json:"topic"`
	Research string `json:"research"`
}

var ErrAnalysisIncomplete = errors.New("analysis was not produced")

// ResearchPipeline fans sub-topics out to a researcher and gathers the
// results in an analyst, all through the message bus. Because publishing is
// synchronous, Run returns once the analyst has either produced the final
// analysis or reported an error.
type ResearchPipeline struct {
	oracle models.Oracle
	settings

	mu       sync.Mutex
	ctx      context.Context
	findings []Finding
	failures []string
	analysis string
}

func NewResearchPipeline(oracle models.Oracle, opts ...Option) *ResearchPipeline {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	s.ensureInfra()

	p := &ResearchPipeline{oracle: oracle, settings: s}
	p.bus.Subscribe(ResearcherID, bus.HandlerFunc(p.onResearcherMessage))
	p.bus.Subscribe(AnalystID, bus.HandlerFunc(p.onAnalystMessage))
	p.bus.Subscribe(CoordinatorID, bus.HandlerFunc(p.onCoordinatorMessage))
	return p
}

func (p *ResearchPipeline) State() *state.SharedState { return p.state }
func (p *ResearchPipeline) Bus() *bus.MessageBus      { return p.bus }

// Run requests research on every sub-topic and returns the final analysis.
func (p *ResearchPipeline) Run(ctx context.Context, mainTopic string, subTopics []string) (string, error) {
	if len(subTopics) == 0 {
		return "", errors.New("no sub-topics to research")
	}

	p.mu.Lock()
	p.ctx = ctx
	p.findings = nil
	p.failures = nil
	p.analysis = ""
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.ctx = nil
		p.mu.Unlock()
	}()

	p.logger.Info("research started", zap.String("topic", mainTopic), zap.Int("sub_topics", len(subTopics)))
	p.state.Update(KeyExpectedResearchCount, len(subTopics), CoordinatorID)
	for _, topic := range subTopics {
		msg := bus.NewMessage(CoordinatorID, ResearcherID, topic, bus.KindResearchRequest)
		if err := p.bus.Publish(msg); err != nil {
			return "", err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.failures) > 0 {
		return "", fmt.Errorf("research pipeline: %s", strings.Join(p.failures, "; "))
	}
	if p.analysis == "" {
		return "", ErrAnalysisIncomplete
	}
	return p.analysis, nil
}

func (p *ResearchPipeline) runCtx() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

func (p *ResearchPipeline) onResearcherMessage(msg bus.Message) {
	if msg.Kind != bus.KindResearchRequest {
		return
	}
	topic := msg.Text()
	p.emit(StageResearch, topic)

	prompt := fmt.Sprintf(`You are a research specialist. For the topic %q provide:
1. Core concepts (2-3 sentences)
2. Key data (2-3 points)
3. Important trends (1-2)

Keep each part under 100 words.`, topic)

	research, err := models.Ask(p.runCtx(), p.oracle, prompt, models.Options{Temperature: p.researchTemp})
	if err != nil {
		p.logger.Warn("research failed", zap.String("topic", topic), zap.Error(err))
		p.report(ResearcherID, msg.Sender, fmt.Sprintf("research %q: %v", topic, err))
		return
	}

	p.state.Update(ResearchKey(topic), research, ResearcherID)
	out := bus.NewMessage(ResearcherID, AnalystID, Finding{Topic: topic, Research: research}, bus.KindResearchComplete)
	if err := p.bus.Publish(out); err != nil {
		p.logger.Warn("publish research failed", zap.Error(err))
	}
}

func (p *ResearchPipeline) onAnalystMessage(msg bus.Message) {
	if msg.Kind != bus.KindResearchComplete {
		return
	}
	finding, ok := msg.Content.(Finding)
	if !ok {
		p.report(AnalystID, CoordinatorID, fmt.Sprintf("unexpected research payload %T", msg.Content))
		return
	}

	p.mu.Lock()
	p.findings = append(p.findings, finding)
	collected := append([]Finding(nil), p.findings...)
	p.mu.Unlock()

	expected, _ := p.state.Get(KeyExpectedResearchCount, 0).(int)
	if expected == 0 || len(collected) < expected {
		return
	}
	p.analyse(collected)
}

func (p *ResearchPipeline) analyse(findings []Finding) {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("Topic: %s\n%s", f.Topic, f.Research))
	}
	prompt := fmt.Sprintf(`You are an analysis specialist. Based on the following research:

%s

Provide an overall analysis:
1. Core insights (3-4 sentences)
2. Connections between findings (2-3 points)
3. Recommended actions (2 points)

Stay professional and concise.`, strings.Join(parts, "\n\n"))

	analysis, err := models.Ask(p.runCtx(), p.oracle, prompt, models.Options{Temperature: p.analysisTemp})
	if err != nil {
		p.logger.Warn("analysis failed", zap.Error(err))
		p.report(AnalystID, CoordinatorID, fmt.Sprintf("analysis: %v", err))
		return
	}

	p.mu.Lock()
	p.analysis = analysis
	p.mu.Unlock()

	p.state.Update(KeyFinalAnalysis, analysis, AnalystID)
	p.emit(StageAnalysis, analysis)
	done := bus.NewMessage(AnalystID, bus.Broadcast, "analysis report complete", bus.KindAnalysisComplete)
	if err := p.bus.Publish(done); err != nil {
		p.logger.Warn("publish analysis failed", zap.Error(err))
	}
}

func (p *ResearchPipeline) onCoordinatorMessage(msg bus.Message) {
	if msg.Kind != bus.KindError {
		return
	}
	p.mu.Lock()
	p.failures = append(p.failures, msg.Text())
	p.mu.Unlock()
}

// report sends a failure back to the requester as a KindError message.
func (p *ResearchPipeline) report(from, to, text string) {
	if err := p.bus.Publish(bus.NewMessage(from, to, text, bus.KindError)); err != nil {
		p.logger.Warn("publish error report failed", zap.Error(err))
	}
}
