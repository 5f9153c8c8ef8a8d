package team

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/forum"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
)

// Stages of an analysis run.
const (
	StageCollect Stage = "collect"
	StageForum   Stage = "forum"
	StageReport  Stage = "report"
)

// Shared state keys written by an Analysis.
const (
	KeyAnalysisTopic      = "analysis.topic"
	KeyAnalysisResearch   = "analysis.research"
	KeyAnalysisConclusion = "analysis.conclusion"
	KeyAnalysisReport     = "analysis.report"
)

// CollectKey is where a panel worker's collected material is stored.
func CollectKey(worker string) string {
	return "analysis.collect." + worker
}

// AnalysisResult is everything an analysis run produced.
type AnalysisResult struct {
	Topic      string
	Research   []swarm.Statement
	Conclusion string
	Report     string
}

// Analysis runs a panel through data collection, then a moderated forum on
// the same topic, and has a report writer combine both.
type Analysis struct {
	Panel    *swarm.Roster
	Reporter *swarm.Worker

	oracle    models.Oracle
	forumOpts []forum.Option
	settings
}

// NewAnalysis builds an analysis over panel. Forum options are applied after
// the shared bus, state and logger.
func NewAnalysis(oracle models.Oracle, panel *swarm.Roster, forumOpts []forum.Option, opts ...Option) *Analysis {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	s.ensureInfra()

	return &Analysis{
		Panel:     panel,
		Reporter:  swarm.WriterAgent.Build(oracle, swarm.WithLogger(s.logger), swarm.WithProcessTemperature(s.reportTemp)),
		oracle:    oracle,
		forumOpts: forumOpts,
		settings:  s,
	}
}

func (a *Analysis) State() *state.SharedState { return a.state }

// Run collects, debates and reports on topic. A forum failure keeps its
// *forum.SessionError in the chain.
func (a *Analysis) Run(ctx context.Context, topic string) (AnalysisResult, error) {
	res := AnalysisResult{Topic: topic}
	var workers []*swarm.Worker
	if a.Panel != nil {
		workers = a.Panel.Workers()
	}
	if len(workers) == 0 {
		return res, forum.ErrNoWorkers
	}
	log := a.logger.With(zap.String("topic", topic))
	a.state.Update(KeyAnalysisTopic, topic, a.Reporter.ID)

	research, err := a.collect(ctx, topic, workers)
	if err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}
	res.Research = research
	combined := combineStatements(research)
	a.state.Update(KeyAnalysisResearch, combined, a.Reporter.ID)
	a.emit(StageCollect, combined)
	log.Info("material collected", zap.Int("workers", len(research)))

	opts := append([]forum.Option{
		forum.WithBus(a.bus),
		forum.WithState(a.state),
		forum.WithLogger(a.logger),
	}, a.forumOpts...)
	res.Conclusion, err = forum.New(topic, a.oracle, a.Panel, opts...).Run(ctx)
	if err != nil {
		return res, fmt.Errorf("forum: %w", err)
	}
	a.state.Update(KeyAnalysisConclusion, res.Conclusion, forum.HostSpeaker)
	a.emit(StageForum, res.Conclusion)

	res.Report, err = a.Reporter.Process(ctx,
		fmt.Sprintf("Write a complete analysis report on: %s\n\n"+
			"Sections: executive summary; key findings backed by the research; trends, risks and opportunities; "+
			"short, medium and long term recommendations; key indicators to track.", topic),
		fmt.Sprintf("Research:\n%s\n\nForum conclusion:\n%s", combined, res.Conclusion))
	if err != nil {
		return res, fmt.Errorf("report: %w", err)
	}
	a.state.Update(KeyAnalysisReport, res.Report, a.Reporter.ID)
	a.announce(a.Reporter.ID, res.Report)
	a.emit(StageReport, res.Report)
	log.Info("analysis report delivered")
	return res, nil
}

// collect has every worker speak once in panel order, each seeing what the
// workers before it gathered.
func (a *Analysis) collect(ctx context.Context, topic string, workers []*swarm.Worker) ([]swarm.Statement, error) {
	out := make([]swarm.Statement, 0, len(workers))
	for _, w := range workers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		text, err := w.Speak(ctx, topic, swarm.Context{
			Round:    1,
			Guidance: fmt.Sprintf("Gather the material on this topic that matters from your angle (%s): %s", w.Perspective, topic),
			Others:   append([]swarm.Statement(nil), out...),
		})
		if err != nil {
			return out, fmt.Errorf("%s: %w", w.ID, err)
		}
		out = append(out, swarm.Statement{Speaker: w.ID, Content: text})
		a.state.Update(CollectKey(w.ID), text, w.ID)
		a.announce(w.ID, text)
	}
	return out, nil
}

func combineStatements(statements []swarm.Statement) string {
	parts := make([]string, 0, len(statements))
	for _, s := range statements {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", strings.ToUpper(s.Speaker), s.Content))
	}
	return strings.Join(parts, "\n\n")
}
