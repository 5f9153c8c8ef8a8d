package team

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/concurrent"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

// Stage names a step of a team run.
type Stage string

const (
	StagePlan     Stage = "plan"
	StageResearch Stage = "research"
	StageAnalysis Stage = "analysis"
	StageWriting  Stage = "writing"
	StageReview   Stage = "review"
)

// Shared state keys written by a Team.
const (
	KeyTeamTopics   = "team.topics"
	KeyTeamResearch = "team.research"
	KeyTeamAnalysis = "team.analysis"
	KeyTeamDraft    = "team.draft"
	KeyTeamReport   = "team.report"
)

// Report is everything a team run produced.
type Report struct {
	Task     string
	Topics   []string
	Research []Finding
	Analysis string
	Draft    string
	Final    string
}

// Team is a coordinator that splits a task into topics, a researcher that
// covers the topics in parallel, an analyst and a writer.
type Team struct {
	Coordinator *swarm.Worker
	Researcher  *swarm.Worker
	Analyst     *swarm.Worker
	Writer      *swarm.Worker
	settings
}

func NewTeam(oracle models.Oracle, opts ...Option) *Team {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	s.ensureInfra()

	log := swarm.WithLogger(s.logger)
	research := swarm.WithProcessTemperature(s.researchTemp)
	return &Team{
		Coordinator: swarm.CoordinatorAgent.Build(oracle, log, research),
		Researcher:  swarm.ResearchAgent.Build(oracle, log, research),
		Analyst:     swarm.AnalystAgent.Build(oracle, log, swarm.WithProcessTemperature(s.analysisTemp)),
		Writer:      swarm.WriterAgent.Build(oracle, log, research),
		settings:    s,
	}
}

func (t *Team) State() *state.SharedState { return t.state }

// Run takes task through planning, parallel research, analysis, writing and review.
func (t *Team) Run(ctx context.Context, task string) (Report, error) {
	rep := Report{Task: task}
	log := t.logger.With(zap.String("task", task))

	topics, err := t.plan(ctx, task)
	if err != nil {
		return rep, fmt.Errorf("plan: %w", err)
	}
	rep.Topics = topics
	t.state.Update(KeyTeamTopics, topics, t.Coordinator.ID)
	t.announce(t.Coordinator.ID, strings.Join(topics, "\n"))
	t.emit(StagePlan, strings.Join(topics, "\n"))
	log.Info("task planned", zap.Int("topics", len(topics)))

	findings, err := concurrent.ParallelMap(ctx, topics, t.concurrency, func(ctx context.Context, _ int, topic string) (Finding, error) {
		return t.research(ctx, topic)
	})
	if err != nil {
		return rep, fmt.Errorf("research: %w", err)
	}
	rep.Research = findings

	combined := combineFindings(findings)
	t.state.Update(KeyTeamResearch, combined, t.Researcher.ID)
	t.announce(t.Researcher.ID, combined)
	t.emit(StageResearch, combined)

	rep.Analysis, err = t.Analyst.Process(ctx, "Analyse the following information and give the key insights and findings.", combined)
	if err != nil {
		return rep, fmt.Errorf("analysis: %w", err)
	}
	t.state.Update(KeyTeamAnalysis, rep.Analysis, t.Analyst.ID)
	t.announce(t.Analyst.ID, rep.Analysis)
	t.emit(StageAnalysis, rep.Analysis)

	rep.Draft, err = t.Writer.Process(ctx, "Write a clearly structured report based on the research and analysis.",
		fmt.Sprintf("Research:\n%s\n\nAnalysis:\n%s", combined, rep.Analysis))
	if err != nil {
		return rep, fmt.Errorf("writing: %w", err)
	}
	t.state.Update(KeyTeamDraft, rep.Draft, t.Writer.ID)
	t.announce(t.Writer.ID, rep.Draft)
	t.emit(StageWriting, rep.Draft)

	rep.Final, err = t.Coordinator.Process(ctx, "Review the following report, adjust it where needed and make sure it is of good quality.", rep.Draft)
	if err != nil {
		return rep, fmt.Errorf("review: %w", err)
	}
	t.state.Update(KeyTeamReport, rep.Final, t.Coordinator.ID)
	t.announce(t.Coordinator.ID, rep.Final)
	t.emit(StageReview, rep.Final)
	log.Info("report delivered")
	return rep, nil
}

func (t *Team) plan(ctx context.Context, task string) ([]string, error) {
	out, err := t.Coordinator.Process(ctx,
		fmt.Sprintf("Break the following task into concrete research topics:\n%s\n\nGive 2-3 topics, one per line.", task), "")
	if err != nil {
		return nil, err
	}
	topics := parseTopics(out, t.maxTopics)
	if len(topics) == 0 {
		topics = []string{task}
	}
	return topics, nil
}

// research searches the topic when a search tool is configured and has the
// researcher organise what came back. A failed search is handed to the
// researcher as text rather than aborting the run.
func (t *Team) research(ctx context.Context, topic string) (Finding, error) {
	if t.search == nil {
		out, err := t.Researcher.Process(ctx, "Research the following topic and summarise the key information: "+topic, "")
		if err != nil {
			return Finding{}, err
		}
		return Finding{Topic: topic, Research: out}, nil
	}

	results := ""
	resp, err := t.search.Invoke(ctx, tools.ToolRequest{Arguments: map[string]any{"query": topic}})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Finding{}, err
		}
		t.logger.Warn("search failed", zap.String("topic", topic), zap.Error(err))
		results = "search failed: " + err.Error()
	} else {
		results = resp.Content
	}

	out, err := t.Researcher.Process(ctx, "Organise the following search results and extract the key information:\n"+results, "")
	if err != nil {
		return Finding{}, err
	}
	return Finding{Topic: topic, Research: out}, nil
}

func combineFindings(findings []Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, fmt.Sprintf("Topic: %s\n%s", f.Topic, f.Research))
	}
	return strings.Join(parts, "\n\n")
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// parseTopics reads one topic per line, dropping list markers and blanks.
func parseTopics(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
