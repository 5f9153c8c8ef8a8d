// Package team holds the multi-worker pipelines: a research pipeline driven
// entirely by bus messages, and a researcher/analyst/writer team.
package team

import (
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/concurrent"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

const (
	DefaultResearchTemperature = 0.7
	DefaultAnalysisTemperature = 0.6
	DefaultReportTemperature   = 0.4
	DefaultMaxTopics           = 3
)

type settings struct {
	logger       *zap.Logger
	state        *state.SharedState
	bus          *bus.MessageBus
	search       tools.Tool
	concurrency  int
	maxTopics    int
	researchTemp float64
	analysisTemp float64
	reportTemp   float64
	progress     func(Stage, string)
}

func defaults() settings {
	return settings{
		logger:       zap.NewNop(),
		concurrency:  concurrent.DefaultLimit,
		maxTopics:    DefaultMaxTopics,
		researchTemp: DefaultResearchTemperature,
		analysisTemp: DefaultAnalysisTemperature,
		reportTemp:   DefaultReportTemperature,
	}
}

type Option func(*settings)

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithState shares an existing SharedState instead of a private one.
func WithState(st *state.SharedState) Option {
	return func(s *settings) { s.state = st }
}

// WithBus shares an existing MessageBus instead of a private one.
func WithBus(b *bus.MessageBus) Option {
	return func(s *settings) { s.bus = b }
}

// WithSearch gives the team's researcher a search tool taking a "query" argument.
func WithSearch(t tools.Tool) Option {
	return func(s *settings) { s.search = t }
}

// WithConcurrency bounds how many topics are researched at once.
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithMaxTopics(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxTopics = n
		}
	}
}

func WithResearchTemperature(t float64) Option {
	return func(s *settings) { s.researchTemp = t }
}

func WithAnalysisTemperature(t float64) Option {
	return func(s *settings) { s.analysisTemp = t }
}

// WithReportTemperature sets the sampling temperature of the analysis report writer.
func WithReportTemperature(t float64) Option {
	return func(s *settings) { s.reportTemp = t }
}

// WithProgress reports each finished stage with its output.
func WithProgress(fn func(Stage, string)) Option {
	return func(s *settings) { s.progress = fn }
}

func (s *settings) emit(stage Stage, out string) {
	if s.progress != nil {
		s.progress(stage, out)
	}
}

// announce broadcasts a stage output from sender.
func (s *settings) announce(sender, text string) {
	if err := s.bus.Publish(bus.NewMessage(sender, bus.Broadcast, text, bus.KindInfo)); err != nil {
		s.logger.Warn("publish failed", zap.Error(err))
	}
}

func (s *settings) ensureInfra() {
	if s.state == nil {
		s.state = state.New(state.WithLogger(s.logger))
	}
	if s.bus == nil {
		s.bus = bus.New(bus.WithState(s.state), bus.WithLogger(s.logger))
	}
}
