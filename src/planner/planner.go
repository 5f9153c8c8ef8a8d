// Package planner runs the single-agent "decide, act, repeat" loop over a
// working memory and a tool catalog.
package planner

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

const (
	DefaultMaxIterations = 6
	DefaultTemperature   = 0.3
)

// Iteration reports what one pass of the loop did. At most one of Step and
// Fact is set.
type Iteration struct {
	Number   int
	Decision Decision
	Step     *memory.Step
	Fact     *memory.Fact
}

// Result is a completed run.
type Result struct {
	FinalAnswer string
	Iterations  int
	Trace       []Iteration
	Memory      memory.Snapshot
}

// DynamicPlanner asks the oracle for the next move, performs it and repeats
// until the oracle reports the task completed.
type DynamicPlanner struct {
	task          string
	oracle        models.Oracle
	catalog       *tools.Catalog
	memory        *memory.Memory
	maxIterations int
	temperature   float64
	session       string
	progress      func(Iteration)
	logger        *zap.Logger
}

type Option func(*DynamicPlanner)

func WithMaxIterations(n int) Option {
	return func(p *DynamicPlanner) {
		if n > 0 {
			p.maxIterations = n
		}
	}
}

// WithMemory runs the planner over an existing memory, e.g. one restored from a store.
func WithMemory(m *memory.Memory) Option {
	return func(p *DynamicPlanner) {
		if m != nil {
			p.memory = m
		}
	}
}

func WithTemperature(t float64) Option {
	return func(p *DynamicPlanner) { p.temperature = t }
}

// WithProgress is called after every iteration, terminal ones included.
func WithProgress(fn func(Iteration)) Option {
	return func(p *DynamicPlanner) { p.progress = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *DynamicPlanner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSession sets the session id forwarded to tools.
func WithSession(id string) Option {
	return func(p *DynamicPlanner) { p.session = id }
}

// New builds a planner for task. A nil catalog means no tools are available.
func New(task string, oracle models.Oracle, catalog *tools.Catalog, opts ...Option) *DynamicPlanner {
	p := &DynamicPlanner{
		task:          task,
		oracle:        oracle,
		catalog:       catalog,
		maxIterations: DefaultMaxIterations,
		temperature:   DefaultTemperature,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.catalog == nil {
		p.catalog = tools.NewCatalog()
	}
	if p.memory == nil {
		p.memory = memory.New(memory.WithLogger(p.logger))
	}
	return p
}

// Memory exposes the planner's working memory.
func (p *DynamicPlanner) Memory() *memory.Memory { return p.memory }

// Run executes the loop. Every error it returns is a *RunError carrying the
// memory built so far; errors.As reaches the cause (*tools.UnknownToolError,
// *StalledDecisionError, *BudgetExceededError, *models.OracleError).
func (p *DynamicPlanner) Run(ctx context.Context) (Result, error) {
	var trace []Iteration
	opts := models.Options{Temperature: p.temperature, Tools: p.catalog.Schemas()}

	for i := 1; i <= p.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, p.fail(i, err)
		}
		log := p.logger.With(zap.Int("iteration", i))

		prompt := buildPrompt(p.task, p.catalog.Describe(), p.memory.Snapshot())
		comp, err := p.oracle.Complete(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}}, opts)
		if err != nil {
			return Result{}, p.fail(i, models.AsOracleError("decide", err))
		}
		dec, err := decisionFromCompletion(comp)
		if err != nil {
			log.Warn("unparseable decision", zap.Error(err))
			return Result{}, p.fail(i, err)
		}
		log.Debug("decision", zap.String("status", string(dec.Status)), zap.String("reasoning", dec.Reasoning))

		it := Iteration{Number: i, Decision: dec}
		if dec.Status == StatusCompleted {
			trace = append(trace, it)
			p.emit(it)
			log.Info("task completed")
			return Result{
				FinalAnswer: dec.FinalAnswer,
				Iterations:  i,
				Trace:       trace,
				Memory:      p.memory.Snapshot(),
			}, nil
		}

		if dec.Action == nil {
			p.emit(it)
			return Result{}, p.fail(i, &StalledDecisionError{Iteration: i, Reasoning: dec.Reasoning})
		}

		switch dec.Action.Type {
		case ActionRemember:
			f := p.memory.AddFact(dec.Action.MemoryKey, dec.Action.MemoryValue, dec.Action.Importance)
			it.Fact = &f
		case ActionTool:
			step, err := p.act(ctx, log, *dec.Action)
			if err != nil {
				p.emit(it)
				return Result{}, p.fail(i, err)
			}
			it.Step = &step
		}
		trace = append(trace, it)
		p.emit(it)
	}

	p.logger.Warn("iteration budget exhausted", zap.Int("max_iterations", p.maxIterations))
	return Result{}, p.fail(p.maxIterations, &BudgetExceededError{MaxIterations: p.maxIterations})
}

// act invokes the tool and records the outcome as a step. Only an unknown tool
// is fatal; a failing tool becomes the step result.
func (p *DynamicPlanner) act(ctx context.Context, log *zap.Logger, a Action) (memory.Step, error) {
	resp, err := p.catalog.Invoke(ctx, a.Tool, tools.ToolRequest{SessionID: p.session, Arguments: a.Arguments})
	if err != nil {
		var unknown *tools.UnknownToolError
		if errors.As(err, &unknown) {
			log.Warn("unknown tool requested", zap.String("tool", a.Tool))
			return memory.Step{}, err
		}
		cause := err
		var execErr *tools.ToolExecutionError
		if errors.As(err, &execErr) && execErr.Err != nil {
			cause = execErr.Err
		}
		log.Warn("tool failed", zap.String("tool", a.Tool), zap.Error(cause))
		return p.memory.AddStep(a.Describe(), "tool error: "+cause.Error()), nil
	}
	return p.memory.AddStep(a.Describe(), resp.Content), nil
}

func (p *DynamicPlanner) emit(it Iteration) {
	if p.progress != nil {
		p.progress(it)
	}
}

func (p *DynamicPlanner) fail(iteration int, err error) error {
	return &RunError{Iteration: iteration, Memory: p.memory.Snapshot(), Err: err}
}
