// Package agent wires the coordination building blocks into one session: a
// shared state and message bus, a forum panel, a planner with its tools and
// memory, and the research pipelines.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/bus"
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

// Shared state keys written by the coordinator itself.
const (
	KeyPlannerTask   = "planner.task"
	KeyPlannerAnswer = "planner.final_answer"
	KeyResearchTopic = "research.topic"
)

// Coordinator owns one session's shared state and bus and runs the forum,
// planner and research flows against them.
type Coordinator struct {
	cfg     config.Config
	session string
	logger  *zap.Logger

	oracle       models.Oracle
	catalog      *tools.Catalog
	profiles     []swarm.Profile
	extraWorkers []*swarm.Worker
	store        memory.Store
	mirror       state.Mirror
	utcp         tools.UTCPClient

	state  *state.SharedState
	bus    *bus.MessageBus
	roster *swarm.Roster

	mu       sync.Mutex
	pipeline *team.ResearchPipeline
	closers  []io.Closer
}

// New applies opts, connects whatever the configuration asks for and not
// already supplied by an option, and joins the forum panel to the bus.
func New(ctx context.Context, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		cfg:     config.Default(),
		logger:  zap.NewNop(),
		catalog: tools.NewCatalog(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.session == "" {
		c.session = uuid.NewString()
	}
	c.logger = c.logger.With(zap.String("session", c.session))

	if err := c.bootstrap(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) bootstrap(ctx context.Context) error {
	if c.oracle == nil {
		o, err := models.NewOracle(ctx, c.cfg.Provider, c.cfg.Model)
		if err != nil {
			return err
		}
		c.oracle = o
	}
	if c.cfg.Cache.Size > 0 {
		c.oracle = models.NewCachedOracle(c.oracle, c.cfg.Cache.Size, c.cfg.Cache.TTL, c.cfg.Cache.Path)
	}

	if c.mirror == nil && c.cfg.Storage.RedisAddr != "" {
		m, err := state.NewRedisMirror(&redis.Options{Addr: c.cfg.Storage.RedisAddr}, c.session)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, m)
		if err := m.Ping(ctx); err != nil {
			return fmt.Errorf("redis mirror: %w", err)
		}
		c.mirror = m
	}
	if c.store == nil {
		if err := c.connectStore(ctx); err != nil {
			return err
		}
	}
	if c.cfg.Search.TavilyAPIKey != "" {
		if _, _, ok := c.catalog.Lookup("web_search"); !ok {
			if err := c.catalog.Register(tools.NewWebSearchTool(c.cfg.Search.TavilyAPIKey)); err != nil {
				return err
			}
		}
	}

	if err := c.connectUTCP(ctx); err != nil {
		return err
	}

	stateOpts := []state.Option{state.WithLogger(c.logger)}
	if c.mirror != nil {
		stateOpts = append(stateOpts, state.WithMirror(c.mirror))
	}
	c.state = state.New(stateOpts...)
	c.bus = bus.New(bus.WithState(c.state), bus.WithLogger(c.logger))

	roster, err := c.buildRoster()
	if err != nil {
		return err
	}
	c.roster = roster
	roster.Join(c.bus)

	c.logger.Info("coordinator ready",
		zap.Int("workers", roster.Len()), zap.Int("tools", c.catalog.Len()), zap.Bool("memory_store", c.store != nil))
	return nil
}

// connectStore opens the first configured memory backend.
func (c *Coordinator) connectStore(ctx context.Context) error {
	s := c.cfg.Storage
	switch {
	case s.PostgresDSN != "":
		ps, err := memory.NewPostgresStore(ctx, s.PostgresDSN)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, ps)
		if err := ps.CreateSchema(ctx); err != nil {
			return err
		}
		c.store = ps
	case s.MongoURI != "":
		ms, err := memory.NewMongoStore(ctx, s.MongoURI, s.MongoDB)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, ms)
		c.store = ms
	case s.Neo4jURI != "":
		ns, err := memory.ConnectNeo4j(ctx, s.Neo4jURI, s.Neo4jUser, s.Neo4jPass, "")
		if err != nil {
			return err
		}
		c.closers = append(c.closers, ns)
		if err := ns.CreateSchema(ctx); err != nil {
			return err
		}
		c.store = ns
	}
	return nil
}

// connectUTCP registers the tools of the configured UTCP providers file.
func (c *Coordinator) connectUTCP(ctx context.Context) error {
	if c.utcp == nil {
		if c.cfg.Search.UTCPConfig == "" {
			return nil
		}
		client, err := tools.NewUTCPClient(ctx, c.cfg.Search.UTCPConfig)
		if err != nil {
			return err
		}
		if closer, ok := client.(io.Closer); ok {
			c.closers = append(c.closers, closer)
		}
		c.utcp = client
	}
	names, err := tools.RegisterUTCPTools(c.catalog, c.utcp)
	if err != nil {
		return err
	}
	c.logger.Info("utcp tools registered", zap.Strings("tools", names))
	return nil
}

func (c *Coordinator) buildRoster() (*swarm.Roster, error) {
	profiles := c.profiles
	if len(profiles) == 0 && len(c.extraWorkers) == 0 {
		profiles = c.cfg.Profiles()
	}
	workers := make([]*swarm.Worker, 0, len(profiles)+len(c.extraWorkers))
	for _, p := range profiles {
		workers = append(workers, p.Build(c.oracle,
			swarm.WithLogger(c.logger),
			swarm.WithSpeakTemperature(c.cfg.Forum.SpeakTemperature)))
	}
	workers = append(workers, c.extraWorkers...)
	return swarm.NewRoster(workers...)
}

func (c *Coordinator) Session() string           { return c.session }
func (c *Coordinator) State() *state.SharedState { return c.state }
func (c *Coordinator) Bus() *bus.MessageBus      { return c.bus }
func (c *Coordinator) Catalog() *tools.Catalog   { return c.catalog }
func (c *Coordinator) Roster() *swarm.Roster     { return c.roster }
func (c *Coordinator) Config() config.Config     { return c.cfg }
func (c *Coordinator) MemoryStore() memory.Store { return c.store }
func (c *Coordinator) Oracle() models.Oracle     { return c.oracle }

// RunAnalysis has the panel collect material on topic, debate it in a forum
// and hands both to a report writer. maxRounds <= 0 uses the configured limit.
func (c *Coordinator) RunAnalysis(ctx context.Context, topic string, maxRounds int, progress func(team.Stage, string), forumProgress func(forum.Event)) (team.AnalysisResult, error) {
	a := team.NewAnalysis(c.oracle, c.roster, c.forumOptions(maxRounds, forumProgress),
		team.WithState(c.state),
		team.WithBus(c.bus),
		team.WithLogger(c.logger),
		team.WithProgress(progress),
	)
	return a.Run(ctx, topic)
}

// RunForum holds a forum on topic with the panel. maxRounds <= 0 uses the
// configured limit. On failure the returned error is a *forum.SessionError
// carrying the discussion so far.
func (c *Coordinator) RunForum(ctx context.Context, topic string, maxRounds int, progress func(forum.Event)) (string, error) {
	opts := append([]forum.Option{
		forum.WithBus(c.bus),
		forum.WithState(c.state),
		forum.WithLogger(c.logger),
	}, c.forumOptions(maxRounds, progress)...)
	host := forum.New(topic, c.oracle, c.roster, opts...)
	return host.Run(ctx)
}

// forumOptions carries the configured rounds, temperatures and speaking order.
func (c *Coordinator) forumOptions(maxRounds int, progress func(forum.Event)) []forum.Option {
	if maxRounds <= 0 {
		maxRounds = c.cfg.Forum.MaxRounds
	}
	opts := []forum.Option{
		forum.WithMaxRounds(maxRounds),
		forum.WithProgress(progress),
		forum.WithGuidanceTemperature(c.cfg.Forum.GuidanceTemperature),
		forum.WithConclusionTemperature(c.cfg.Forum.ConclusionTemperature),
	}
	if c.cfg.Forum.Shuffle {
		opts = append(opts, forum.WithOrder(forum.OrderShuffled), forum.WithSeed(c.cfg.Forum.Seed))
	}
	return opts
}

// RunPlanner solves task with the dynamic planner. With a memory store the
// session's earlier facts and steps are loaded first and new ones written
// through.
func (c *Coordinator) RunPlanner(ctx context.Context, task string, maxIterations int, progress func(planner.Iteration)) (planner.Result, error) {
	if maxIterations <= 0 {
		maxIterations = c.cfg.Planner.MaxIterations
	}
	mem, err := c.plannerMemory(ctx)
	if err != nil {
		return planner.Result{}, err
	}

	c.state.Update(KeyPlannerTask, task, "Planner")
	p := planner.New(task, c.oracle, c.catalog,
		planner.WithMaxIterations(maxIterations),
		planner.WithTemperature(c.cfg.Planner.Temperature),
		planner.WithMemory(mem),
		planner.WithProgress(progress),
		planner.WithLogger(c.logger),
		planner.WithSession(c.session),
	)
	res, err := p.Run(ctx)
	if err != nil {
		return res, err
	}
	c.state.Update(KeyPlannerAnswer, res.FinalAnswer, "Planner")
	return res, nil
}

func (c *Coordinator) plannerMemory(ctx context.Context) (*memory.Memory, error) {
	if c.store == nil {
		return memory.New(memory.WithLogger(c.logger)), nil
	}
	return memory.Restore(ctx, c.store, c.session, memory.WithLogger(c.logger))
}

// RunResearch runs the bus-driven research pipeline over subTopics and
// returns the final analysis.
func (c *Coordinator) RunResearch(ctx context.Context, mainTopic string, subTopics []string) (string, error) {
	c.state.Update(KeyResearchTopic, mainTopic, team.CoordinatorID)
	return c.researchPipeline().Run(ctx, mainTopic, subTopics)
}

// researchPipeline subscribes the pipeline to the bus once per session.
func (c *Coordinator) researchPipeline() *team.ResearchPipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline == nil {
		c.pipeline = team.NewResearchPipeline(c.oracle,
			team.WithState(c.state),
			team.WithBus(c.bus),
			team.WithLogger(c.logger),
		)
	}
	return c.pipeline
}

// RunTeam runs the researcher, analyst and writer team on task. The web
// search tool is used for research when it is registered.
func (c *Coordinator) RunTeam(ctx context.Context, task string, progress func(team.Stage, string)) (team.Report, error) {
	opts := []team.Option{
		team.WithState(c.state),
		team.WithBus(c.bus),
		team.WithLogger(c.logger),
		team.WithConcurrency(c.cfg.Team.Concurrency),
		team.WithMaxTopics(c.cfg.Team.MaxTopics),
		team.WithProgress(progress),
	}
	if search, _, ok := c.catalog.Lookup("web_search"); ok {
		opts = append(opts, team.WithSearch(search))
	}
	return team.NewTeam(c.oracle, opts...).Run(ctx, task)
}

// Close releases every backend the coordinator opened itself.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
