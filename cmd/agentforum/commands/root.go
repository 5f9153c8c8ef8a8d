package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	agent "github.com/Protocol-Lattice/agentforum"
	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/logging"
	"github.com/Protocol-Lattice/agentforum/src/printer"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

var (
	configPath string
	provider   string
	model      string
	logLevel   string
	devLogs    bool
)

var rootCmd = &cobra.Command{
	Use:   "agentforum",
	Short: "Multi-agent forum, planner and research team",
	Long: `agentforum runs groups of reasoning workers against a shared blackboard.

  forum     experts discuss a topic over bounded rounds, guided by a host
  plan      a dynamic planner picks tools step by step until it can answer
  research  a researcher and an analyst cooperate over the message bus
  team      a coordinator, researcher, analyst and writer produce a report

Settings come from agentforum.yml, .env and the environment; flags win.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to agentforum.yml (default ./agentforum.yml when present)")
	flags.StringVar(&provider, "provider", "", "Oracle provider: openai, anthropic, gemini, ollama or dummy")
	flags.StringVar(&model, "model", "", "Model name passed to the provider (defaults per provider)")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVar(&devLogs, "dev", false, "Human-readable development logs")
}

// session is what every subcommand needs: a coordinator, a printer and a
// context cancelled on interrupt.
type session struct {
	ctx    context.Context
	coord  *agent.Coordinator
	out    *printer.Printer
	logger *zap.Logger
	stop   func()
}

func (s *session) close() {
	if err := s.coord.Close(); err != nil {
		s.logger.Warn("close coordinator", zap.Error(err))
	}
	_ = s.logger.Sync()
	s.stop()
}

// coordinatorFactory builds the coordinator for a command. Tests replace it.
var coordinatorFactory = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*agent.Coordinator, error) {
	return agent.New(ctx,
		agent.WithConfig(cfg),
		agent.WithLogger(logger),
		agent.WithTools(&tools.CalculatorTool{}, &tools.TimeTool{}),
	)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if model != "" {
		cfg.Model = model
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func openSession(cmd *cobra.Command, mutate func(*config.Config)) (*session, error) {
	out := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig()
	if err != nil {
		return nil, out.Error("Invalid configuration", err.Error())
	}
	if mutate != nil {
		mutate(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, out.Error("Invalid configuration", err.Error())
		}
	}

	logger, err := logging.New(cfg.LogLevel, devLogs)
	if err != nil {
		return nil, out.Error("Invalid log level", err.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	coord, err := coordinatorFactory(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, out.Error("Could not start agentforum", err.Error(),
			"provider: "+cfg.Provider,
			"check the provider API key and any configured storage endpoints")
	}
	return &session{ctx: ctx, coord: coord, out: out, logger: logger, stop: stop}, nil
}
