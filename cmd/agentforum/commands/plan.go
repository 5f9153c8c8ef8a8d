package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/planner"
)

var planIterations int

var planCmd = &cobra.Command{
	Use:   "plan TASK",
	Short: "Solve a task with the dynamic planner",
	Long: `Run the dynamic planner: each iteration the oracle decides whether to call
a tool, remember a fact, or answer. The calculator and time tools are always
available; web_search is added when TAVILY_API_KEY is set.

Examples:
  agentforum plan "What is 17% of 2340?"
  agentforum plan --max-iterations 4 "Who won the 2024 physics Nobel?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVarP(&planIterations, "max-iterations", "i", 0, "Iteration budget (default from config)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if planIterations > 0 {
			cfg.Planner.MaxIterations = planIterations
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	s.out.Step("tools: %s", toolNames(s))
	res, err := s.coord.RunPlanner(s.ctx, strings.Join(args, " "), 0, s.out.Iteration)
	if err != nil {
		var re *planner.RunError
		if errors.As(err, &re) {
			s.out.Memory(re.Memory)
		}
		return s.out.Error("Planner failed", err.Error())
	}
	s.out.Memory(res.Memory)
	s.out.Success("answer: %s", res.FinalAnswer)
	return nil
}

func toolNames(s *session) string {
	specs := s.coord.Catalog().Specs()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}
