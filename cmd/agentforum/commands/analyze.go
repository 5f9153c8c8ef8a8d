package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/forum"
)

var analyzeRounds int

var analyzeCmd = &cobra.Command{
	Use:   "analyze TOPIC",
	Short: "Collect material with the panel, debate it, and write a report",
	Long: `Every panel expert first gathers material on the topic, the panel then
debates it in a forum, and a report writer turns the material and the forum
conclusion into a structured analysis report.

Example:
  agentforum analyze --rounds 2 "Blockchain in retail banking"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeRounds, "rounds", "r", 0, "Forum rounds (default from config)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if analyzeRounds > 0 {
			cfg.Forum.MaxRounds = analyzeRounds
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.coord.RunAnalysis(s.ctx, strings.Join(args, " "), 0, s.out.Stage, s.out.ForumEvent)
	if err != nil {
		var se *forum.SessionError
		if errors.As(err, &se) {
			s.out.Warning("discussion so far:")
			s.out.Discussion(se.History)
			return s.out.Error("Analysis failed", err.Error(),
				fmt.Sprintf("phase: %s", se.Phase), fmt.Sprintf("round: %d", se.Round))
		}
		return s.out.Error("Analysis failed", err.Error())
	}
	s.out.Success("analysis report ready (%d contributions)", len(res.Research))
	return nil
}
