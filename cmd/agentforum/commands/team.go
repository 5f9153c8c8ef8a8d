package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/agentforum/src/config"
)

var teamConcurrency int

var teamCmd = &cobra.Command{
	Use:   "team TASK",
	Short: "Have a coordinator, researcher, analyst and writer produce a report",
	Long: `The coordinator splits the task into topics, the researcher covers them in
parallel (using web_search when TAVILY_API_KEY is set), then the analyst,
the writer and a final coordinator review produce the report.

Example:
  agentforum team "State of solid-state batteries"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTeam,
}

func init() {
	teamCmd.Flags().IntVarP(&teamConcurrency, "concurrency", "c", 0, "Topics researched at once (default from config)")
	rootCmd.AddCommand(teamCmd)
}

func runTeam(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if teamConcurrency > 0 {
			cfg.Team.Concurrency = teamConcurrency
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	rep, err := s.coord.RunTeam(s.ctx, strings.Join(args, " "), s.out.Stage)
	if err != nil {
		return s.out.Error("Team run failed", err.Error())
	}
	s.out.Success("report ready (%d topics)", len(rep.Topics))
	return nil
}
