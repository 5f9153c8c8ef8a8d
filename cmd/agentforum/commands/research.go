package commands

import (
	"github.com/spf13/cobra"
)

var (
	researchSubs     []string
	researchMessages bool
)

var researchCmd = &cobra.Command{
	Use:   "research TOPIC --sub SUBTOPIC...",
	Short: "Research sub-topics and analyse them over the message bus",
	Long: `Send one research request per sub-topic to the researcher; the analyst
waits for all of them and writes the final analysis.

Example:
  agentforum research "AI in healthcare" --sub diagnostics --sub "drug discovery"`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringSliceVarP(&researchSubs, "sub", "s", nil, "Sub-topic to research (repeatable)")
	researchCmd.Flags().BoolVar(&researchMessages, "messages", false, "Print the bus history afterwards")
	_ = researchCmd.MarkFlagRequired("sub")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, nil)
	if err != nil {
		return err
	}
	defer s.close()

	for _, sub := range researchSubs {
		s.out.Step("researching %s", sub)
	}
	analysis, err := s.coord.RunResearch(s.ctx, args[0], researchSubs)
	if researchMessages {
		s.out.Messages(s.coord.Bus().History())
	}
	if err != nil {
		return s.out.Error("Research failed", err.Error())
	}
	s.out.Printf("%s\n", analysis)
	s.out.Success("analysis complete")
	return nil
}
