package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/forum"
)

var (
	forumRounds  int
	forumShuffle bool
	forumSeed    int64
)

var forumCmd = &cobra.Command{
	Use:   "forum TOPIC",
	Short: "Hold a guided expert discussion on a topic",
	Long: `Hold a forum: every expert speaks once per round, seeing what the others
said before, and the host steers between rounds and concludes at the end.

Examples:
  agentforum forum "Will remote work outlast the decade?"
  agentforum forum --rounds 2 --shuffle --seed 7 "Nuclear power in 2040"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runForum,
}

func init() {
	forumCmd.Flags().IntVarP(&forumRounds, "rounds", "r", 0, "Number of rounds (default from config)")
	forumCmd.Flags().BoolVar(&forumShuffle, "shuffle", false, "Shuffle the speaking order each round")
	forumCmd.Flags().Int64Var(&forumSeed, "seed", 0, "Seed for --shuffle")
	rootCmd.AddCommand(forumCmd)
}

func runForum(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd, func(cfg *config.Config) {
		if forumRounds > 0 {
			cfg.Forum.MaxRounds = forumRounds
		}
		if forumShuffle {
			cfg.Forum.Shuffle = true
			cfg.Forum.Seed = forumSeed
		}
	})
	if err != nil {
		return err
	}
	defer s.close()

	topic := strings.Join(args, " ")
	_, err = s.coord.RunForum(s.ctx, topic, 0, s.out.ForumEvent)
	if err != nil {
		var se *forum.SessionError
		if errors.As(err, &se) {
			s.out.Warning("discussion so far:")
			s.out.Discussion(se.History)
			return s.out.Error("Forum failed", err.Error(),
				fmt.Sprintf("phase: %s", se.Phase), fmt.Sprintf("round: %d", se.Round))
		}
		return s.out.Error("Forum failed", err.Error())
	}
	s.out.Success("forum finished")
	return nil
}
