package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skatehive-leaderboard/internal/models"
	"github.com/skatehive-leaderboard/internal/scoring"
)

var historyLimit int

var scoreCmd = &cobra.Command{
	Use:   "score <user>",
	Short: "Explain the score of one stored row",
	Long: `Score the stored row for <user> with the configured weight table and
print every term. Nothing is written.`,
	Example: `  leaderctl score gnarly
  SCORING_WEIGHTS=v1 leaderctl score gnarly`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.Leaderboard.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		result := a.Calculator.Calculate(entry, time.Now().UTC())
		return printBreakdown(cmd.OutOrStdout(), entry, result)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "Show recorded points for one user, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.History == nil {
			return fmt.Errorf("score history needs CLICKHOUSE_ENABLED=true")
		}
		rows, err := a.History.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDED\tPOINTS\tRAW\tFLOOR\tCYCLE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%.2f\t%v\t%s\n", r.RecordedAt.Format(time.RFC3339), r.Points, r.RawTotal, r.Floor, r.CycleID)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows to show")
	rootCmd.AddCommand(scoreCmd, historyCmd)
}

// printBreakdown writes one line per scoring term.
func printBreakdown(out io.Writer, e *models.LeaderboardEntry, r scoring.Result) error {
	b := r.Breakdown
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "%s\t\n", e.HiveAuthor)
	for _, term := range []struct {
		name  string
		value float64
	}{
		{"hive balance", b.HiveBalance},
		{"hive power", b.HPBalance},
		{"hbd savings", b.HBDSavings},
		{"posts", b.PostsScore},
		{"gnars balance", b.GnarsBalance},
		{"gnars votes", b.GnarsVotes},
		{"voting power", b.VotingPower},
		{"curator delegation", b.Delegation},
		{"skatehive nft", b.NFT},
		{"witness vote", b.Witness},
		{"linked wallet", b.Wallet},
		{"donations", b.Donations},
		{"zero balance penalty", b.ZeroPenalty},
		{"inactivity", -b.Inactivity},
	} {
		fmt.Fprintf(w, "%s\t%.2f\t\n", term.name, term.value)
	}
	fmt.Fprintf(w, "raw total\t%.2f\t\n", b.RawTotal)

	switch {
	case b.InactiveDays < 0:
		fmt.Fprintf(w, "last post\tnever\t\n")
	default:
		fmt.Fprintf(w, "last post\t%d days ago\t\n", b.InactiveDays)
	}
	if b.FloorApplied {
		fmt.Fprintf(w, "floor\tposts score used\t\n")
	}
	fmt.Fprintf(w, "points\t%d (stored %d)\t\n", r.Points, e.Points)
	return w.Flush()
}
