package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one full refresh cycle now",
	Long: `Run one refresh cycle: reconcile the roster, refresh the stalest
subscribers in waves, bootstrap new subscribers, merge donations and rescore.

The run lock is honoured, so this is safe while a worker is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Refresh.RunCycle(cmd.Context())
		if report != nil {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cycle %s (%s)\n", report.CycleID, report.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  subscribers  %d\n", report.Subscribers)
			fmt.Fprintf(out, "  pruned       %d\n", report.Pruned)
			fmt.Fprintf(out, "  refreshed    %d of %d in %d waves (%d skipped)\n", report.Refreshed, report.Selected, report.Waves, report.Skipped)
			fmt.Fprintf(out, "  created      %d\n", report.Created)
			fmt.Fprintf(out, "  donations    %d rows merged\n", report.DonationsMerged)
			fmt.Fprintf(out, "  points       %d of %d changed\n", report.PointsChanged, report.Scored)
		}
		return err
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete rows for accounts no longer subscribed",
	Long: `Compare stored rows with the community roster and delete every
non-donator row whose author has unsubscribed. An empty roster deletes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		pruned, err := a.Refresh.Prune(cmd.Context())
		if err != nil {
			return err
		}
		if len(pruned) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to prune")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d: %s\n", len(pruned), strings.Join(pruned, ", "))
		return nil
	},
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute points for every stored row",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		scored, changed, err := a.Refresh.Rescore(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scored %d rows, %d changed\n", scored, changed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd, pruneCmd, rescoreCmd)
}
