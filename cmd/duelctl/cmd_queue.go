package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// queueCmd groups the queue inspection commands
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the matchmaking queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live queue entries in join order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := deps.Queue.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USER\tSTANCE\tPING\tFEE\tBELT\tDURATION\tWAITING")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%t\t%d\t%s\n",
				e.UserID, e.StanceType, e.PingMs, e.EntryFee, e.SafetyBelt, e.Duration,
				time.Since(e.JoinedAt).Truncate(time.Second))
		}
		return w.Flush()
	},
}

var queueDiagnoseCmd = &cobra.Command{
	Use:   "diagnose <user-a> <user-b>",
	Short: "Explain why two queued users would or would not be paired",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := parseID(args[1])
		if err != nil {
			return err
		}
		reasons, err := deps.Queue.Diagnose(cmd.Context(), a, b)
		if err != nil {
			return err
		}
		if len(reasons) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "compatible")
			return nil
		}
		for _, r := range reasons {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var queueExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Remove queue entries whose TTL has passed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := deps.Queue.ExpireQueue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d entries\n", n)
		return nil
	},
}

// matchmakeCmd runs a single pass without waiting for the periodic job
var matchmakeCmd = &cobra.Command{
	Use:   "matchmake",
	Short: "Pair compatible queue entries now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		matches, err := deps.Queue.Matchmake(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range matches {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s vs %s\n", m.ID, m.A.UserID, m.B.UserID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d matches\n", len(matches))
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd, queueDiagnoseCmd, queueExpireCmd)
}
