package main

import (
	"github.com/spf13/cobra"
)

var cancelReason string

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show or cancel matches",
}

var matchShowCmd = &cobra.Command{
	Use:   "show <match-id>",
	Short: "Print a match as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		m, err := deps.Settlement.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	},
}

// matchCancelCmd releases both holds; settled or cancelled matches are rejected
var matchCancelCmd = &cobra.Command{
	Use:   "cancel <match-id>",
	Short: "Cancel a match and release both holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		m, err := deps.Settlement.Cancel(cmd.Context(), id, cancelReason)
		if err != nil {
			return err
		}
		return printJSON(cmd, m)
	},
}

func init() {
	matchCancelCmd.Flags().StringVar(&cancelReason, "reason", "operator", "Cancellation reason recorded on the match")
	matchCmd.AddCommand(matchShowCmd, matchCancelCmd)
}
