package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/duelarena/backend/internal/models"
)

var reconcile bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Credit ledger operations",
}

var ledgerBalanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's balance, optionally checked against the event log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := parseID(args[0])
		if err != nil {
			return err
		}
		if reconcile {
			rec, err := deps.Ledger.Reconcile(cmd.Context(), user)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, rec); err != nil {
				return err
			}
			if !rec.InSync {
				return fmt.Errorf("balance for %s does not match its ledger", user)
			}
			return nil
		}
		bal, err := deps.Ledger.Balance(cmd.Context(), user)
		if err != nil {
			return err
		}
		return printJSON(cmd, bal)
	},
}

var ledgerGrantCmd = &cobra.Command{
	Use:   "grant <user-id> <amount>",
	Short: "Grant credits to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := parseID(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		if err := deps.Ledger.Grant(cmd.Context(), user, amount, models.ReasonAdminGrant); err != nil {
			return err
		}
		bal, err := deps.Ledger.Balance(cmd.Context(), user)
		if err != nil {
			return err
		}
		return printJSON(cmd, bal)
	},
}

func init() {
	ledgerBalanceCmd.Flags().BoolVar(&reconcile, "reconcile", false, "Fold the event log and compare it with the cached balance")
	ledgerCmd.AddCommand(ledgerBalanceCmd, ledgerGrantCmd)
}
