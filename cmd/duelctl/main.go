// Command duelctl is the operator CLI for the duel backend. It talks to the
// same Postgres (and optional Redis) as the API and runs the matchmaking,
// queue and ledger operations directly.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/duelarena/backend/internal/app"
	"github.com/duelarena/backend/internal/config"
)

var (
	logLevel string

	// deps is set by PersistentPreRunE for every subcommand.
	deps *app.App
)

var rootCmd = &cobra.Command{
	Use:   "duelctl",
	Short: "Operate the duel matchmaking queue, matches and credit ledger",
	Long: `duelctl connects to the configured database and runs operator tasks.

Available command groups:
  queue     - Inspect, diagnose and sweep the matchmaking queue
  matchmake - Run one matchmaking pass
  match     - Show or cancel a match
  ledger    - Check balances, reconcile and grant credits`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		a, err := app.New(cmd.Context(), cfg, app.NewLogger(cfg.LogLevel))
		if err != nil {
			return err
		}
		deps = a
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if deps != nil {
			deps.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL")
	rootCmd.AddCommand(queueCmd, matchmakeCmd, matchCmd, ledgerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	return id, nil
}
