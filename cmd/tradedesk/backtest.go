package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/newthinker/tradedesk/internal/config"
	"github.com/newthinker/tradedesk/internal/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backtestTimerange string

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a backtest on a strategy",
	Long: `Run a strategy on the backtesting service and print the result as JSON.
The strategy must be one of those listed by the strategies command.`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringVar(&backtestTimerange, "timerange", "", "backtest window YYYYMMDD-YYYYMMDD (default from config)")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	strategy := args[0]

	a, cleanup, err := startApp(cmd, func(cfg *config.Config) {
		if backtestTimerange != "" {
			cfg.Backtest.Timerange = backtestTimerange
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Sessions().Session().LoggedIn {
		return core.ErrNotLoggedIn
	}

	orch := a.Orchestrator()
	if err := orch.CatalogError(); err != nil {
		a.Logger().Warn("strategy list unavailable, not checking name", zap.Error(err))
	} else if !slices.Contains(orch.Catalog(), strategy) {
		return fmt.Errorf("unknown strategy %q", strategy)
	}

	orch.SelectStrategy(strategy)
	run, err := orch.RunBacktest(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest failed: %s", core.UserMessage(err))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, run.Result, "", "  "); err != nil {
		out.Reset()
		out.Write(run.Result)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.String())

	a.Logger().Debug("backtest finished",
		zap.String("run_id", run.ID),
		zap.Duration("duration", run.Duration()),
	)
	return nil
}
