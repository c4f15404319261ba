package main

import (
	"fmt"

	"github.com/newthinker/tradedesk/internal/core"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backtesting service is up",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	h, err := a.Client().Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s unreachable: %s", a.Client().BaseURL(), core.UserMessage(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", a.Client().BaseURL(), h.Status)
	if h.Version != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (version %s)", h.Version)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
