package main

import (
	"fmt"

	"github.com/newthinker/tradedesk/internal/core"
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies",
	Args:  cobra.NoArgs,
	RunE:  runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	a, cleanup, err := startApp(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Sessions().Session().LoggedIn {
		return core.ErrNotLoggedIn
	}
	if err := a.Orchestrator().CatalogError(); err != nil {
		return fmt.Errorf("failed to fetch strategies: %s", core.UserMessage(err))
	}

	for _, name := range a.Orchestrator().Catalog() {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
