package main

import (
	"os"

	"github.com/newthinker/tradedesk/internal/config"
	"github.com/newthinker/tradedesk/internal/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive terminal UI",
	Args:  cobra.NoArgs,
	RunE:  runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	// The UI owns the terminal; logs need a file of their own.
	a, cleanup, err := startApp(cmd, func(cfg *config.Config) {
		if cfg.Log.File == "" {
			cfg.Log.File = os.DevNull
		}
	})
	if err != nil {
		return err
	}
	defer cleanup()

	return tui.Run(cmd.Context(), a.Sessions(), a.Orchestrator())
}
