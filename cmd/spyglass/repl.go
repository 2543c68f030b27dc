package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start the interactive operations console",
	Long: `Start an interactive shell for inspecting the pipeline:
searching the knowledge base, listing frictions and proposals, and
triggering agent runs.

Type 'help' in the console for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dispatcher, err := newDispatcher()
		if err != nil {
			return err
		}

		r, err := repl.New(&repl.Config{Store: store, Dispatcher: dispatcher})
		if err != nil {
			return fmt.Errorf("failed to create console: %w", err)
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
