package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run [agent|all]",
	Short: "Run one agent or the whole roster once",
	Long: `Run a pipeline agent immediately instead of waiting for its schedule.
With "all" (the default) every agent runs in order; a failing agent does
not stop the rest.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dispatcher, err := newDispatcher()
		if err != nil {
			return err
		}

		action := agent.ActionRunAll
		if len(args) == 1 && args[0] != "all" {
			action = args[0]
			if !strings.HasPrefix(action, "run_") {
				action = "run_" + action
			}
		}

		result, err := dispatcher.Dispatch(cmd.Context(), action)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		failed := 0
		for _, e := range result.Executions {
			if e.Status == types.ExecutionFailed {
				failed++
				fmt.Printf("%s %-22s %s\n", red("✗"), e.AgentName, e.Error)
				continue
			}
			fmt.Printf("%s %-22s %s (%dms)\n", green("✓"), e.AgentName, e.OutputSummary, e.DurationMs)
		}
		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\n%d of %d agents failed\n", failed, len(result.Executions))
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
