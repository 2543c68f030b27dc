package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long:  `Display recent agent runs, the latest health snapshots, and table sizes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Spyglass Status ==="))

		execs, err := store.GetRecentAgentExecutions(ctx, "", 10)
		if err != nil {
			return fmt.Errorf("failed to get agent executions: %w", err)
		}
		fmt.Printf("%s\n", yellow("Recent Agent Runs:"))
		if len(execs) == 0 {
			fmt.Printf("  %s\n", gray("No runs recorded"))
		}
		for _, e := range execs {
			marker := green("●")
			if e.Status == types.ExecutionFailed {
				marker = red("●")
			}
			fmt.Printf("  %s %-22s %s %s\n", marker, e.AgentName,
				e.CompletedAt.Local().Format("15:04:05"), e.OutputSummary)
		}
		fmt.Println()

		checks, err := store.GetRecentHealthChecks(ctx, 3)
		if err != nil {
			return fmt.Errorf("failed to get health checks: %w", err)
		}
		fmt.Printf("%s\n", yellow("Health:"))
		if len(checks) == 0 {
			fmt.Printf("  %s\n", gray("No snapshots yet, run the health rover"))
		}
		for _, c := range checks {
			marker := green(string(c.Status))
			switch c.Status {
			case types.HealthDegraded:
				marker = yellow(string(c.Status))
			case types.HealthUnhealthy:
				marker = red(string(c.Status))
			}
			fmt.Printf("  %-10s %s\n", c.Component, marker)
		}
		fmt.Println()

		counts, err := store.TableRowCounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to get row counts: %w", err)
		}
		tables := make([]string, 0, len(counts))
		for table := range counts {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		fmt.Printf("%s\n", yellow("Storage:"))
		for _, table := range tables {
			fmt.Printf("  %-22s %d rows\n", table, counts[table])
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
