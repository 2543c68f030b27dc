package repl

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/types"
)

// cmdStatus shows the most recent agent executions
func (r *REPL) cmdStatus(args []string) error {
	execs, err := r.store.GetRecentAgentExecutions(r.ctx, "", 15)
	if err != nil {
		return fmt.Errorf("failed to get agent executions: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("Recent Agent Runs"))
	if len(execs) == 0 {
		fmt.Println("  No runs recorded yet. Use 'run all' to start the roster.")
		fmt.Println()
		return nil
	}

	for _, e := range execs {
		marker := green("✓")
		if e.Status == types.ExecutionFailed {
			marker = red("✗")
		}
		fmt.Printf("  %s %-20s %6dms  %s\n", marker, e.AgentName, e.DurationMs, e.OutputSummary)
		if e.Error != "" {
			fmt.Printf("      %s\n", red(firstLine(e.Error)))
		}
	}
	fmt.Println()
	return nil
}

// cmdRun dispatches one agent or the whole roster
func (r *REPL) cmdRun(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: run <agent|all> (agents: %s)", strings.Join(r.dispatcher.ValidActions(), ", "))
	}

	action := args[0]
	if action != "all" && !strings.HasPrefix(action, "run_") {
		action = "run_" + action
	}
	if action == "all" {
		action = agent.ActionRunAll
	}

	fmt.Printf("Running %s...\n", action)
	result, err := r.dispatcher.Dispatch(r.ctx, action)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	for _, e := range result.Executions {
		if e.Status == types.ExecutionFailed {
			fmt.Printf("  %s %s: %s\n", red("✗"), e.AgentName, firstLine(e.Error))
			continue
		}
		fmt.Printf("  %s %s: %s\n", green("✓"), e.AgentName, e.OutputSummary)
	}
	return nil
}

// cmdSearch queries the knowledge base
func (r *REPL) cmdSearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: search <query>")
	}
	query := strings.Join(args, " ")

	items, err := r.store.SearchKnowledge(r.ctx, query, 10)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s %q\n\n", cyan("Knowledge matching"), query)
	if len(items) == 0 {
		fmt.Println("  No matches.")
		fmt.Println()
		return nil
	}
	for _, item := range items {
		fmt.Printf("  [%.2f] %s (%s)\n", item.Confidence, item.Title, item.Category)
		fmt.Printf("         %s\n", item.Content)
	}
	fmt.Println()
	return nil
}

// cmdFrictions lists recent friction events, optionally filtered by severity
func (r *REPL) cmdFrictions(args []string) error {
	filter := types.FrictionFilter{
		Since: time.Now().UTC().Add(-24 * time.Hour),
		Limit: 20,
	}
	if len(args) > 0 {
		sev := types.Severity(args[0])
		if !sev.IsValid() {
			return fmt.Errorf("unknown severity %q", args[0])
		}
		filter.Severity = sev
	}

	frictions, err := r.store.GetFrictionEvents(r.ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to get frictions: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Friction (last 24h)"))
	if len(frictions) == 0 {
		fmt.Println("  None detected.")
		fmt.Println()
		return nil
	}
	for _, f := range frictions {
		fmt.Printf("  %-8s %-12s %s", f.Severity, f.FrictionType, f.Screen)
		if f.Element != "" {
			fmt.Printf(" %s", f.Element)
		}
		fmt.Printf(" (x%d)\n", f.Count)
		if f.SuggestedFix != "" {
			fmt.Printf("           fix: %s\n", f.SuggestedFix)
		}
	}
	fmt.Println()
	return nil
}

// cmdProposals lists automation proposals ordered as stored, ROI recomputed
func (r *REPL) cmdProposals(args []string) error {
	proposals, err := r.store.GetAutomationProposals(r.ctx, time.Time{}, 20)
	if err != nil {
		return fmt.Errorf("failed to get proposals: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Automation Proposals"))
	if len(proposals) == 0 {
		fmt.Println("  None yet. The scout needs more traffic.")
		fmt.Println()
		return nil
	}
	for _, p := range proposals {
		fmt.Printf("  %-10s %s\n", p.Status, p.Title)
		fmt.Printf("             %.1f h/month saved, %.0f dev hours (%s)\n",
			p.ROIHoursPerMonth(), p.EstimatedDevHours, p.Category)
	}
	fmt.Println()
	return nil
}

// cmdHealth shows the latest health snapshots per component
func (r *REPL) cmdHealth(args []string) error {
	checks, err := r.store.GetRecentHealthChecks(r.ctx, 6)
	if err != nil {
		return fmt.Errorf("failed to get health checks: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("System Health"))
	if len(checks) == 0 {
		fmt.Println("  No snapshots yet. Use 'run health_rover'.")
		fmt.Println()
		return nil
	}
	for _, c := range checks {
		marker := green(string(c.Status))
		switch c.Status {
		case types.HealthDegraded:
			marker = yellow(string(c.Status))
		case types.HealthUnhealthy:
			marker = red(string(c.Status))
		}
		fmt.Printf("  %-10s %s (%d anomalies)\n", c.Component, marker, len(c.Anomalies))
	}
	fmt.Println()
	return nil
}

// cmdCosts shows the latest cost records
func (r *REPL) cmdCosts(args []string) error {
	records, err := r.store.GetCostRecords(r.ctx, time.Time{}, 10)
	if err != nil {
		return fmt.Errorf("failed to get cost records: %w", err)
	}

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("Cost Tracking"))
	if len(records) == 0 {
		fmt.Println("  No records yet. Use 'run cost_watcher'.")
		fmt.Println()
		return nil
	}
	for _, rec := range records {
		fmt.Printf("  %-14s $%.2f actual, $%.2f projected of $%.2f budget\n",
			rec.Service, rec.ActualCost, rec.ProjectedCost, rec.Budget)
		for _, a := range rec.Alerts {
			fmt.Printf("      %s %s\n", red("!"), a.Message)
		}
	}
	fmt.Println()
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
