// Package cost tracks month-to-date spend per service against configured
// budgets and projects end-of-month totals with a linear day-of-month
// extrapolation.
package cost

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

// alertFraction of budget at which the projection raises an alert
const alertFraction = 0.8

// ServiceBudget configures one watched service. Token-priced services are
// metered from recorded oracle usage; flat services prorate a fixed monthly
// cost.
type ServiceBudget struct {
	Name   string  `yaml:"name"`
	Budget float64 `yaml:"budget"`

	// PricePerMillionTokens meters the service from oracle token usage
	PricePerMillionTokens float64 `yaml:"price_per_million_tokens,omitempty"`

	// MonthlyCost is a flat subscription amount
	MonthlyCost float64 `yaml:"monthly_cost,omitempty"`
}

// Budgets is the watcher configuration
type Budgets struct {
	Services []ServiceBudget `yaml:"services"`
}

// DefaultBudgets covers the one service the pipeline always spends on
func DefaultBudgets() *Budgets {
	return &Budgets{
		Services: []ServiceBudget{
			{Name: "ai_oracle", Budget: 100, PricePerMillionTokens: 9},
		},
	}
}

// LoadBudgets reads a budgets YAML file
func LoadBudgets(path string) (*Budgets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read budgets file: %w", err)
	}
	var b Budgets
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse budgets file %s: %w", path, err)
	}
	if len(b.Services) == 0 {
		return nil, fmt.Errorf("budgets file %s defines no services", path)
	}
	return &b, nil
}

// Watcher snapshots spend per configured service
type Watcher struct {
	store   storage.Storage
	budgets *Budgets
	now     func() time.Time
}

// New creates a cost watcher. A nil budgets falls back to DefaultBudgets.
func New(store storage.Storage, budgets *Budgets) *Watcher {
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	return &Watcher{store: store, budgets: budgets, now: time.Now}
}

// Name implements agent.Agent
func (w *Watcher) Name() string { return "cost_watcher" }

// Run writes one CostRecord per service with actual month-to-date spend, a
// linear projection, and alerts when the projection crosses the budget
// threshold
func (w *Watcher) Run(ctx context.Context) (*agent.Report, error) {
	now := w.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	daysInMonth := monthEnd.Sub(monthStart).Hours() / 24
	dayOfMonth := float64(now.Day())

	alertCount := 0
	for _, svc := range w.budgets.Services {
		actual, usage, err := w.actualSpend(ctx, svc, monthStart, dayOfMonth, daysInMonth)
		if err != nil {
			return nil, fmt.Errorf("failed to compute spend for %s: %w", svc.Name, err)
		}

		projected := actual * daysInMonth / dayOfMonth

		var alerts []types.CostAlert
		if svc.Budget > 0 && projected > alertFraction*svc.Budget {
			alerts = append(alerts, types.CostAlert{
				Type: "projected_overspend",
				Message: fmt.Sprintf("%s projected at $%.2f against a $%.2f budget",
					svc.Name, projected, svc.Budget),
			})
			alertCount++
		}

		record := &types.CostRecord{
			ID:            uuid.New().String(),
			Service:       svc.Name,
			PeriodStart:   monthStart,
			PeriodEnd:     monthEnd,
			ActualCost:    actual,
			ProjectedCost: projected,
			Budget:        svc.Budget,
			UsageMetrics:  usage,
			Alerts:        alerts,
			RecordedAt:    now,
		}
		if err := w.store.StoreCostRecord(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to store cost record for %s: %w", svc.Name, err)
		}
	}

	return &agent.Report{
		Summary:        fmt.Sprintf("tracked %d services, %d alerts", len(w.budgets.Services), alertCount),
		ItemsProcessed: len(w.budgets.Services),
	}, nil
}

// actualSpend computes month-to-date cost for one service
func (w *Watcher) actualSpend(ctx context.Context, svc ServiceBudget, monthStart time.Time, dayOfMonth, daysInMonth float64) (float64, map[string]interface{}, error) {
	if svc.PricePerMillionTokens > 0 {
		tokens, err := w.store.SumAITokensUsed(ctx, monthStart)
		if err != nil {
			return 0, nil, err
		}
		actual := float64(tokens) / 1_000_000 * svc.PricePerMillionTokens
		return actual, map[string]interface{}{"tokens": tokens}, nil
	}

	// Flat services accrue linearly through the month
	actual := svc.MonthlyCost * dayOfMonth / daysInMonth
	return actual, map[string]interface{}{"monthly_cost": svc.MonthlyCost}, nil
}
