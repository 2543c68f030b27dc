// Package procmine reconstructs per-session navigation paths and aggregates
// them into process variants with frequency, timing and bottleneck stats.
package procmine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const (
	// DefaultWindow is the navigation lookback per run
	DefaultWindow = 60 * time.Minute

	// minNavsPerSession discards sessions with no process to mine
	minNavsPerSession = 2

	// minOccurrences is the variant support threshold
	minOccurrences = 2

	// maxTraces caps persisted traces per run, ranked by frequency
	maxTraces = 50
)

// Miner aggregates session navigation into process variants
type Miner struct {
	store  storage.Storage
	window time.Duration
}

// New creates a process miner with the default window
func New(store storage.Storage) *Miner {
	return &Miner{store: store, window: DefaultWindow}
}

// Name implements agent.Agent
func (m *Miner) Name() string { return "process_miner" }

// sessionPath is one session's ordered screen sequence
type sessionPath struct {
	tenantID string
	userID   string
	screens  []string
	times    []time.Time
}

// Run mines the recent navigation window and upserts the top variants.
// Variants observed in prior runs accumulate frequency through the store's
// upsert keyed on (tenant, variant).
func (m *Miner) Run(ctx context.Context) (*agent.Report, error) {
	now := time.Now().UTC()
	navs, err := m.store.GetBehaviorEvents(ctx, events.Filter{
		Type:      events.EventTypeNavigate,
		After:     now.Add(-m.window),
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation window: %w", err)
	}

	paths := buildSessionPaths(navs)
	traces := mineVariants(paths, now)

	sort.Slice(traces, func(i, j int) bool { return traces[i].Frequency > traces[j].Frequency })
	if len(traces) > maxTraces {
		traces = traces[:maxTraces]
	}

	if err := m.store.UpsertProcessTraces(ctx, traces); err != nil {
		return nil, fmt.Errorf("failed to store process traces: %w", err)
	}

	return &agent.Report{
		Summary:        fmt.Sprintf("mined %d process variants from %d sessions", len(traces), len(paths)),
		ItemsProcessed: len(traces),
	}, nil
}

// buildSessionPaths groups navigation events by session, in time order,
// dropping sessions below the minimum length
func buildSessionPaths(navs []*events.BehaviorEvent) []sessionPath {
	bySession := make(map[string][]*events.BehaviorEvent)
	for _, ev := range navs {
		bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
	}

	var paths []sessionPath
	for _, evts := range bySession {
		if len(evts) < minNavsPerSession {
			continue
		}
		sort.Slice(evts, func(i, j int) bool { return evts[i].Timestamp.Before(evts[j].Timestamp) })

		p := sessionPath{tenantID: evts[0].TenantID, userID: evts[0].UserID}
		for _, ev := range evts {
			p.screens = append(p.screens, ev.Screen)
			p.times = append(p.times, ev.Timestamp)
		}
		paths = append(paths, p)
	}
	return paths
}

// variantKey serializes a path into its dedup key
func variantKey(screens []string) string {
	return strings.Join(screens, " -> ")
}

// mineVariants aggregates paths sharing a tenant and variant key into traces.
// The bottleneck is the step with the largest mean gap to its successor.
func mineVariants(paths []sessionPath, now time.Time) []*types.ProcessTrace {
	type tenantVariant struct {
		tenantID string
		variant  string
	}
	byVariant := make(map[tenantVariant][]sessionPath)
	for _, p := range paths {
		k := tenantVariant{tenantID: p.tenantID, variant: variantKey(p.screens)}
		byVariant[k] = append(byVariant[k], p)
	}

	var traces []*types.ProcessTrace
	for key, occurrences := range byVariant {
		if len(occurrences) < minOccurrences {
			continue
		}

		screens := occurrences[0].screens
		stepCount := len(screens)

		var totalMs int64
		users := make(map[string]bool)
		gapSums := make([]int64, stepCount-1)
		for _, occ := range occurrences {
			totalMs += occ.times[stepCount-1].Sub(occ.times[0]).Milliseconds()
			users[occ.userID] = true
			for i := 0; i < stepCount-1; i++ {
				gapSums[i] += occ.times[i+1].Sub(occ.times[i]).Milliseconds()
			}
		}
		meanTotalMs := totalMs / int64(len(occurrences))

		bottleneckIdx := 0
		for i, sum := range gapSums {
			if sum > gapSums[bottleneckIdx] {
				bottleneckIdx = i
			}
		}
		bottleneckMs := gapSums[bottleneckIdx] / int64(len(occurrences))

		steps := make([]types.ProcessStep, stepCount)
		for i, screen := range screens {
			steps[i] = types.ProcessStep{Screen: screen, Order: i}
		}

		traces = append(traces, &types.ProcessTrace{
			ID:                   uuid.New().String(),
			TenantID:             key.tenantID,
			ProcessName:          fmt.Sprintf("%s to %s", screens[0], screens[stepCount-1]),
			Variant:              key.variant,
			Steps:                steps,
			StepCount:            stepCount,
			TotalDurationMs:      meanTotalMs,
			BottleneckStep:       screens[bottleneckIdx],
			BottleneckDurationMs: bottleneckMs,
			Frequency:            len(occurrences),
			UserCount:            len(users),
			MermaidDiagram:       renderMermaid(screens),
			AnalyzedAt:           now,
		})
	}
	return traces
}

// renderMermaid serializes a path as a left-to-right directed graph
func renderMermaid(screens []string) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for i := 0; i < len(screens)-1; i++ {
		fmt.Fprintf(&b, "    S%d[\"%s\"] --> S%d[\"%s\"]\n", i, screens[i], i+1, screens[i+1])
	}
	return b.String()
}
