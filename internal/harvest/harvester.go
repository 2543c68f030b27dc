// Package harvest condenses recent pipeline output into searchable
// knowledge items.
package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const (
	// DefaultWindow is how far back each run harvests
	DefaultWindow = 4 * time.Hour

	// recordLimit caps how many source records one run pulls per table
	recordLimit = 200

	proposalConfidence = 0.7
	frictionConfidence = 0.8
)

// Harvester turns proposals, critical frictions, and build learnings into
// knowledge base entries
type Harvester struct {
	store  storage.Storage
	window time.Duration
}

func New(store storage.Storage) *Harvester {
	return &Harvester{store: store, window: DefaultWindow}
}

// Name implements agent.Agent
func (h *Harvester) Name() string { return "knowledge_harvester" }

// Run harvests everything produced inside the window. Each source record
// becomes one item; re-running over the same window re-emits items, which
// is acceptable because the knowledge base is append-only and search
// dedupes by relevance.
func (h *Harvester) Run(ctx context.Context) (*agent.Report, error) {
	since := time.Now().UTC().Add(-h.window)

	var items []*types.KnowledgeItem

	proposals, err := h.store.GetAutomationProposals(ctx, since, recordLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load proposals: %w", err)
	}
	for _, p := range proposals {
		items = append(items, fromProposal(p))
	}

	frictions, err := h.store.GetFrictionEvents(ctx, types.FrictionFilter{
		Severity: types.SeverityCritical,
		Since:    since,
		Limit:    recordLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load frictions: %w", err)
	}
	for _, f := range frictions {
		items = append(items, fromFriction(f))
	}

	learnings, err := h.store.GetBuildLearnings(ctx, since, recordLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load learnings: %w", err)
	}
	for _, l := range learnings {
		items = append(items, fromLearning(l))
	}

	if err := h.store.StoreKnowledgeItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to store knowledge items: %w", err)
	}

	return &agent.Report{
		Summary: fmt.Sprintf("harvested %d items (%d proposals, %d frictions, %d learnings)",
			len(items), len(proposals), len(frictions), len(learnings)),
		ItemsProcessed: len(items),
	}, nil
}

func fromProposal(p *types.AutomationProposal) *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:       uuid.New().String(),
		Category: "automation_opportunity",
		Title:    p.Title,
		Content: fmt.Sprintf("%s Estimated %.1f hours saved per month for %.0f dev hours invested.",
			p.Description, p.ROIHoursPerMonth(), p.EstimatedDevHours),
		Source:      "automation_scout",
		SourceID:    p.ID,
		Tags:        []string{string(p.Category), "proposal"},
		Confidence:  proposalConfidence,
		HarvestedAt: time.Now().UTC(),
	}
}

func fromFriction(f *types.FrictionEvent) *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:       uuid.New().String(),
		Category: "ux_issue",
		Title:    fmt.Sprintf("Critical %s on %s", f.FrictionType, f.Screen),
		Content: fmt.Sprintf("%d occurrences of %s on screen %s. %s",
			f.Count, f.FrictionType, f.Screen, f.SuggestedFix),
		Source:      "friction_detector",
		SourceID:    f.ID,
		Tags:        []string{string(f.FrictionType), string(f.Severity)},
		Confidence:  frictionConfidence,
		HarvestedAt: time.Now().UTC(),
	}
}

func fromLearning(l *types.BuildLearning) *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:          uuid.New().String(),
		Category:    "learning",
		Title:       fmt.Sprintf("%s: %s", l.ModuleType, l.LearningType),
		Content:     l.Description,
		Source:      "learning_accumulator",
		SourceID:    l.ID,
		Tags:        []string{string(l.LearningType), l.ModuleType},
		Confidence:  l.Confidence,
		HarvestedAt: time.Now().UTC(),
	}
}
