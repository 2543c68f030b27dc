// Package janitor prunes aged behavior events so the raw event table stays
// bounded. Derived records (frictions, traces, proposals) are kept; only
// the raw stream ages out.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/config"
	"github.com/lai-labs/spyglass/internal/storage"
)

// maxBatches bounds one run so a huge backlog cannot starve other agents
const maxBatches = 50

// Janitor deletes behavior events older than the retention window in
// batches
type Janitor struct {
	store     storage.Storage
	retention config.RetentionConfig
}

func New(store storage.Storage, retention config.RetentionConfig) *Janitor {
	return &Janitor{store: store, retention: retention}
}

// Name implements agent.Agent
func (j *Janitor) Name() string { return "retention_janitor" }

// Run prunes in batches until the backlog is clear, the batch budget runs
// out, or the context is cancelled
func (j *Janitor) Run(ctx context.Context) (*agent.Report, error) {
	if !j.retention.Enabled {
		return &agent.Report{Summary: "retention disabled"}, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retention.Days)

	var total int64
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deleted, err := j.store.PruneBehaviorEvents(ctx, cutoff, j.retention.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("prune batch failed after %d deletions: %w", total, err)
		}
		total += deleted
		if deleted < int64(j.retention.BatchSize) {
			break
		}
	}

	return &agent.Report{
		Summary:        fmt.Sprintf("pruned %d events older than %d days", total, j.retention.Days),
		ItemsProcessed: int(total),
	}, nil
}
