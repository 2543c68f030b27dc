// Package learning extracts reusable lessons from completed builds and
// certifies build quality.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const maxLearningsPerBuild = 10

// Accumulator classifies build outcomes into typed learnings via the
// oracle. With the oracle disabled it accumulates nothing; certification
// does not depend on it.
type Accumulator struct {
	store  storage.Storage
	oracle oracle.Client
}

func NewAccumulator(store storage.Storage, oc oracle.Client) *Accumulator {
	return &Accumulator{store: store, oracle: oc}
}

// learningDraft is the shape the oracle is asked to return
type learningDraft struct {
	ModuleType   string  `json:"module_type"`
	LearningType string  `json:"learning_type"`
	Description  string  `json:"description"`
	Confidence   float64 `json:"confidence"`
}

const accumulatorSystem = `You analyze software build outcomes and extract reusable lessons.
Respond with a JSON array only. Each element:
{"module_type": "<kind of module built>", "learning_type": "<one of: pattern_success, pattern_failure, error_fix, performance_insight, security_fix, ux_improvement, code_style, test_strategy, architecture_choice>", "description": "<one actionable sentence>", "confidence": <0..1>}
Return [] when the build teaches nothing new.`

// Accumulate asks the oracle what this build teaches and persists the
// valid learnings. Oracle failures and garbage output yield zero learnings,
// never an error: learning is best effort.
func (a *Accumulator) Accumulate(ctx context.Context, buildID string, result *types.BuildResult) ([]*types.BuildLearning, int64, error) {
	if buildID == "" {
		return nil, 0, fmt.Errorf("build id is required")
	}
	if !a.oracle.Enabled() {
		return nil, 0, nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode build result: %w", err)
	}
	prompt := fmt.Sprintf("Build %s completed with this outcome:\n%s\n\nWhat should future builds learn from it?", buildID, payload)

	resp, err := a.oracle.Complete(ctx, accumulatorSystem, prompt)
	if err != nil {
		slog.Warn("learning oracle call failed", "build_id", buildID, "error", err)
		return nil, 0, nil
	}
	tokens := resp.InputTokens + resp.OutputTokens

	drafts := oracle.ParseOrZero[[]learningDraft](resp.Text)
	learnings := make([]*types.BuildLearning, 0, len(drafts))
	for _, d := range drafts {
		if len(learnings) == maxLearningsPerBuild {
			break
		}
		lt := types.LearningType(d.LearningType)
		if !lt.IsValid() {
			slog.Debug("dropping learning with unknown type", "learning_type", d.LearningType)
			continue
		}
		if d.Description == "" {
			continue
		}
		learnings = append(learnings, &types.BuildLearning{
			ID:           uuid.New().String(),
			BuildID:      buildID,
			ModuleType:   d.ModuleType,
			LearningType: lt,
			Description:  d.Description,
			Confidence:   clamp01(d.Confidence),
			LearnedAt:    time.Now().UTC(),
		})
	}

	if err := a.store.StoreBuildLearnings(ctx, learnings); err != nil {
		return nil, tokens, fmt.Errorf("failed to store learnings: %w", err)
	}
	return learnings, tokens, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
