// Package scout turns friction incidents, process traces and export activity
// into automation proposals. Deterministic signals (repeated exports,
// copy-paste flows, repeated navigation sequences) always produce proposals;
// the oracle adds more when available, and its output is never trusted beyond
// validated fields.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const (
	// incidentWindow is the lookback for frictions and traces
	incidentWindow = 24 * time.Hour

	// activityWindow is the lookback for export and clipboard signals
	activityWindow = 7 * 24 * time.Hour

	// exportMinPerWeek is the support threshold for an export proposal
	exportMinPerWeek = 3

	// copyPasteMin is the clipboard round-trip threshold per user
	copyPasteMin = 5

	// sequenceLen and sequenceMin define a repeated navigation sequence:
	// the same sequenceLen-screen run seen at least sequenceMin times
	sequenceLen = 3
	sequenceMin = 5

	// Assumed manual effort per occurrence, in minutes. These feed the
	// ROI formula; they are estimates, not measurements.
	exportMinutes    = 5.0
	copyPasteMinutes = 2.0
	sequenceMinutes  = 3.0

	maxEvidenceItems = 50
)

// Scout proposes automations from observed behavior
type Scout struct {
	store  storage.Storage
	oracle oracle.Client
}

// New creates an automation scout
func New(store storage.Storage, oc oracle.Client) *Scout {
	return &Scout{store: store, oracle: oc}
}

// Name implements agent.Agent
func (s *Scout) Name() string { return "automation_scout" }

// Run gathers evidence, derives deterministic proposals, consults the oracle
// for more, validates everything and persists the survivors. Invalid
// proposals are dropped silently; an oracle failure reduces output, it never
// fails the run.
func (s *Scout) Run(ctx context.Context) (*agent.Report, error) {
	now := time.Now().UTC()

	frictions, err := s.store.GetFrictionEvents(ctx, types.FrictionFilter{
		Since: now.Add(-incidentWindow),
		Limit: maxEvidenceItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load friction evidence: %w", err)
	}

	traces, err := s.store.GetProcessTraces(ctx, now.Add(-incidentWindow), maxEvidenceItems)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace evidence: %w", err)
	}

	exports, err := s.store.GetBehaviorEvents(ctx, events.Filter{
		Type:  events.EventTypeExport,
		After: now.Add(-activityWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load export activity: %w", err)
	}

	copies, err := s.store.GetBehaviorEvents(ctx, events.Filter{
		Type:  events.EventTypeCopy,
		After: now.Add(-activityWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load copy activity: %w", err)
	}

	pastes, err := s.store.GetBehaviorEvents(ctx, events.Filter{
		Type:  events.EventTypePaste,
		After: now.Add(-activityWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load paste activity: %w", err)
	}

	navs, err := s.store.GetBehaviorEvents(ctx, events.Filter{
		Type:      events.EventTypeNavigate,
		After:     now.Add(-activityWindow),
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation activity: %w", err)
	}

	var proposals []*types.AutomationProposal
	proposals = append(proposals, exportProposals(exports, now)...)
	proposals = append(proposals, copyPasteProposals(copies, pastes, now)...)
	proposals = append(proposals, sequenceProposals(navs, now)...)

	oracleProposals, tokens := s.consultOracle(ctx, frictions, traces, exports, now)
	proposals = append(proposals, oracleProposals...)

	valid := proposals[:0]
	for _, p := range proposals {
		if err := p.Validate(); err != nil {
			slog.Debug("dropping invalid proposal", "title", p.Title, "error", err)
			continue
		}
		valid = append(valid, p)
	}

	if err := s.store.StoreAutomationProposals(ctx, valid); err != nil {
		return nil, fmt.Errorf("failed to store proposals: %w", err)
	}

	return &agent.Report{
		Summary:        fmt.Sprintf("proposed %d automations", len(valid)),
		ItemsProcessed: len(valid),
		TokensUsed:     tokens,
	}, nil
}

// exportProposals flags screens exported from repeatedly within the window
func exportProposals(exports []*events.BehaviorEvent, now time.Time) []*types.AutomationProposal {
	type screenKey struct {
		tenantID string
		screen   string
	}
	counts := make(map[screenKey]int)
	for _, ev := range exports {
		counts[screenKey{tenantID: ev.TenantID, screen: ev.Screen}]++
	}

	keys := make([]screenKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })

	var result []*types.AutomationProposal
	for _, k := range keys {
		n := counts[k]
		if n < exportMinPerWeek {
			continue
		}
		result = append(result, &types.AutomationProposal{
			ID:       uuid.New().String(),
			TenantID: k.tenantID,
			Title:    fmt.Sprintf("Scheduled export for %s", k.screen),
			Description: fmt.Sprintf(
				"Users exported data from %s %d times in the last 7 days. A scheduled report delivery would remove the manual export step.",
				k.screen, n),
			Category:           types.CategoryManualReport,
			CurrentTimeMinutes: exportMinutes,
			FrequencyPerWeek:   float64(n),
			EstimatedDevHours:  8,
			Status:             types.StatusProposed,
			ProposedAt:         now,
		})
	}
	return result
}

// copyPasteProposals flags users shuttling data between screens by clipboard
func copyPasteProposals(copies, pastes []*events.BehaviorEvent, now time.Time) []*types.AutomationProposal {
	type userKey struct {
		tenantID string
		userID   string
	}
	copyCount := make(map[userKey]int)
	copyScreen := make(map[userKey]string)
	for _, ev := range copies {
		k := userKey{tenantID: ev.TenantID, userID: ev.UserID}
		copyCount[k]++
		if copyScreen[k] == "" {
			copyScreen[k] = ev.Screen
		}
	}
	pasteCount := make(map[userKey]int)
	for _, ev := range pastes {
		pasteCount[userKey{tenantID: ev.TenantID, userID: ev.UserID}]++
	}

	keys := make([]userKey, 0, len(copyCount))
	for k := range copyCount {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].userID < keys[j].userID })

	var result []*types.AutomationProposal
	for _, k := range keys {
		trips := copyCount[k]
		if pasteCount[k] < trips {
			trips = pasteCount[k]
		}
		if trips < copyPasteMin {
			continue
		}
		result = append(result, &types.AutomationProposal{
			ID:       uuid.New().String(),
			TenantID: k.tenantID,
			Title:    fmt.Sprintf("Data transfer integration from %s", copyScreen[k]),
			Description: fmt.Sprintf(
				"A user moved data by clipboard %d times in the last 7 days, starting from %s. A direct integration would eliminate the manual transfer.",
				trips, copyScreen[k]),
			Category:           types.CategoryCopyPaste,
			CurrentTimeMinutes: copyPasteMinutes,
			FrequencyPerWeek:   float64(trips),
			EstimatedDevHours:  16,
			Status:             types.StatusProposed,
			ProposedAt:         now,
		})
	}
	return result
}

// sequenceProposals flags three-screen navigation runs a tenant's users walk
// over and over. Events must arrive in timestamp order.
func sequenceProposals(navs []*events.BehaviorEvent, now time.Time) []*types.AutomationProposal {
	bySession := make(map[string][]*events.BehaviorEvent)
	for _, ev := range navs {
		bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
	}

	type seqKey struct {
		tenantID string
		path     string
	}
	counts := make(map[seqKey]int)
	for _, evts := range bySession {
		for i := 0; i+sequenceLen <= len(evts); i++ {
			screens := make([]string, 0, sequenceLen)
			for j := i; j < i+sequenceLen; j++ {
				screens = append(screens, evts[j].Screen)
			}
			counts[seqKey{
				tenantID: evts[i].TenantID,
				path:     strings.Join(screens, " > "),
			}]++
		}
	}

	keys := make([]seqKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i].path < keys[j].path
	})

	var result []*types.AutomationProposal
	for _, k := range keys {
		n := counts[k]
		if n < sequenceMin {
			continue
		}
		result = append(result, &types.AutomationProposal{
			ID:       uuid.New().String(),
			TenantID: k.tenantID,
			Title:    fmt.Sprintf("Shortcut for %s", k.path),
			Description: fmt.Sprintf(
				"The sequence %s was walked %d times in the last 7 days. A direct shortcut or combined view would skip the intermediate steps.",
				k.path, n),
			Category:           types.CategoryRepetitiveTask,
			CurrentTimeMinutes: sequenceMinutes,
			FrequencyPerWeek:   float64(n),
			EstimatedDevHours:  6,
			Status:             types.StatusProposed,
			ProposedAt:         now,
		})
	}
	return result
}

// proposalDraft is the shape the oracle is asked to produce
type proposalDraft struct {
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	Category           string  `json:"category"`
	CurrentTimeMinutes float64 `json:"current_time_minutes"`
	FrequencyPerWeek   float64 `json:"frequency_per_week"`
	EstimatedDevHours  float64 `json:"estimated_dev_hours"`
}

const oracleSystem = "You are an automation analyst. Given behavioral evidence from a web application, propose concrete automations. Respond with a JSON array only."

// consultOracle asks for proposals given the gathered evidence. Anything
// unparsable yields an empty slice.
func (s *Scout) consultOracle(ctx context.Context, frictions []*types.FrictionEvent, traces []*types.ProcessTrace, exports []*events.BehaviorEvent, now time.Time) ([]*types.AutomationProposal, int64) {
	if s.oracle == nil || !s.oracle.Enabled() {
		return nil, 0
	}

	evidence := map[string]interface{}{
		"friction_events": frictions,
		"process_traces":  traces,
		"export_count":    len(exports),
	}
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return nil, 0
	}

	prompt := fmt.Sprintf(`Propose automations for this evidence. Each entry must have: title, description, category (one of: repetitive_task, copy_paste, predictable_decision, manual_notification, manual_report, data_entry, approval_flow, scheduled_task, integration), current_time_minutes (positive number), frequency_per_week, estimated_dev_hours.

Evidence:
%s`, evidenceJSON)

	resp, err := s.oracle.Complete(ctx, oracleSystem, prompt)
	if err != nil {
		slog.Warn("oracle proposal call failed", "error", err)
		return nil, 0
	}
	tokens := resp.InputTokens + resp.OutputTokens

	drafts := oracle.ParseOrZero[[]proposalDraft](resp.Text)

	var result []*types.AutomationProposal
	for _, d := range drafts {
		tenantID := events.AnonymousID
		if len(frictions) > 0 {
			tenantID = frictions[0].TenantID
		}
		result = append(result, &types.AutomationProposal{
			ID:                 uuid.New().String(),
			TenantID:           tenantID,
			Title:              d.Title,
			Description:        d.Description,
			Category:           types.ProposalCategory(d.Category),
			CurrentTimeMinutes: d.CurrentTimeMinutes,
			FrequencyPerWeek:   d.FrequencyPerWeek,
			EstimatedDevHours:  d.EstimatedDevHours,
			Status:             types.StatusProposed,
			ProposedAt:         now,
		})
	}
	return result, tokens
}
