// Package friction detects UX pain signals in a recent window of behavior
// events: rage-click clusters, navigation backtracks, and repeated error
// loops.
package friction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const (
	// DefaultWindow is the lookback per run. Runs on overlapping windows
	// double-count by design; consumers dedupe by (screen, element,
	// detected_at rounded to the run cadence).
	DefaultWindow = 15 * time.Minute

	// rageClusterMin clicks within rageClusterSpan form one incident
	rageClusterMin    = 5
	rageClusterSpan   = 5 * time.Second
	rageCriticalCount = 10

	// backtrackReturnWithin bounds the full A -> B -> A round trip
	backtrackReturnWithin = 10 * time.Second

	errorLoopMin = 3

	// maxAnnotations caps oracle fix suggestions per run
	maxAnnotations = 10
)

// Detector finds friction incidents in a recent event window
type Detector struct {
	store  storage.Storage
	oracle oracle.Client
	window time.Duration
}

// New creates a friction detector with the default window
func New(store storage.Storage, oc oracle.Client) *Detector {
	return &Detector{store: store, oracle: oc, window: DefaultWindow}
}

// Name implements agent.Agent
func (d *Detector) Name() string { return "friction_detector" }

// Run scans the recent window and persists one FrictionEvent per qualifying
// cluster. Each detection rule is independent; the oracle annotation step is
// best-effort and never blocks emission.
func (d *Detector) Run(ctx context.Context) (*agent.Report, error) {
	now := time.Now().UTC()
	window, err := d.store.GetBehaviorEvents(ctx, events.Filter{
		After:     now.Add(-d.window),
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load event window: %w", err)
	}

	var frictions []*types.FrictionEvent
	frictions = append(frictions, d.detectRageClicks(window, now)...)
	frictions = append(frictions, d.detectBacktracks(window, now)...)
	frictions = append(frictions, d.detectErrorLoops(window, now)...)

	tokens := d.annotate(ctx, frictions)

	if err := d.store.StoreFrictionEvents(ctx, frictions); err != nil {
		return nil, fmt.Errorf("failed to store friction events: %w", err)
	}

	return &agent.Report{
		Summary:        fmt.Sprintf("detected %d friction incidents from %d events", len(frictions), len(window)),
		ItemsProcessed: len(frictions),
		TokensUsed:     tokens,
	}, nil
}

// groupKey buckets events by actor and location
type groupKey struct {
	userID  string
	screen  string
	element string
}

// detectRageClicks clusters same-element clicks per user. Five or more
// clicks inside a 5-second span emit one incident; ten or more are critical.
// Only raw clicks count: rage_click events synthesized at capture time
// summarize clicks already present in the stream and would inflate clusters.
func (d *Detector) detectRageClicks(window []*events.BehaviorEvent, now time.Time) []*types.FrictionEvent {
	groups := make(map[groupKey][]*events.BehaviorEvent)
	for _, ev := range window {
		if ev.Type != events.EventTypeClick {
			continue
		}
		if ev.Element == "" {
			continue
		}
		k := groupKey{userID: ev.UserID, screen: ev.Screen, element: ev.Element}
		groups[k] = append(groups[k], ev)
	}

	var result []*types.FrictionEvent
	for k, evts := range groups {
		sort.Slice(evts, func(i, j int) bool { return evts[i].Timestamp.Before(evts[j].Timestamp) })

		// Walk maximal clusters: expand from the first event until the
		// span would exceed the limit, then restart past the cluster
		i := 0
		for i < len(evts) {
			j := i + 1
			for j < len(evts) && evts[j].Timestamp.Sub(evts[i].Timestamp) <= rageClusterSpan {
				j++
			}
			count := j - i
			if count >= rageClusterMin {
				severity := types.SeverityHigh
				if count >= rageCriticalCount {
					severity = types.SeverityCritical
				}
				spanMs := evts[j-1].Timestamp.Sub(evts[i].Timestamp).Milliseconds()
				result = append(result, &types.FrictionEvent{
					ID:           uuid.New().String(),
					TenantID:     evts[i].TenantID,
					UserID:       k.userID,
					FrictionType: types.FrictionRageClick,
					Severity:     severity,
					Screen:       k.screen,
					Element:      k.element,
					Count:        count,
					Details:      map[string]interface{}{"window_ms": spanMs},
					DetectedAt:   now,
				})
			}
			i = j
		}
	}
	return result
}

// detectBacktracks flags A -> B -> A navigation per session where the round
// trip completes inside the return threshold
func (d *Detector) detectBacktracks(window []*events.BehaviorEvent, now time.Time) []*types.FrictionEvent {
	bySession := make(map[string][]*events.BehaviorEvent)
	for _, ev := range window {
		if ev.Type != events.EventTypeNavigate {
			continue
		}
		bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
	}

	var result []*types.FrictionEvent
	for _, navs := range bySession {
		sort.Slice(navs, func(i, j int) bool { return navs[i].Timestamp.Before(navs[j].Timestamp) })

		for i := 0; i+2 < len(navs); i++ {
			a, b, back := navs[i], navs[i+1], navs[i+2]
			if a.Screen != back.Screen || a.Screen == b.Screen {
				continue
			}
			dt := back.Timestamp.Sub(a.Timestamp)
			if dt > backtrackReturnWithin {
				continue
			}
			result = append(result, &types.FrictionEvent{
				ID:           uuid.New().String(),
				TenantID:     a.TenantID,
				UserID:       a.UserID,
				FrictionType: types.FrictionBacktrack,
				Severity:     types.SeverityMedium,
				Screen:       a.Screen,
				Count:        1,
				Details: map[string]interface{}{
					"from":  a.Screen,
					"to":    b.Screen,
					"dt_ms": dt.Milliseconds(),
				},
				DetectedAt: now,
			})
		}
	}
	return result
}

// detectErrorLoops groups error events by user, screen and signature. Three
// or more identical errors emit one incident.
func (d *Detector) detectErrorLoops(window []*events.BehaviorEvent, now time.Time) []*types.FrictionEvent {
	type loopKey struct {
		userID    string
		screen    string
		signature string
	}
	groups := make(map[loopKey][]*events.BehaviorEvent)
	for _, ev := range window {
		if ev.Type != events.EventTypeError {
			continue
		}
		k := loopKey{userID: ev.UserID, screen: ev.Screen, signature: ev.ErrorSignature()}
		groups[k] = append(groups[k], ev)
	}

	var result []*types.FrictionEvent
	for k, evts := range groups {
		if len(evts) < errorLoopMin {
			continue
		}
		result = append(result, &types.FrictionEvent{
			ID:           uuid.New().String(),
			TenantID:     evts[0].TenantID,
			UserID:       k.userID,
			FrictionType: types.FrictionErrorLoop,
			Severity:     types.SeverityHigh,
			Screen:       k.screen,
			Count:        len(evts),
			Details:      map[string]interface{}{"signature": k.signature},
			DetectedAt:   now,
		})
	}
	return result
}

type fixResponse struct {
	SuggestedFix string `json:"suggested_fix"`
}

const annotateSystem = "You are a UX engineer reviewing friction incidents detected in a web application. Respond with JSON only."

// annotate asks the oracle for a suggested fix on up to the first
// maxAnnotations incidents. Failures are logged and skipped.
func (d *Detector) annotate(ctx context.Context, frictions []*types.FrictionEvent) int64 {
	if d.oracle == nil || !d.oracle.Enabled() || len(frictions) == 0 {
		return 0
	}

	var tokens int64
	for i, f := range frictions {
		if i >= maxAnnotations {
			break
		}
		if ctx.Err() != nil {
			break
		}

		evidence, err := json.Marshal(f)
		if err != nil {
			continue
		}
		prompt := fmt.Sprintf(
			"Suggest one concrete fix for this friction incident. Respond as {\"suggested_fix\": \"...\"}.\n\n%s",
			evidence,
		)

		resp, err := d.oracle.Complete(ctx, annotateSystem, prompt)
		if err != nil {
			slog.Debug("friction fix annotation failed", "error", err)
			continue
		}
		tokens += resp.InputTokens + resp.OutputTokens

		if parsed, ok := oracle.Parse[fixResponse](resp.Text); ok && parsed.SuggestedFix != "" {
			f.SuggestedFix = parsed.SuggestedFix
		}
	}
	return tokens
}
