package events

import (
	"context"
	"time"
)

// AnonymousID is the sentinel tenant/user identifier used when the capture
// client could not resolve a session to a real identity.
const AnonymousID = "00000000-0000-0000-0000-000000000000"

// EventType classifies a single observed user action.
type EventType string

const (
	// EventTypeClick indicates a pointer click on an element
	EventTypeClick EventType = "click"
	// EventTypeRageClick indicates repeated rapid clicks on the same element
	EventTypeRageClick EventType = "rage_click"
	// EventTypeNavigate indicates a screen/route change
	EventTypeNavigate EventType = "navigate"
	// EventTypeCopy indicates content was copied to the clipboard
	EventTypeCopy EventType = "copy"
	// EventTypePaste indicates content was pasted from the clipboard
	EventTypePaste EventType = "paste"
	// EventTypeExport indicates a download/export-style action
	EventTypeExport EventType = "export"
	// EventTypeFocus indicates an input field received focus
	EventTypeFocus EventType = "focus"
	// EventTypeSearch indicates typing into a search or filter field
	EventTypeSearch EventType = "search"
	// EventTypeIdle indicates no tracked activity for the idle threshold
	EventTypeIdle EventType = "idle"
	// EventTypeError indicates a client-side error was observed
	EventTypeError EventType = "error"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeClick, EventTypeRageClick, EventTypeNavigate, EventTypeCopy,
		EventTypePaste, EventTypeExport, EventTypeFocus, EventTypeSearch,
		EventTypeIdle, EventTypeError:
		return true
	}
	return false
}

// BehaviorEvent is one observed user action. Events are produced by the
// capture client, flushed in batches, and immutable once stored.
//
// Timestamps are non-decreasing within a session as produced by a single
// capture buffer, but batches from different buffers may arrive out of order.
// Consumers must not assume global ordering across sessions.
type BehaviorEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// SessionID groups all events of one browsing session
	SessionID string `json:"session_id"`
	// TenantID is the owning tenant, or AnonymousID if unresolved
	TenantID string `json:"tenant_id"`
	// UserID is the acting user, or AnonymousID if unresolved
	UserID string `json:"user_id"`
	// Type is the kind of action observed
	Type EventType `json:"event_type"`
	// Screen is the logical route identifier where the action happened
	Screen string `json:"screen"`
	// Element is a best-effort DOM descriptor, empty when not applicable
	Element string `json:"element,omitempty"`
	// Metadata carries type-specific structured data (JSON-serializable)
	Metadata map[string]interface{} `json:"metadata"`
	// Timestamp is when the action occurred on the client
	Timestamp time.Time `json:"timestamp"`
}

// Filter defines criteria for querying stored behavior events.
type Filter struct {
	// SessionID filters to a single session
	SessionID string
	// TenantID filters by tenant
	TenantID string
	// UserID filters by user
	UserID string
	// Type filters by event type
	Type EventType
	// Screen filters by logical route
	Screen string
	// After keeps events strictly after this time
	After time.Time
	// Before keeps events strictly before this time
	Before time.Time
	// Ascending orders by timestamp ascending when true (default descending)
	Ascending bool
	// Limit bounds the number of events returned (0 = unlimited)
	Limit int
}

// Store is the append-only log of behavior events. Implementations live in
// internal/storage; detectors only ever read bounded windows from it.
type Store interface {
	// StoreBehaviorEvents appends a batch of events
	StoreBehaviorEvents(ctx context.Context, events []*BehaviorEvent) error

	// GetBehaviorEvents retrieves events matching the filter
	GetBehaviorEvents(ctx context.Context, filter Filter) ([]*BehaviorEvent, error)
}
