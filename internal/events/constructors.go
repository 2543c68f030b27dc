package events

import (
	"time"

	"github.com/google/uuid"
)

// New creates a BehaviorEvent with a generated ID and the anonymous identity
// sentinels filled in. The capture client overwrites tenant/user when a
// session can be resolved.
func New(sessionID string, eventType EventType, screen, element string, metadata map[string]interface{}) *BehaviorEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &BehaviorEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TenantID:  AnonymousID,
		UserID:    AnonymousID,
		Type:      eventType,
		Screen:    screen,
		Element:   element,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
}

// NewNavigate creates a navigate event with typed metadata.
func NewNavigate(sessionID, from, to string) *BehaviorEvent {
	e := New(sessionID, EventTypeNavigate, to, "", nil)
	_ = e.SetMetadata(NavigateMetadata{From: from, To: to})
	return e
}

// NewRageClick creates a rage_click event carrying the burst evidence.
func NewRageClick(sessionID, screen, element string, count int, windowMs int64) *BehaviorEvent {
	e := New(sessionID, EventTypeRageClick, screen, element, nil)
	_ = e.SetMetadata(RageClickMetadata{Count: count, WindowMs: windowMs})
	return e
}

// NewError creates an error event. The metadata message doubles as the error
// signature for loop detection.
func NewError(sessionID, screen string, meta ErrorMetadata) *BehaviorEvent {
	e := New(sessionID, EventTypeError, screen, "", nil)
	_ = e.SetMetadata(meta)
	return e
}
