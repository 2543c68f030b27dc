package events

import (
	"encoding/json"
	"fmt"
)

// Metadata payloads are stored as an open map keyed by event type. The typed
// structs below give agents a checked view of the shapes the capture client
// emits; unknown keys pass through untouched.

// ClickMetadata carries pointer coordinates for click events.
type ClickMetadata struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RageClickMetadata carries the burst evidence for rage_click events.
type RageClickMetadata struct {
	// Count is how many clicks landed on the element within the window
	Count int `json:"count"`
	// WindowMs is the span of the click burst in milliseconds
	WindowMs int64 `json:"window_ms"`
}

// NavigateMetadata records a route transition.
type NavigateMetadata struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ExportMetadata describes what triggered an export classification.
type ExportMetadata struct {
	// Href is the truncated target of a download-style link
	Href string `json:"href,omitempty"`
	// ButtonText is the matched text of an export-vocabulary button
	ButtonText string `json:"button_text,omitempty"`
}

// IdleMetadata carries the length of an idle interval.
type IdleMetadata struct {
	IdleMs int64 `json:"idle_ms"`
}

// ErrorMetadata describes an observed client error. Message doubles as the
// error signature for error-loop detection when ErrorCode is empty.
type ErrorMetadata struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// SearchMetadata carries the query length for search events.
type SearchMetadata struct {
	QueryLength int `json:"query_length"`
}

func structToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func mapToStruct(m map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SetMetadata sets the Metadata field from any JSON-serializable payload.
func (e *BehaviorEvent) SetMetadata(v interface{}) error {
	m, err := structToMap(v)
	if err != nil {
		return fmt.Errorf("failed to convert metadata: %w", err)
	}
	e.Metadata = m
	return nil
}

// GetRageClickMetadata retrieves RageClickMetadata from the Metadata field.
func (e *BehaviorEvent) GetRageClickMetadata() (*RageClickMetadata, error) {
	var data RageClickMetadata
	if err := mapToStruct(e.Metadata, &data); err != nil {
		return nil, fmt.Errorf("failed to parse rage_click metadata: %w", err)
	}
	return &data, nil
}

// GetNavigateMetadata retrieves NavigateMetadata from the Metadata field.
func (e *BehaviorEvent) GetNavigateMetadata() (*NavigateMetadata, error) {
	var data NavigateMetadata
	if err := mapToStruct(e.Metadata, &data); err != nil {
		return nil, fmt.Errorf("failed to parse navigate metadata: %w", err)
	}
	return &data, nil
}

// GetErrorMetadata retrieves ErrorMetadata from the Metadata field.
func (e *BehaviorEvent) GetErrorMetadata() (*ErrorMetadata, error) {
	var data ErrorMetadata
	if err := mapToStruct(e.Metadata, &data); err != nil {
		return nil, fmt.Errorf("failed to parse error metadata: %w", err)
	}
	return &data, nil
}

// ErrorSignature returns the stable grouping key for error-loop detection:
// the error code when present, otherwise the message, otherwise "unknown".
func (e *BehaviorEvent) ErrorSignature() string {
	if e.Metadata != nil {
		if code, ok := e.Metadata["error_code"].(string); ok && code != "" {
			return code
		}
		if msg, ok := e.Metadata["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "unknown"
}
