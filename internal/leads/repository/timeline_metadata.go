package repository

import (
	"encoding/json"

	"github.com/google/uuid"
)

// toMap serialises a struct to map[string]any via JSON so keys match the json tags.
func toMap(v any) map[string]any {
	b, _ := json.Marshal(v)
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out
}

// StageChangeMetadata is the typed metadata for EventTypeStageChange events.
type StageChangeMetadata struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Reason      string  `json:"reason,omitempty"`
	CloseReason *string `json:"closeReason,omitempty"`
}

func (m StageChangeMetadata) ToMap() map[string]any { return toMap(m) }

// AutomationChangeMetadata is the typed metadata for EventTypeAutomationChange events.
type AutomationChangeMetadata struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Error *string `json:"error,omitempty"`
}

func (m AutomationChangeMetadata) ToMap() map[string]any { return toMap(m) }

// DispatchMetadata is the typed metadata for dispatch outcome events.
type DispatchMetadata struct {
	AttemptID      uuid.UUID `json:"attemptId"`
	Type           string    `json:"type"`
	Trigger        string    `json:"trigger"`
	AttemptNo      int       `json:"attemptNo"`
	ResponseStatus *int      `json:"responseStatus,omitempty"`
	Error          *string   `json:"error,omitempty"`
}

func (m DispatchMetadata) ToMap() map[string]any { return toMap(m) }
