// Package events defines the lead and dispatch domain events and re-exports
// the bus types from platform/events.
package events

import (
	"lead_dispatch_backend/platform/events"
	"lead_dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadStageChanged is published after a stage change has been persisted.
type LeadStageChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	ClientID uuid.UUID `json:"clientId"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Reason   string    `json:"reason,omitempty"`
}

func (e LeadStageChanged) EventName() string { return "leads.lead.stage_changed" }

// LeadClosed is published when a lead reaches the Closed stage.
type LeadClosed struct {
	BaseEvent
	LeadID      uuid.UUID  `json:"leadId"`
	ClientID    uuid.UUID  `json:"clientId"`
	CampaignID  *uuid.UUID `json:"campaignId,omitempty"`
	CloseReason string     `json:"closeReason"`
}

func (e LeadClosed) EventName() string { return "leads.lead.closed" }

// LeadReopened is published when a closed lead goes back to Inbox.
type LeadReopened struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	ClientID uuid.UUID `json:"clientId"`
}

func (e LeadReopened) EventName() string { return "leads.lead.reopened" }

// =============================================================================
// Dispatch Domain Events
// =============================================================================

// DispatchAttemptFinished is published once the outcome of an attempt is persisted.
type DispatchAttemptFinished struct {
	BaseEvent
	AttemptID      uuid.UUID `json:"attemptId"`
	LeadID         uuid.UUID `json:"leadId"`
	ClientID       uuid.UUID `json:"clientId"`
	Type           string    `json:"type"`
	Trigger        string    `json:"trigger"`
	Status         string    `json:"status"`
	AttemptNo      int       `json:"attemptNo"`
	ResponseStatus *int      `json:"responseStatus,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func (e DispatchAttemptFinished) EventName() string { return "dispatch.attempt.finished" }

// DispatchSweepCompleted is published after a retry sweep has replayed its claimed attempts.
type DispatchSweepCompleted struct {
	BaseEvent
	Claimed   int `json:"claimed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (e DispatchSweepCompleted) EventName() string { return "dispatch.sweep.completed" }
