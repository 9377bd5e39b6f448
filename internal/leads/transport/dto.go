package transport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request DTOs
type CreateLeadRequest struct {
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
	FirstName  string     `json:"firstName" validate:"required,max=100"`
	LastName   string     `json:"lastName,omitempty" validate:"max=100"`
	Phone      string     `json:"phone" validate:"required,min=6,max=32"`
	Email      *string    `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

type TransitionRequest struct {
	Stage       string     `json:"stage" validate:"required,leadstage"`
	Reason      string     `json:"reason,omitempty" validate:"max=500"`
	CloseReason string     `json:"closeReason,omitempty" validate:"omitempty,closereason"`
	CloseNotes  *string    `json:"closeNotes,omitempty" validate:"omitempty,max=2000"`
	AssignTo    *uuid.UUID `json:"assignTo,omitempty"`
}

type CloseLeadRequest struct {
	CloseReason string  `json:"closeReason" validate:"required,closereason"`
	CloseNotes  *string `json:"closeNotes,omitempty" validate:"omitempty,max=2000"`
}

type SalesReadyRequest struct {
	AssignTo *uuid.UUID `json:"assignTo,omitempty"`
}

type FailAutomationRequest struct {
	Error string `json:"error" validate:"required,min=1,max=1000"`
}

type ListPipelineQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}

// Response DTOs
type LeadResponse struct {
	ID                  uuid.UUID  `json:"id"`
	ClientID            uuid.UUID  `json:"clientId"`
	CampaignID          *uuid.UUID `json:"campaignId,omitempty"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Phone               string     `json:"phone"`
	Email               *string    `json:"email,omitempty"`
	Stage               string     `json:"stage"`
	AutomationStatus    string     `json:"automationStatus"`
	Status              string     `json:"status"`
	ClosedAt            *time.Time `json:"closedAt,omitempty"`
	CloseReason         *string    `json:"closeReason,omitempty"`
	CloseNotes          *string    `json:"closeNotes,omitempty"`
	AssignedTo          *uuid.UUID `json:"assignedTo,omitempty"`
	AssignedAt          *time.Time `json:"assignedAt,omitempty"`
	IntentionStatus     *string    `json:"intentionStatus,omitempty"`
	IntentionDecidedAt  *time.Time `json:"intentionDecidedAt,omitempty"`
	NextActionAt        *time.Time `json:"nextActionAt,omitempty"`
	AutomationAttempts  int        `json:"automationAttempts"`
	AutomationError     *string    `json:"automationError,omitempty"`
	LastAutomationRunAt *time.Time `json:"lastAutomationRunAt,omitempty"`
	Version             int        `json:"version"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type TimelineEventResponse struct {
	ID        uuid.UUID      `json:"id"`
	ActorType string         `json:"actorType"`
	ActorName string         `json:"actorName"`
	EventType string         `json:"eventType"`
	Title     string         `json:"title"`
	Summary   *string        `json:"summary,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type TimelineResponse struct {
	Items []TimelineEventResponse `json:"items"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
	Total int            `json:"total"`
}

type DispatchAttemptResponse struct {
	ID             uuid.UUID       `json:"id"`
	LeadID         uuid.UUID       `json:"leadId"`
	CampaignID     *uuid.UUID      `json:"campaignId,omitempty"`
	Type           string          `json:"type"`
	Trigger        string          `json:"trigger"`
	DestinationID  uuid.UUID       `json:"destinationId"`
	RequestPayload json.RawMessage `json:"requestPayload"`
	RequestURL     string          `json:"requestUrl"`
	RequestMethod  string          `json:"requestMethod"`
	ResponseStatus *int            `json:"responseStatus,omitempty"`
	ResponseBody   *string         `json:"responseBody,omitempty"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	Status         string          `json:"status"`
	AttemptNo      int             `json:"attemptNo"`
	NextRetryAt    *time.Time      `json:"nextRetryAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type DispatchAttemptListResponse struct {
	Items []DispatchAttemptResponse `json:"items"`
}

type RetryAttemptResponse struct {
	Attempt DispatchAttemptResponse `json:"attempt"`
	Error   string                  `json:"error,omitempty"`
}
