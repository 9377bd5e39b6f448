package dispatch

import (
	"encoding/json"
	"time"

	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/platform/phone"
)

// Payload is the flat record delivered to destinations. Webhooks receive it as
// JSON; sheets receive Row() in PayloadColumns order.
type Payload struct {
	Event              string `json:"event"`
	Intention          string `json:"intention"`
	LeadID             string `json:"lead_id"`
	ClientID           string `json:"client_id"`
	CampaignID         string `json:"campaign_id"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	FullName           string `json:"full_name"`
	Phone              string `json:"phone"`
	Email              string `json:"email"`
	Stage              string `json:"stage"`
	CloseReason        string `json:"close_reason"`
	CloseNotes         string `json:"close_notes"`
	IntentionStatus    string `json:"intention_status"`
	AssignedTo         string `json:"assigned_to"`
	AssignedAt         string `json:"assigned_at"`
	IntentionDecidedAt string `json:"intention_decided_at"`
	ClosedAt           string `json:"closed_at"`
	CreatedAt          string `json:"created_at"`
	DispatchedAt       string `json:"dispatched_at"`
}

// PayloadColumns is the header row matching Payload.Row.
var PayloadColumns = []string{
	"event", "intention", "lead_id", "client_id", "campaign_id",
	"first_name", "last_name", "full_name", "phone", "email",
	"stage", "close_reason", "close_notes", "intention_status",
	"assigned_to", "assigned_at", "intention_decided_at",
	"closed_at", "created_at", "dispatched_at",
}

// BuildPayload snapshots the lead for delivery. phoneRegion is used to read
// national phone numbers.
func BuildPayload(lead domain.Lead, outcome Outcome, phoneRegion string, now time.Time) Payload {
	p := Payload{
		Event:        string(outcome.Trigger),
		Intention:    string(outcome.Intention),
		LeadID:       lead.ID.String(),
		ClientID:     lead.ClientID.String(),
		FirstName:    lead.FirstName,
		LastName:     lead.LastName,
		FullName:     lead.FullName(),
		Phone:        phone.NormalizeE164InRegion(lead.Phone, phoneRegion),
		Stage:        string(lead.Stage),
		AssignedAt:   formatTime(lead.AssignedAt),
		ClosedAt:     formatTime(lead.ClosedAt),
		CreatedAt:    lead.CreatedAt.UTC().Format(time.RFC3339),
		DispatchedAt: now.UTC().Format(time.RFC3339),
	}
	p.IntentionDecidedAt = formatTime(lead.IntentionDecidedAt)
	if lead.CampaignID != nil {
		p.CampaignID = lead.CampaignID.String()
	}
	if lead.Email != nil {
		p.Email = *lead.Email
	}
	if lead.CloseReason != nil {
		p.CloseReason = string(*lead.CloseReason)
	}
	if lead.CloseNotes != nil {
		p.CloseNotes = *lead.CloseNotes
	}
	if lead.IntentionStatus != nil {
		p.IntentionStatus = *lead.IntentionStatus
	}
	if lead.AssignedTo != nil {
		p.AssignedTo = lead.AssignedTo.String()
	}
	return p
}

// JSON encodes the payload for the attempt snapshot.
func (p Payload) JSON() (json.RawMessage, error) {
	return json.Marshal(p)
}

// Row returns the payload values in PayloadColumns order.
func (p Payload) Row() []any {
	return []any{
		p.Event, p.Intention, p.LeadID, p.ClientID, p.CampaignID,
		p.FirstName, p.LastName, p.FullName, p.Phone, p.Email,
		p.Stage, p.CloseReason, p.CloseNotes, p.IntentionStatus,
		p.AssignedTo, p.AssignedAt, p.IntentionDecidedAt,
		p.ClosedAt, p.CreatedAt, p.DispatchedAt,
	}
}

// DecodePayload reads a stored payload snapshot.
func DecodePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	err := json.Unmarshal(raw, &p)
	return p, err
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
