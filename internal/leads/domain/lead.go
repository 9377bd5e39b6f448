package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lead is the aggregate governed by the stage machine.
// ClosedAt, CloseReason and CloseNotes are all set exactly when Stage is Closed.
type Lead struct {
	ID         uuid.UUID
	ClientID   uuid.UUID
	CampaignID *uuid.UUID
	FirstName  string
	LastName   string
	Phone      string
	Email      *string

	Stage            Stage
	AutomationStatus AutomationStatus
	Status           string

	ClosedAt    *time.Time
	CloseReason *CloseReason
	CloseNotes  *string

	AssignedTo *uuid.UUID
	AssignedAt *time.Time

	IntentionStatus    *string
	IntentionDecidedAt *time.Time

	NextActionAt        *time.Time
	AutomationAttempts  int
	AutomationError     *string
	LastAutomationRunAt *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLead returns a lead in Inbox with pending automation.
func NewLead(clientID uuid.UUID, campaignID *uuid.UUID, now time.Time) Lead {
	return Lead{
		ID:               uuid.New(),
		ClientID:         clientID,
		CampaignID:       campaignID,
		Stage:            StageInbox,
		AutomationStatus: AutomationPending,
		Status:           LegacyStatusPending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// FullName joins first and last name.
func (l Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	default:
		return l.FirstName + " " + l.LastName
	}
}

// IsActivePipeline reports whether the lead still needs qualification work.
func (l Lead) IsActivePipeline() bool {
	return l.Stage == StageInbox || l.Stage == StageQualifying
}

// IsSalesReady reports whether the lead is waiting for a seller.
func (l Lead) IsSalesReady() bool {
	return l.Stage == StageSalesReady
}

// IsClosed reports whether the lead is in the Closed stage.
func (l Lead) IsClosed() bool {
	return l.Stage == StageClosed
}

// CheckInvariants returns ErrInconsistentLead when the close fields disagree with the stage.
func (l Lead) CheckInvariants() error {
	closeFieldsSet := l.ClosedAt != nil && l.CloseReason != nil && l.CloseNotes != nil
	closeFieldsClear := l.ClosedAt == nil && l.CloseReason == nil && l.CloseNotes == nil
	if l.IsClosed() && !closeFieldsSet {
		return ErrInconsistentLead
	}
	if !l.IsClosed() && !closeFieldsClear {
		return ErrInconsistentLead
	}
	return nil
}
