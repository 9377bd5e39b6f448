// Package dispatch delivers lead outcomes to external destinations
// (webhooks and spreadsheets) with idempotency, retry and an audit ledger.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Retry policy.
const (
	MaxAttempts = 3
	RetryDelay  = 5 * time.Minute
)

// AttemptType is the kind of destination an attempt delivers to.
type AttemptType string

const (
	TypeWebhook     AttemptType = "webhook"
	TypeGoogleSheet AttemptType = "google_sheet"
)

// Trigger is the delivery trigger derived from a close reason.
type Trigger string

const (
	TriggerOnInterested    Trigger = "on_interested"
	TriggerOnNotInterested Trigger = "on_not_interested"
)

// AttemptStatus is the lifecycle state of a single attempt.
type AttemptStatus string

const (
	StatusPending  AttemptStatus = "pending"
	StatusRetrying AttemptStatus = "retrying"
	StatusSuccess  AttemptStatus = "success"
	StatusFailed   AttemptStatus = "failed"
)

// Attempt is one concrete try at delivering a payload. Rows are never deleted.
// RequestPayload, RequestURL and RequestMethod are immutable after creation.
type Attempt struct {
	ID             uuid.UUID
	LeadID         uuid.UUID
	CampaignID     *uuid.UUID
	ClientID       uuid.UUID
	Type           AttemptType
	Trigger        Trigger
	DestinationID  uuid.UUID
	RequestPayload json.RawMessage
	RequestURL     string
	RequestMethod  string
	ResponseStatus *int
	ResponseBody   *string
	ErrorMessage   *string
	Status         AttemptStatus
	AttemptNo      int
	NextRetryAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IdempotencyKey identifies the logical delivery this attempt belongs to.
func (a Attempt) IdempotencyKey() string {
	return a.LeadID.String() + ":" + string(a.Trigger) + ":" + a.DestinationID.String()
}

// AttemptResult is the outcome of executing (or skipping) one attempt.
type AttemptResult struct {
	Attempt          Attempt
	AlreadyDelivered bool
	// Err is set when the outcome could not be persisted or the attempt could not run.
	Err error
}

// Succeeded reports whether the attempt ended in success.
func (r AttemptResult) Succeeded() bool {
	return r.Err == nil && r.Attempt.Status == StatusSuccess
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time
