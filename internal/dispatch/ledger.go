package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"lead_dispatch_backend/platform/apperr"

	"github.com/google/uuid"
)

// MaxResponseBodyBytes bounds the response body kept on an attempt.
const MaxResponseBodyBytes = 4096

// PendingLease is how long a claimed or freshly created attempt may stay
// pending. After that its run is considered abandoned and the attempt can be
// claimed again. It must exceed the webhook timeout.
const PendingLease = 10 * time.Minute

var (
	// ErrAttemptNotFound is returned by stores for unknown attempt ids.
	ErrAttemptNotFound = errors.New("dispatch attempt not found")
	// ErrAlreadyDelivered is returned by stores when persisting a second
	// success for the same idempotency key.
	ErrAlreadyDelivered = errors.New("dispatch already delivered")
	// ErrRetryExhausted is returned when an attempt has used all its tries.
	ErrRetryExhausted = errors.New("dispatch attempt has no retries left")
	// ErrInvalidOperation marks a retry whose preconditions do not hold.
	ErrInvalidOperation = errors.New("invalid dispatch operation")
)

// AttemptStore persists attempts.
type AttemptStore interface {
	HasSuccess(ctx context.Context, leadID uuid.UUID, trigger Trigger, destinationID uuid.UUID) (bool, error)
	Insert(ctx context.Context, a Attempt) error
	// UpdateOutcome writes status, response, error and retry fields.
	// It returns ErrAlreadyDelivered when a success already exists for the key.
	UpdateOutcome(ctx context.Context, a Attempt) error
	// ClaimForRetry moves an attempt from retrying/failed (or pending last touched
	// before staleBefore) at expectedAttemptNo to pending at expectedAttemptNo+1,
	// stamping updated_at with now. It reports false if another caller got there first.
	ClaimForRetry(ctx context.Context, id uuid.UUID, expectedAttemptNo int, now, staleBefore time.Time) (Attempt, bool, error)
	// ClaimDue claims up to limit attempts the same way: retrying attempts due
	// at now, and pending attempts last touched before staleBefore.
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit, maxAttempts int) ([]Attempt, error)
	// FailAbandoned marks pending attempts last touched before staleBefore that
	// have no tries left as failed. It returns how many were changed.
	FailAbandoned(ctx context.Context, now, staleBefore time.Time, maxAttempts int, message string) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (Attempt, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]Attempt, error)
}

// NewAttempt is the input of Ledger.CreateAttempt.
type NewAttempt struct {
	LeadID      uuid.UUID
	CampaignID  *uuid.UUID
	ClientID    uuid.UUID
	Trigger     Trigger
	Destination Destination
	Payload     json.RawMessage
}

// Failure describes a failed delivery.
type Failure struct {
	Status    *int
	Body      string
	Err       string
	Retryable bool
}

// Ledger owns attempt bookkeeping: idempotency, outcomes and retry eligibility.
type Ledger struct {
	store AttemptStore
	now   Clock
}

func NewLedger(store AttemptStore, clock Clock) *Ledger {
	return &Ledger{store: store, now: clock}
}

// CreateAttempt records a pending attempt number 1. When a success already
// exists for the idempotency key, it returns alreadyDelivered=true and creates nothing.
func (l *Ledger) CreateAttempt(ctx context.Context, in NewAttempt) (Attempt, bool, error) {
	destinationID := in.Destination.ID()

	delivered, err := l.delivered(ctx, in.LeadID, in.Trigger, destinationID)
	if err != nil {
		return Attempt{}, false, err
	}
	if delivered {
		return Attempt{}, true, nil
	}

	now := l.now()
	url, method := in.Destination.Target.requestLine()
	a := Attempt{
		ID:             uuid.New(),
		LeadID:         in.LeadID,
		CampaignID:     in.CampaignID,
		ClientID:       in.ClientID,
		Type:           in.Destination.Type(),
		Trigger:        in.Trigger,
		DestinationID:  destinationID,
		RequestPayload: in.Payload,
		RequestURL:     url,
		RequestMethod:  method,
		Status:         StatusPending,
		AttemptNo:      1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.Insert(ctx, a); err != nil {
		return Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	return a, false, nil
}

// RecordSuccess marks the attempt delivered.
func (l *Ledger) RecordSuccess(ctx context.Context, a *Attempt, status *int, body string) error {
	a.Status = StatusSuccess
	a.ResponseStatus = status
	a.ResponseBody = truncateBody(body)
	a.ErrorMessage = nil
	a.NextRetryAt = nil
	a.UpdatedAt = l.now()

	err := l.store.UpdateOutcome(ctx, *a)
	if errors.Is(err, ErrAlreadyDelivered) {
		// A concurrent attempt for the same key won the race.
		return l.RecordFailure(ctx, a, Failure{
			Status: status,
			Body:   body,
			Err:    "duplicate delivery: another attempt already succeeded for this lead, trigger and destination",
		})
	}
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// RecordFailure schedules a retry when the failure is retryable and attempts
// remain, otherwise marks the attempt failed.
func (l *Ledger) RecordFailure(ctx context.Context, a *Attempt, f Failure) error {
	now := l.now()
	a.ResponseStatus = f.Status
	a.ResponseBody = truncateBody(f.Body)
	msg := f.Err
	if msg == "" {
		msg = "delivery failed"
	}
	a.ErrorMessage = &msg
	a.UpdatedAt = now

	if f.Retryable && a.AttemptNo < MaxAttempts {
		next := now.Add(RetryDelay)
		a.Status = StatusRetrying
		a.NextRetryAt = &next
	} else {
		a.Status = StatusFailed
		a.NextRetryAt = nil
	}

	if err := l.store.UpdateOutcome(ctx, *a); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// AlreadyDelivered reports whether another attempt for the same lead, trigger
// and destination has succeeded.
func (l *Ledger) AlreadyDelivered(ctx context.Context, a Attempt) (bool, error) {
	return l.delivered(ctx, a.LeadID, a.Trigger, a.DestinationID)
}

func (l *Ledger) delivered(ctx context.Context, leadID uuid.UUID, trigger Trigger, destinationID uuid.UUID) (bool, error) {
	delivered, err := l.store.HasSuccess(ctx, leadID, trigger, destinationID)
	if err != nil {
		return false, fmt.Errorf("check delivered: %w", err)
	}
	return delivered, nil
}

// Abandoned reports whether a pending attempt has outlived its lease.
func (l *Ledger) Abandoned(a Attempt) bool {
	return a.Status == StatusPending && !a.UpdatedAt.After(l.staleBefore())
}

// CanRetry reports whether a retry may be started. Scheduled retries also
// require the retry time to have passed. An abandoned pending attempt may
// always be retried.
func (l *Ledger) CanRetry(a Attempt, scheduled bool) bool {
	if a.AttemptNo >= MaxAttempts {
		return false
	}
	if l.Abandoned(a) {
		return true
	}
	if a.Status != StatusRetrying && a.Status != StatusFailed {
		return false
	}
	if scheduled {
		return a.NextRetryAt != nil && !a.NextRetryAt.After(l.now())
	}
	return true
}

// IncrementForRetry claims the attempt for another try: attemptNo+1, pending.
func (l *Ledger) IncrementForRetry(ctx context.Context, a *Attempt) error {
	if a.AttemptNo >= MaxAttempts {
		return ErrRetryExhausted
	}

	claimed, ok, err := l.store.ClaimForRetry(ctx, a.ID, a.AttemptNo, l.now(), l.staleBefore())
	if err != nil {
		return fmt.Errorf("claim attempt: %w", err)
	}
	if !ok {
		return invalidOperation("attempt was claimed by another retry")
	}
	*a = claimed
	return nil
}

// ClaimDue claims retrying attempts whose retry time has passed and pending
// attempts whose run was abandoned. Abandoned attempts without tries left are
// failed instead; their count is returned as abandoned.
func (l *Ledger) ClaimDue(ctx context.Context, limit int) (claimed []Attempt, abandoned int, err error) {
	now, staleBefore := l.now(), l.staleBefore()

	abandoned, err = l.store.FailAbandoned(ctx, now, staleBefore, MaxAttempts, errAbandonedRun)
	if err != nil {
		return nil, 0, fmt.Errorf("fail abandoned attempts: %w", err)
	}

	claimed, err = l.store.ClaimDue(ctx, now, staleBefore, limit, MaxAttempts)
	if err != nil {
		return nil, abandoned, fmt.Errorf("claim due attempts: %w", err)
	}
	return claimed, abandoned, nil
}

const errAbandonedRun = "delivery run was abandoned before its outcome was recorded"

func (l *Ledger) staleBefore() time.Time {
	return l.now().Add(-PendingLease)
}

// Get loads one attempt.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (Attempt, error) {
	a, err := l.store.GetByID(ctx, id)
	if errors.Is(err, ErrAttemptNotFound) {
		return Attempt{}, apperr.Wrap(apperr.KindNotFound, "dispatch attempt not found", err)
	}
	return a, err
}

// ListByLead returns the audit trail of a lead, newest first.
func (l *Ledger) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Attempt, error) {
	return l.store.ListByLead(ctx, leadID)
}

func invalidOperation(msg string) error {
	return apperr.Wrap(apperr.KindConflict, msg, ErrInvalidOperation).WithCode("invalid_dispatch_operation")
}

func truncateBody(body string) *string {
	if body == "" {
		return nil
	}
	if len(body) > MaxResponseBodyBytes {
		cut := MaxResponseBodyBytes
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return &body
}
