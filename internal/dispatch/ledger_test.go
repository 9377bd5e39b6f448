package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

func newPendingAttempt(t *testing.T, h *harness) Attempt {
	t.Helper()
	dest, _, err := h.webhookAction(IntentionInterested).toDestination()
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	a, delivered, err := h.ledger.CreateAttempt(context.Background(), NewAttempt{
		LeadID:      uuid.New(),
		ClientID:    uuid.New(),
		Trigger:     TriggerOnInterested,
		Destination: dest,
		Payload:     []byte(`{"event":"on_interested"}`),
	})
	if err != nil || delivered {
		t.Fatalf("create attempt: delivered=%v err=%v", delivered, err)
	}
	return a
}

func TestCreateAttemptSnapshotsRequest(t *testing.T) {
	h := newHarness(t)
	a := newPendingAttempt(t, h)

	if a.Status != StatusPending || a.AttemptNo != 1 {
		t.Fatalf("expected pending attempt 1, got %s/%d", a.Status, a.AttemptNo)
	}
	if a.RequestURL != "https://crm.example.com/hooks/leads" || a.RequestMethod != "POST" {
		t.Fatalf("unexpected request line %s %s", a.RequestMethod, a.RequestURL)
	}
	if a.Type != TypeWebhook || a.DestinationID != h.webhookID {
		t.Fatalf("unexpected type/destination %s/%s", a.Type, a.DestinationID)
	}
	if a.NextRetryAt != nil {
		t.Fatal("pending attempt must not have a retry time")
	}
}

func TestCreateAttemptReturnsAlreadyDelivered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newPendingAttempt(t, h)
	status := 200
	if err := h.ledger.RecordSuccess(ctx, &a, &status, "ok"); err != nil {
		t.Fatalf("record success: %v", err)
	}

	dest, _, _ := h.webhookAction(IntentionInterested).toDestination()
	_, delivered, err := h.ledger.CreateAttempt(ctx, NewAttempt{
		LeadID:      a.LeadID,
		ClientID:    a.ClientID,
		Trigger:     TriggerOnInterested,
		Destination: dest,
		Payload:     a.RequestPayload,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delivered {
		t.Fatal("expected already delivered")
	}
	if n := len(h.attempts.all()); n != 1 {
		t.Fatalf("expected no new attempt, got %d rows", n)
	}
}

func TestRecordFailureSchedulesRetry(t *testing.T) {
	h := newHarness(t)
	a := newPendingAttempt(t, h)
	status := 503

	if err := h.ledger.RecordFailure(context.Background(), &a, Failure{Status: &status, Body: "busy", Err: "unavailable", Retryable: true}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if a.Status != StatusRetrying {
		t.Fatalf("expected retrying, got %s", a.Status)
	}
	if a.NextRetryAt == nil || !a.NextRetryAt.Equal(h.clock.Now().Add(RetryDelay)) {
		t.Fatalf("expected retry at now+%s, got %v", RetryDelay, a.NextRetryAt)
	}
	if a.ErrorMessage == nil || *a.ErrorMessage != "unavailable" {
		t.Fatalf("unexpected error message %v", a.ErrorMessage)
	}
}

func TestRecordFailureTerminalCases(t *testing.T) {
	tests := []struct {
		name      string
		attemptNo int
		retryable bool
	}{
		{name: "non retryable", attemptNo: 1, retryable: false},
		{name: "last attempt", attemptNo: MaxAttempts, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			a := newPendingAttempt(t, h)
			a.AttemptNo = tt.attemptNo

			if err := h.ledger.RecordFailure(context.Background(), &a, Failure{Err: "nope", Retryable: tt.retryable}); err != nil {
				t.Fatalf("record failure: %v", err)
			}
			if a.Status != StatusFailed || a.NextRetryAt != nil {
				t.Fatalf("expected failed without retry time, got %s %v", a.Status, a.NextRetryAt)
			}
		})
	}
}

func TestRecordSuccessLosingRaceBecomesFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := newPendingAttempt(t, h)

	second := first
	second.ID = uuid.New()
	if err := h.attempts.Insert(ctx, second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	status := 200
	if err := h.ledger.RecordSuccess(ctx, &first, &status, "ok"); err != nil {
		t.Fatalf("first success: %v", err)
	}
	if err := h.ledger.RecordSuccess(ctx, &second, &status, "ok"); err != nil {
		t.Fatalf("second success: %v", err)
	}
	if second.Status != StatusFailed {
		t.Fatalf("expected duplicate success to be recorded as failed, got %s", second.Status)
	}

	successes := 0
	for _, a := range h.attempts.all() {
		if a.Status == StatusSuccess {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}

func TestCanRetry(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)
	leaseExpired := now.Add(-PendingLease)
	inFlight := now.Add(-time.Minute)

	tests := []struct {
		name      string
		attempt   Attempt
		scheduled bool
		want      bool
	}{
		{name: "due retry", attempt: Attempt{Status: StatusRetrying, AttemptNo: 1, NextRetryAt: &past}, scheduled: true, want: true},
		{name: "not yet due", attempt: Attempt{Status: StatusRetrying, AttemptNo: 1, NextRetryAt: &future}, scheduled: true, want: false},
		{name: "manual before due", attempt: Attempt{Status: StatusRetrying, AttemptNo: 1, NextRetryAt: &future}, want: true},
		{name: "manual of failed", attempt: Attempt{Status: StatusFailed, AttemptNo: 1}, want: true},
		{name: "scheduled of failed", attempt: Attempt{Status: StatusFailed, AttemptNo: 1}, scheduled: true, want: false},
		{name: "exhausted", attempt: Attempt{Status: StatusFailed, AttemptNo: MaxAttempts}, want: false},
		{name: "success", attempt: Attempt{Status: StatusSuccess, AttemptNo: 1}, want: false},
		{name: "pending", attempt: Attempt{Status: StatusPending, AttemptNo: 1, UpdatedAt: inFlight}, want: false},
		{name: "abandoned pending", attempt: Attempt{Status: StatusPending, AttemptNo: 1, UpdatedAt: leaseExpired}, scheduled: true, want: true},
		{name: "abandoned pending without retries", attempt: Attempt{Status: StatusPending, AttemptNo: MaxAttempts, UpdatedAt: leaseExpired}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.ledger.CanRetry(tt.attempt, tt.scheduled); got != tt.want {
				t.Fatalf("CanRetry = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIncrementForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := newPendingAttempt(t, h)
	if err := h.ledger.RecordFailure(ctx, &a, Failure{Err: "down", Retryable: true}); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	stale := a
	if err := h.ledger.IncrementForRetry(ctx, &a); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if a.AttemptNo != 2 || a.Status != StatusPending || a.NextRetryAt != nil {
		t.Fatalf("unexpected claimed attempt %d/%s/%v", a.AttemptNo, a.Status, a.NextRetryAt)
	}

	if err := h.ledger.IncrementForRetry(ctx, &stale); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("second claim of the same attempt: expected invalid operation, got %v", err)
	}

	a.AttemptNo = MaxAttempts
	if err := h.ledger.IncrementForRetry(ctx, &a); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected retry exhausted, got %v", err)
	}
}

func TestTruncateBody(t *testing.T) {
	if truncateBody("") != nil {
		t.Fatal("empty body should be nil")
	}
	long := strings.Repeat("é", MaxResponseBodyBytes)
	got := truncateBody(long)
	if len(*got) > MaxResponseBodyBytes {
		t.Fatalf("body not truncated: %d bytes", len(*got))
	}
	if !strings.HasPrefix(long, *got) || !utf8.ValidString(*got) {
		t.Fatal("truncation must cut on a rune boundary")
	}
}
