package dispatch

import (
	"context"
	"errors"
	"testing"

	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/platform/apperr"
	"lead_dispatch_backend/platform/logger"
)

func TestWebhookRequestHeaders(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionInterested)}
	lead := h.closedLead(t, domain.CloseReasonInterested)

	result, err := h.dispatcher.DispatchClose(context.Background(), lead)
	if err != nil || result == nil {
		t.Fatalf("dispatch: result=%v err=%v", result, err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %s", result.Attempt.Status)
	}

	req := h.caller.requests[0]
	if req.Method != "POST" || req.URL != "https://crm.example.com/hooks/leads" {
		t.Fatalf("unexpected request line %s %s", req.Method, req.URL)
	}
	if req.Headers["Content-Type"] != "application/json" {
		t.Fatalf("missing JSON content type: %v", req.Headers)
	}
	if req.Headers["Authorization"] != "Bearer abc" {
		t.Fatal("configured headers must be forwarded")
	}
	if req.Headers[HeaderAttempt] != "1" {
		t.Fatalf("expected attempt header 1, got %q", req.Headers[HeaderAttempt])
	}
	if req.Headers[HeaderIdempotencyKey] != result.Attempt.IdempotencyKey() {
		t.Fatalf("unexpected idempotency key %q", req.Headers[HeaderIdempotencyKey])
	}
	if req.Headers[HeaderSignature] != Sign("s3cret", req.Body) {
		t.Fatal("signature must cover the request body")
	}

	payload, err := DecodePayload(req.Body)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.LeadID != lead.ID.String() || payload.CloseReason != "Interested" || payload.Phone != "+31612345678" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebhookRedirectCountsAsDelivered(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionInterested)}
	h.caller.responses = []stubResponse{{status: 302}}

	result, _ := h.dispatcher.DispatchClose(context.Background(), h.closedLead(t, domain.CloseReasonWon))
	if result == nil || result.Attempt.Status != StatusSuccess {
		t.Fatalf("expected 3xx to count as success, got %+v", result)
	}
}

func TestWebhookTransportErrorIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionInterested)}
	h.caller.responses = []stubResponse{{err: errors.New("dial tcp: connection refused")}}

	result, _ := h.dispatcher.DispatchClose(context.Background(), h.closedLead(t, domain.CloseReasonInterested))
	if result.Attempt.Status != StatusRetrying {
		t.Fatalf("expected retrying, got %s", result.Attempt.Status)
	}
	if result.Attempt.ResponseStatus != nil {
		t.Fatal("transport errors have no response status")
	}
}

func TestWebhookCallIsBoundedEvenWhenCallerIsCancelled(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionInterested)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.dispatcher.DispatchClose(ctx, h.closedLead(t, domain.CloseReasonInterested))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// stubCaller fails calls without a deadline, so success proves the timeout was applied.
	if result.Attempt.Status != StatusSuccess {
		t.Fatalf("expected delivery to ignore caller cancellation, got %s", result.Attempt.Status)
	}
}

func TestSheetAppend(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.sheetAction(IntentionNotInterested)}

	result, err := h.dispatcher.DispatchClose(context.Background(), h.closedLead(t, domain.CloseReasonNoBudget))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Attempt.Status != StatusSuccess || result.Attempt.Type != TypeGoogleSheet {
		t.Fatalf("expected sheet success, got %s/%s", result.Attempt.Type, result.Attempt.Status)
	}
	if len(h.sheets.rows) != 1 || len(h.sheets.rows[0]) != len(PayloadColumns) {
		t.Fatalf("expected one row with %d columns, got %v", len(PayloadColumns), h.sheets.rows)
	}
	if h.caller.calls() != 0 {
		t.Fatal("sheet delivery must not call webhooks")
	}
}

func TestSheetFailuresAreNotRetried(t *testing.T) {
	t.Run("append error", func(t *testing.T) {
		h := newHarness(t)
		h.destinations.actions = []IntentionAction{h.sheetAction(IntentionNotInterested)}
		h.sheets.err = errors.New("permission denied")

		result, _ := h.dispatcher.DispatchClose(context.Background(), h.closedLead(t, domain.CloseReasonNotInterested))
		if result.Attempt.Status != StatusFailed || result.Attempt.NextRetryAt != nil {
			t.Fatalf("expected terminal failure, got %s %v", result.Attempt.Status, result.Attempt.NextRetryAt)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t)
		h.rebuild(nil)
		h.destinations.actions = []IntentionAction{h.sheetAction(IntentionNotInterested)}

		result, _ := h.dispatcher.DispatchClose(context.Background(), h.closedLead(t, domain.CloseReasonNotInterested))
		if result.Attempt.Status != StatusFailed {
			t.Fatalf("expected failed, got %s", result.Attempt.Status)
		}
		if result.Attempt.ErrorMessage == nil || *result.Attempt.ErrorMessage != "spreadsheet integration is not configured" {
			t.Fatalf("unexpected error message %v", result.Attempt.ErrorMessage)
		}
	})
}

func TestRetryPreconditions(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionNotInterested)}
	h.caller.responses = []stubResponse{{status: 500}}
	ctx := context.Background()

	result, _ := h.dispatcher.DispatchClose(ctx, h.closedLead(t, domain.CloseReasonNotInterested))
	id := result.Attempt.ID

	if _, err := h.executor.Retry(ctx, id, true); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("scheduled retry before due: expected invalid operation, got %v", err)
	} else if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict kind, got %v", apperr.GetKind(err))
	}

	h.caller.responses = []stubResponse{{status: 200}}
	retried, err := h.executor.Retry(ctx, id, false)
	if err != nil {
		t.Fatalf("manual retry: %v", err)
	}
	if retried.Attempt.Status != StatusSuccess || retried.Attempt.AttemptNo != 2 {
		t.Fatalf("expected success on attempt 2, got %s/%d", retried.Attempt.Status, retried.Attempt.AttemptNo)
	}

	if _, err := h.executor.Retry(ctx, id, false); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("retrying a success: expected invalid operation, got %v", err)
	}
}

func TestRetryUnknownAttemptIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.executor.Retry(context.Background(), h.webhookID, false)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRetryWithRemovedDestinationFailsTerminally(t *testing.T) {
	h := newHarness(t)
	h.destinations.actions = []IntentionAction{h.webhookAction(IntentionNotInterested)}
	h.caller.responses = []stubResponse{{status: 500}}
	ctx := context.Background()

	result, _ := h.dispatcher.DispatchClose(ctx, h.closedLead(t, domain.CloseReasonNotInterested))
	h.destinations.actions = nil

	retried, err := h.executor.Retry(ctx, result.Attempt.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retried.Attempt.Status != StatusFailed || retried.Attempt.NextRetryAt != nil {
		t.Fatalf("expected terminal failure, got %s", retried.Attempt.Status)
	}
	if h.caller.calls() != 1 {
		t.Fatalf("no call expected for an unresolvable destination, got %d calls", h.caller.calls())
	}
}

func TestOutcomeEventIsHandledBeforeExecuteReturns(t *testing.T) {
	h := newHarness(t)
	bus := events.NewInMemoryBus(logger.Discard())
	var seen []events.DispatchAttemptFinished
	bus.Subscribe(events.DispatchAttemptFinished{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		seen = append(seen, e.(events.DispatchAttemptFinished))
		return errors.New("timeline unavailable")
	}))
	executor := NewExecutor(ExecutorDeps{
		Ledger:   h.ledger,
		Resolver: NewResolver(h.destinations),
		Caller:   h.caller,
		Bus:      bus,
		Log:      logger.Discard(),
	})

	a := newPendingAttempt(t, h)
	dest, _, err := h.webhookAction(IntentionInterested).toDestination()
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	result := executor.Execute(context.Background(), &a, dest)

	if result.Err != nil {
		t.Fatalf("a failing handler must not fail the attempt: %v", result.Err)
	}
	if len(seen) != 1 || seen[0].AttemptID != a.ID || seen[0].Status != string(StatusSuccess) {
		t.Fatalf("expected one success event before return, got %+v", seen)
	}
}
