package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

// Header names set on every webhook call.
const (
	HeaderAttempt        = "X-Dispatch-Attempt"
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderSignature      = "X-Signature-256"
)

// SheetAppender appends one row to a spreadsheet tab.
type SheetAppender interface {
	AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []any) error
}

// Executor performs deliveries and persists every outcome in the ledger
// before returning. Outcome events are handled before it returns too.
type Executor struct {
	ledger   *Ledger
	resolver *Resolver
	caller   HTTPCaller
	sheets   SheetAppender
	bus      events.Bus
	log      *logger.Logger
	timeout  time.Duration
}

// ExecutorDeps groups the executor's collaborators. Sheets and Bus may be nil.
type ExecutorDeps struct {
	Ledger   *Ledger
	Resolver *Resolver
	Caller   HTTPCaller
	Sheets   SheetAppender
	Bus      events.Bus
	Log      *logger.Logger
	Timeout  time.Duration
}

func NewExecutor(deps ExecutorDeps) *Executor {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		ledger:   deps.Ledger,
		resolver: deps.Resolver,
		caller:   deps.Caller,
		sheets:   deps.Sheets,
		bus:      deps.Bus,
		log:      log,
		timeout:  timeout,
	}
}

// Execute makes exactly one delivery for a pending attempt.
func (e *Executor) Execute(ctx context.Context, a *Attempt, dest Destination) AttemptResult {
	var err error
	switch target := dest.Target.(type) {
	case WebhookTarget:
		err = e.executeWebhook(ctx, a, target)
	case SheetTarget:
		err = e.executeSheetAppend(ctx, a, target)
	default:
		err = e.ledger.RecordFailure(ctx, a, Failure{Err: fmt.Sprintf("unsupported destination %T", dest.Target)})
	}
	return e.finish(ctx, a, err)
}

// Retry runs another try of a retrying, failed or abandoned attempt. scheduled retries
// additionally require the retry time to have passed.
func (e *Executor) Retry(ctx context.Context, attemptID uuid.UUID, scheduled bool) (AttemptResult, error) {
	a, err := e.ledger.Get(ctx, attemptID)
	if err != nil {
		return AttemptResult{}, err
	}
	if !e.ledger.CanRetry(a, scheduled) {
		if a.AttemptNo >= MaxAttempts && a.Status != StatusSuccess {
			return AttemptResult{Attempt: a}, invalidOperation("dispatch attempt has no retries left")
		}
		return AttemptResult{Attempt: a}, invalidOperation(fmt.Sprintf("dispatch attempt in status %s cannot be retried now", a.Status))
	}
	if err := e.ledger.IncrementForRetry(ctx, &a); err != nil {
		return AttemptResult{Attempt: a}, err
	}
	return e.Replay(ctx, a), nil
}

// Replay executes an attempt that has already been claimed for retry. It does
// not call out when another attempt for the same key has been delivered since.
func (e *Executor) Replay(ctx context.Context, a Attempt) AttemptResult {
	delivered, err := e.ledger.AlreadyDelivered(ctx, a)
	if err != nil {
		return e.finish(ctx, &a, e.ledger.RecordFailure(ctx, &a, Failure{
			Err:       err.Error(),
			Retryable: true,
		}))
	}
	if delivered {
		return e.finish(ctx, &a, e.ledger.RecordFailure(ctx, &a, Failure{
			Err: "already delivered by another attempt for this lead, trigger and destination",
		}))
	}

	dest, ok, err := e.resolver.ForAttempt(ctx, a)
	if err != nil {
		return e.finish(ctx, &a, e.ledger.RecordFailure(ctx, &a, Failure{
			Err:       "resolve destination: " + err.Error(),
			Retryable: true,
		}))
	}
	if !ok {
		return e.finish(ctx, &a, e.ledger.RecordFailure(ctx, &a, Failure{
			Err: "destination is no longer configured",
		}))
	}
	return e.Execute(ctx, &a, dest)
}

func (e *Executor) executeWebhook(ctx context.Context, a *Attempt, target WebhookTarget) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	headers := make(map[string]string, len(target.Headers)+4)
	for k, v := range target.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers[HeaderAttempt] = strconv.Itoa(a.AttemptNo)
	headers[HeaderIdempotencyKey] = a.IdempotencyKey()
	if target.Secret != "" {
		headers[HeaderSignature] = Sign(target.Secret, a.RequestPayload)
	}

	method := a.RequestMethod
	if method == "" {
		method = http.MethodPost
	}
	resp, err := e.caller.Call(callCtx, Request{
		Method:  method,
		URL:     a.RequestURL,
		Headers: headers,
		Body:    a.RequestPayload,
	})
	if err != nil {
		var status *int
		if resp.Status != 0 {
			status = &resp.Status
		}
		return e.ledger.RecordFailure(ctx, a, Failure{Status: status, Body: resp.Body, Err: err.Error(), Retryable: true})
	}

	status := resp.Status
	if isDelivered(status) {
		return e.ledger.RecordSuccess(ctx, a, &status, resp.Body)
	}
	return e.ledger.RecordFailure(ctx, a, Failure{
		Status:    &status,
		Body:      resp.Body,
		Err:       fmt.Sprintf("webhook responded with status %d", status),
		Retryable: true,
	})
}

// Sheet failures are final and never scheduled for retry.
func (e *Executor) executeSheetAppend(ctx context.Context, a *Attempt, target SheetTarget) error {
	if e.sheets == nil {
		return e.ledger.RecordFailure(ctx, a, Failure{Err: "spreadsheet integration is not configured"})
	}

	payload, err := DecodePayload(a.RequestPayload)
	if err != nil {
		return e.ledger.RecordFailure(ctx, a, Failure{Err: "decode payload: " + err.Error()})
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.sheets.AppendRow(callCtx, target.SpreadsheetID, target.SheetName, payload.Row()); err != nil {
		return e.ledger.RecordFailure(ctx, a, Failure{Err: "append row: " + err.Error()})
	}
	return e.ledger.RecordSuccess(ctx, a, nil, "row appended")
}

func (e *Executor) finish(ctx context.Context, a *Attempt, persistErr error) AttemptResult {
	if persistErr != nil {
		e.log.Error("failed to persist dispatch outcome", "attemptId", a.ID, "leadId", a.LeadID, "error", persistErr)
		return AttemptResult{Attempt: *a, Err: persistErr}
	}

	errMsg := ""
	if a.ErrorMessage != nil {
		errMsg = *a.ErrorMessage
	}
	e.log.DispatchOutcome(a.ID.String(), a.LeadID.String(), string(a.Type), string(a.Status), a.AttemptNo, errMsg)

	if e.bus != nil {
		err := e.bus.PublishSync(context.WithoutCancel(ctx), events.DispatchAttemptFinished{
			BaseEvent:      events.NewBaseEvent(),
			AttemptID:      a.ID,
			LeadID:         a.LeadID,
			ClientID:       a.ClientID,
			Type:           string(a.Type),
			Trigger:        string(a.Trigger),
			Status:         string(a.Status),
			AttemptNo:      a.AttemptNo,
			ResponseStatus: a.ResponseStatus,
			Error:          errMsg,
		})
		if err != nil {
			e.log.Warn("dispatch outcome handlers failed", "attemptId", a.ID, "error", err)
		}
	}

	return AttemptResult{Attempt: *a}
}
