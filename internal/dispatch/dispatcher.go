package dispatch

import (
	"context"
	"fmt"

	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs the close chain (classify, resolve, record, execute) and the retry sweep.
type Dispatcher struct {
	resolver    *Resolver
	ledger      *Ledger
	executor    *Executor
	log         *logger.Logger
	now         Clock
	phoneRegion string
}

// DispatcherDeps groups the dispatcher's collaborators.
type DispatcherDeps struct {
	Resolver    *Resolver
	Ledger      *Ledger
	Executor    *Executor
	Log         *logger.Logger
	Clock       Clock
	PhoneRegion string
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Dispatcher{
		resolver:    deps.Resolver,
		ledger:      deps.Ledger,
		executor:    deps.Executor,
		log:         log,
		now:         deps.Clock,
		phoneRegion: deps.PhoneRegion,
	}
}

// DispatchClose delivers the outcome of a closed lead. It returns nil when the
// close reason or campaign configuration means nothing should be delivered.
func (d *Dispatcher) DispatchClose(ctx context.Context, lead domain.Lead) (*AttemptResult, error) {
	if !lead.IsClosed() || lead.CloseReason == nil {
		return nil, nil
	}

	outcome, ok := Classify(*lead.CloseReason)
	if !ok {
		d.log.Debug("close reason has no dispatch semantics", "leadId", lead.ID, "closeReason", *lead.CloseReason)
		return nil, nil
	}

	dest, ok, err := d.resolver.Resolve(ctx, lead.CampaignID, outcome.Intention)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	if !ok {
		d.log.Debug("no dispatch destination configured", "leadId", lead.ID, "intention", outcome.Intention)
		return nil, nil
	}

	body, err := BuildPayload(lead, outcome, d.phoneRegion, d.now()).JSON()
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	attempt, delivered, err := d.ledger.CreateAttempt(ctx, NewAttempt{
		LeadID:      lead.ID,
		CampaignID:  lead.CampaignID,
		ClientID:    lead.ClientID,
		Trigger:     outcome.Trigger,
		Destination: dest,
		Payload:     body,
	})
	if err != nil {
		return nil, err
	}
	if delivered {
		d.log.Debug("dispatch already delivered", "leadId", lead.ID, "trigger", outcome.Trigger, "destinationId", dest.ID())
		return &AttemptResult{AlreadyDelivered: true}, nil
	}

	result := d.executor.Execute(ctx, &attempt, dest)
	return &result, nil
}

// RetryDue claims up to limit due attempts and replays them with at most
// concurrency deliveries in flight. The result is empty when nothing is due.
func (d *Dispatcher) RetryDue(ctx context.Context, limit, concurrency int) ([]AttemptResult, error) {
	claimed, abandoned, err := d.ledger.ClaimDue(ctx, limit)
	if err != nil {
		return nil, err
	}
	if abandoned > 0 {
		d.log.Warn("failed abandoned dispatch attempts with no retries left", "count", abandoned)
	}

	results := make([]AttemptResult, len(claimed))
	if len(claimed) == 0 {
		return results, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, a := range claimed {
		i, a := i, a
		g.Go(func() error {
			results[i] = d.executor.Replay(ctx, a)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Retry is a manual retry of one attempt.
func (d *Dispatcher) Retry(ctx context.Context, attemptID uuid.UUID) (AttemptResult, error) {
	return d.executor.Retry(ctx, attemptID, false)
}

// Attempts lists the delivery audit trail of a lead.
func (d *Dispatcher) Attempts(ctx context.Context, leadID uuid.UUID) ([]Attempt, error) {
	return d.ledger.ListByLead(ctx, leadID)
}

// Attempt loads a single attempt.
func (d *Dispatcher) Attempt(ctx context.Context, attemptID uuid.UUID) (Attempt, error) {
	return d.ledger.Get(ctx, attemptID)
}
