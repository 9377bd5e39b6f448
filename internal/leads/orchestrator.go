package leads

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/internal/leads/lifecycle"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/platform/apperr"
	"lead_dispatch_backend/platform/config"
	"lead_dispatch_backend/platform/logger"
)

// OutcomeDispatcher delivers close outcomes and replays failed deliveries.
type OutcomeDispatcher interface {
	DispatchClose(ctx context.Context, lead domain.Lead) (*dispatch.AttemptResult, error)
	RetryDue(ctx context.Context, limit, concurrency int) ([]dispatch.AttemptResult, error)
	Retry(ctx context.Context, attemptID uuid.UUID) (dispatch.AttemptResult, error)
	Attempt(ctx context.Context, attemptID uuid.UUID) (dispatch.Attempt, error)
	Attempts(ctx context.Context, leadID uuid.UUID) ([]dispatch.Attempt, error)
}

// Orchestrator sequences stage changes with outcome delivery.
// A stage change is committed before any delivery starts, and delivery
// problems never turn a committed change into an error.
type Orchestrator struct {
	lifecycle  *lifecycle.Service
	dispatcher OutcomeDispatcher
	pipeline   repository.PipelineReader
	eventBus   events.Bus
	log        *logger.Logger

	sweepBatch       int
	sweepConcurrency int

	// in-process guard against double manual retries of one attempt
	activeRuns map[string]bool
	runsMu     sync.Mutex
}

type OrchestratorDeps struct {
	Lifecycle  *lifecycle.Service
	Dispatcher OutcomeDispatcher
	Pipeline   repository.PipelineReader
	EventBus   events.Bus
	Log        *logger.Logger
	Config     config.DispatchConfig
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	batch, concurrency := 100, 4
	if deps.Config != nil {
		batch = deps.Config.GetDispatchSweepBatchSize()
		concurrency = deps.Config.GetDispatchSweepConcurrency()
	}
	return &Orchestrator{
		lifecycle:        deps.Lifecycle,
		dispatcher:       deps.Dispatcher,
		pipeline:         deps.Pipeline,
		eventBus:         deps.EventBus,
		log:              log,
		sweepBatch:       batch,
		sweepConcurrency: concurrency,
		activeRuns:       make(map[string]bool),
	}
}

// markRunning returns false when the key is already being processed.
func (o *Orchestrator) markRunning(key string) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()

	if o.activeRuns[key] {
		return false
	}
	o.activeRuns[key] = true
	return true
}

func (o *Orchestrator) markComplete(key string) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	delete(o.activeRuns, key)
}

func (o *Orchestrator) Get(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	return o.lifecycle.Get(ctx, leadID)
}

func (o *Orchestrator) CreateLead(ctx context.Context, in lifecycle.NewLeadInput, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.Create(ctx, in, actor)
}

func (o *Orchestrator) Timeline(ctx context.Context, leadID, clientID uuid.UUID) ([]repository.TimelineEvent, error) {
	return o.lifecycle.Timeline(ctx, leadID, clientID)
}

// CloseLead closes the lead and then delivers its outcome.
func (o *Orchestrator) CloseLead(ctx context.Context, leadID uuid.UUID, reason domain.CloseReason, notes *string, actor lifecycle.Actor) (domain.Lead, error) {
	lead, err := o.lifecycle.Close(ctx, leadID, reason, notes, actor)
	if err != nil {
		return domain.Lead{}, err
	}
	o.dispatchClosed(ctx, lead)
	return lead, nil
}

// Transition applies a generic stage change. Reaching Closed this way delivers
// the outcome exactly like CloseLead.
func (o *Orchestrator) Transition(ctx context.Context, leadID uuid.UUID, to domain.Stage, opts lifecycle.TransitionOptions) (domain.Lead, error) {
	lead, err := o.lifecycle.TransitionTo(ctx, leadID, to, opts)
	if err != nil {
		return domain.Lead{}, err
	}
	if lead.IsClosed() {
		o.dispatchClosed(ctx, lead)
	}
	return lead, nil
}

func (o *Orchestrator) Reopen(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.Reopen(ctx, leadID, actor)
}

func (o *Orchestrator) StartAutomation(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.StartAutomation(ctx, leadID, actor)
}

func (o *Orchestrator) PauseAutomation(ctx context.Context, leadID uuid.UUID, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.PauseAutomation(ctx, leadID, actor)
}

func (o *Orchestrator) FailAutomation(ctx context.Context, leadID uuid.UUID, message string, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.FailAutomation(ctx, leadID, message, actor)
}

func (o *Orchestrator) MarkSalesReady(ctx context.Context, leadID uuid.UUID, assignTo *uuid.UUID, actor lifecycle.Actor) (domain.Lead, error) {
	return o.lifecycle.MarkSalesReady(ctx, leadID, assignTo, actor)
}

func (o *Orchestrator) dispatchClosed(ctx context.Context, lead domain.Lead) {
	result, err := o.dispatcher.DispatchClose(ctx, lead)
	switch {
	case err != nil:
		o.log.Error("orchestrator: outcome dispatch failed", "leadId", lead.ID, "error", err)
	case result == nil:
		o.log.Debug("orchestrator: nothing to dispatch for closed lead", "leadId", lead.ID)
	case result.AlreadyDelivered:
		o.log.Debug("orchestrator: outcome already delivered", "leadId", lead.ID)
	case result.Err != nil:
		o.log.Error("orchestrator: dispatch outcome not persisted", "leadId", lead.ID, "error", result.Err)
	}
}

// RetrySweep claims due attempts and replays them. Running it with nothing
// due returns an empty slice.
func (o *Orchestrator) RetrySweep(ctx context.Context) ([]dispatch.AttemptResult, error) {
	results, err := o.dispatcher.RetryDue(ctx, o.sweepBatch, o.sweepConcurrency)
	if err != nil {
		return nil, err
	}

	summary := dispatch.SummarizeSweep(results)
	if summary.Claimed > 0 {
		o.log.Info("orchestrator: retry sweep finished",
			"claimed", summary.Claimed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed)
	}
	if o.eventBus != nil {
		o.eventBus.Publish(ctx, events.DispatchSweepCompleted{
			BaseEvent: events.NewBaseEvent(),
			Claimed:   summary.Claimed,
			Succeeded: summary.Succeeded,
			Failed:    summary.Failed,
		})
	}
	return results, nil
}

// RetryAttempt is a manual retry of a single attempt owned by clientID.
func (o *Orchestrator) RetryAttempt(ctx context.Context, clientID, attemptID uuid.UUID) (dispatch.AttemptResult, error) {
	attempt, err := o.dispatcher.Attempt(ctx, attemptID)
	if err != nil {
		return dispatch.AttemptResult{}, err
	}
	if attempt.ClientID != clientID {
		return dispatch.AttemptResult{}, apperr.NotFound("dispatch attempt not found").WithOp("leads.RetryAttempt")
	}

	key := "retry:" + attemptID.String()
	if !o.markRunning(key) {
		return dispatch.AttemptResult{}, apperr.Conflict("a retry of this attempt is already running").
			WithOp("leads.RetryAttempt").WithCode("retry_in_progress")
	}
	defer o.markComplete(key)

	return o.dispatcher.Retry(ctx, attemptID)
}

func (o *Orchestrator) ListAttempts(ctx context.Context, leadID uuid.UUID) ([]dispatch.Attempt, error) {
	return o.dispatcher.Attempts(ctx, leadID)
}

func (o *Orchestrator) ActivePipeline(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error) {
	return o.pipeline.ListActivePipeline(ctx, clientID, limit)
}

func (o *Orchestrator) SalesReady(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error) {
	return o.pipeline.ListSalesReady(ctx, clientID, limit)
}
