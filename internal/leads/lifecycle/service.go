// Package lifecycle applies stage-machine rules to persisted leads.
// Every command loads the lead, mutates it through the domain rules, and saves
// it in a single version-guarded write before any side effect is emitted.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/platform/apperr"
	"lead_dispatch_backend/platform/logger"
)

// Repository is the persistence the service needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
}

type Clock func() time.Time

// Actor identifies who requested a change. The zero value means the orchestrator.
type Actor struct {
	Type string
	Name string
}

// SystemActor is used for changes made by background processes.
var SystemActor = Actor{Type: repository.ActorTypeSystem, Name: repository.ActorNameOrchestrator}

func (a Actor) orDefault() Actor {
	if a.Type == "" || a.Name == "" {
		return SystemActor
	}
	return a
}

// TransitionOptions extends the domain options with the requesting actor.
type TransitionOptions struct {
	domain.TransitionOptions
	Actor Actor
}

type Deps struct {
	Repo     Repository
	Timeline repository.TimelineEventStore
	Bus      events.Bus
	Log      *logger.Logger
	Clock    Clock
}

type Service struct {
	repo     Repository
	timeline repository.TimelineEventStore
	bus      events.Bus
	log      *logger.Logger
	now      Clock
}

func New(deps Deps) *Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		repo:     deps.Repo,
		timeline: deps.Timeline,
		bus:      deps.Bus,
		log:      log,
		now:      now,
	}
}

// Get returns the lead or a not-found error.
func (s *Service) Get(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return domain.Lead{}, mapRepoError(err, "lifecycle.Get")
	}
	return lead, nil
}

// NewLeadInput is the contact data a lead starts with.
type NewLeadInput struct {
	ClientID   uuid.UUID
	CampaignID *uuid.UUID
	FirstName  string
	LastName   string
	Phone      string
	Email      *string
}

// Create stores a new lead in Inbox with automation pending.
func (s *Service) Create(ctx context.Context, in NewLeadInput, actor Actor) (domain.Lead, error) {
	lead := domain.NewLead(in.ClientID, in.CampaignID, s.now())
	lead.FirstName = in.FirstName
	lead.LastName = in.LastName
	lead.Phone = in.Phone
	lead.Email = in.Email
	if err := lead.CheckInvariants(); err != nil {
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "refusing to persist inconsistent lead", err).WithOp("lifecycle.Create")
	}

	created, err := s.repo.Create(ctx, lead)
	if err != nil {
		return domain.Lead{}, mapRepoError(err, "lifecycle.Create")
	}

	actor = actor.orDefault()
	s.log.Info("lead created", "leadId", created.ID, "clientId", created.ClientID)
	s.writeTimeline(ctx, repository.CreateTimelineEventParams{
		LeadID:    created.ID,
		ClientID:  created.ClientID,
		ActorType: actor.Type,
		ActorName: actor.Name,
		EventType: repository.EventTypeLeadCreated,
		Title:     repository.EventTitleLeadCreated,
		Summary:   repository.TruncateSummary(created.FullName(), repository.TimelineSummaryMaxLen),
		Metadata:  repository.StageChangeMetadata{To: string(created.Stage)}.ToMap(),
	})
	return created, nil
}

// Timeline lists the lead's history for its client, newest first.
func (s *Service) Timeline(ctx context.Context, leadID, clientID uuid.UUID) ([]repository.TimelineEvent, error) {
	if s.timeline == nil {
		return []repository.TimelineEvent{}, nil
	}
	items, err := s.timeline.ListTimelineEvents(ctx, leadID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return items, nil
}

func (s *Service) TransitionTo(ctx context.Context, leadID uuid.UUID, to domain.Stage, opts TransitionOptions) (domain.Lead, error) {
	return s.apply(ctx, leadID, opts.Actor, opts.Reason, func(l *domain.Lead, now time.Time) error {
		return l.TransitionTo(to, opts.TransitionOptions, now)
	})
}

func (s *Service) Close(ctx context.Context, leadID uuid.UUID, reason domain.CloseReason, notes *string, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "closed: "+string(reason), func(l *domain.Lead, now time.Time) error {
		return l.Close(reason, notes, now)
	})
}

func (s *Service) Reopen(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "reopened", func(l *domain.Lead, now time.Time) error {
		return l.Reopen(now)
	})
}

func (s *Service) StartAutomation(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "automation started", func(l *domain.Lead, now time.Time) error {
		return l.StartAutomation(now)
	})
}

func (s *Service) PauseAutomation(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "automation paused", func(l *domain.Lead, now time.Time) error {
		return l.PauseAutomation(now)
	})
}

func (s *Service) FailAutomation(ctx context.Context, leadID uuid.UUID, message string, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "automation failed", func(l *domain.Lead, now time.Time) error {
		return l.FailAutomation(message, now)
	})
}

func (s *Service) MarkSalesReady(ctx context.Context, leadID uuid.UUID, assignTo *uuid.UUID, actor Actor) (domain.Lead, error) {
	return s.apply(ctx, leadID, actor, "qualified", func(l *domain.Lead, now time.Time) error {
		return l.MarkSalesReady(assignTo, now)
	})
}

type mutation func(l *domain.Lead, now time.Time) error

func (s *Service) apply(ctx context.Context, leadID uuid.UUID, actor Actor, reason string, mutate mutation) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return domain.Lead{}, mapRepoError(err, "lifecycle.load")
	}
	before := lead

	if err := mutate(&lead, s.now()); err != nil {
		return domain.Lead{}, err
	}
	if err := lead.CheckInvariants(); err != nil {
		return domain.Lead{}, apperr.Wrap(apperr.KindInternal, "refusing to persist inconsistent lead", err).WithOp("lifecycle.apply")
	}

	saved, err := s.repo.Save(ctx, lead)
	if err != nil {
		return domain.Lead{}, mapRepoError(err, "lifecycle.save")
	}

	s.afterCommit(ctx, before, saved, actor.orDefault(), reason)
	return saved, nil
}

// afterCommit runs only once the write is durable. Failures here never undo the change.
func (s *Service) afterCommit(ctx context.Context, before, after domain.Lead, actor Actor, reason string) {
	if before.Stage != after.Stage {
		s.recordStageChange(ctx, before, after, actor, reason)
		return
	}
	if before.AutomationStatus != after.AutomationStatus {
		s.recordAutomationChange(ctx, before, after, actor)
	}
}

func (s *Service) recordStageChange(ctx context.Context, before, after domain.Lead, actor Actor, reason string) {
	from, to := string(before.Stage), string(after.Stage)
	s.log.StageTransition(after.ID.String(), from, to, reason)

	title := repository.EventTitleStageUpdated
	switch {
	case after.Stage == domain.StageClosed:
		title = repository.EventTitleLeadClosed
	case before.Stage == domain.StageClosed:
		title = repository.EventTitleLeadReopened
	}

	metadata := repository.StageChangeMetadata{From: from, To: to, Reason: reason}
	if after.CloseReason != nil {
		closeReason := string(*after.CloseReason)
		metadata.CloseReason = &closeReason
	}
	s.writeTimeline(ctx, repository.CreateTimelineEventParams{
		LeadID:    after.ID,
		ClientID:  after.ClientID,
		ActorType: actor.Type,
		ActorName: actor.Name,
		EventType: repository.EventTypeStageChange,
		Title:     title,
		Summary:   repository.TruncateSummary(stageSummary(from, to, reason), repository.TimelineSummaryMaxLen),
		Metadata:  metadata.ToMap(),
	})

	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.LeadStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    after.ID,
		ClientID:  after.ClientID,
		From:      from,
		To:        to,
		Reason:    reason,
	})
	switch {
	case after.Stage == domain.StageClosed && after.CloseReason != nil:
		s.bus.Publish(ctx, events.LeadClosed{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      after.ID,
			ClientID:    after.ClientID,
			CampaignID:  after.CampaignID,
			CloseReason: string(*after.CloseReason),
		})
	case before.Stage == domain.StageClosed:
		s.bus.Publish(ctx, events.LeadReopened{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    after.ID,
			ClientID:  after.ClientID,
		})
	}
}

func (s *Service) recordAutomationChange(ctx context.Context, before, after domain.Lead, actor Actor) {
	from, to := string(before.AutomationStatus), string(after.AutomationStatus)
	s.log.Info("lead automation status changed", "leadId", after.ID, "from", from, "to", to)

	s.writeTimeline(ctx, repository.CreateTimelineEventParams{
		LeadID:    after.ID,
		ClientID:  after.ClientID,
		ActorType: actor.Type,
		ActorName: actor.Name,
		EventType: repository.EventTypeAutomationChange,
		Title:     repository.EventTitleAutomationUpdated,
		Summary:   repository.TruncateSummary(from+" → "+to, repository.TimelineSummaryMaxLen),
		Metadata: repository.AutomationChangeMetadata{
			From:  from,
			To:    to,
			Error: after.AutomationError,
		}.ToMap(),
	})
}

func (s *Service) writeTimeline(ctx context.Context, params repository.CreateTimelineEventParams) {
	if s.timeline == nil {
		return
	}
	if _, err := s.timeline.CreateTimelineEvent(ctx, params); err != nil {
		s.log.Warn("failed to write timeline event", "leadId", params.LeadID, "eventType", params.EventType, "error", err)
	}
}

func stageSummary(from, to, reason string) string {
	if reason == "" {
		return fmt.Sprintf("%s → %s", from, to)
	}
	return fmt.Sprintf("%s → %s (%s)", from, to, reason)
}

func mapRepoError(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "lead not found", err).WithOp(op)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperr.Wrap(apperr.KindConflict, "lead was modified concurrently, reload and retry", err).
			WithOp(op).WithCode("version_conflict")
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
