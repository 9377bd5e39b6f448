package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/platform/apperr"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type memoryLeadRepo struct {
	mu        sync.Mutex
	leads     map[uuid.UUID]domain.Lead
	saveCalls int
	failSave  error
}

func newMemoryLeadRepo(leads ...domain.Lead) *memoryLeadRepo {
	repo := &memoryLeadRepo{leads: make(map[uuid.UUID]domain.Lead)}
	for _, lead := range leads {
		repo.leads[lead.ID] = lead
	}
	return repo
}

func (r *memoryLeadRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (r *memoryLeadRepo) Create(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[lead.ID]; ok {
		return domain.Lead{}, errors.New("duplicate lead id")
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *memoryLeadRepo) Save(_ context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCalls++
	if r.failSave != nil {
		return domain.Lead{}, r.failSave
	}
	current, ok := r.leads[lead.ID]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if current.Version != lead.Version {
		return domain.Lead{}, repository.ErrVersionConflict
	}
	lead.Version++
	r.leads[lead.ID] = lead
	return lead, nil
}

type recordingTimeline struct {
	mu     sync.Mutex
	events []repository.CreateTimelineEventParams
	err    error
}

func (t *recordingTimeline) CreateTimelineEvent(_ context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return repository.TimelineEvent{}, t.err
	}
	t.events = append(t.events, params)
	return repository.TimelineEvent{ID: uuid.New(), LeadID: params.LeadID, EventType: params.EventType}, nil
}

func (t *recordingTimeline) ListTimelineEvents(_ context.Context, leadID, clientID uuid.UUID) ([]repository.TimelineEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	items := make([]repository.TimelineEvent, 0)
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if e.LeadID == leadID && e.ClientID == clientID {
			items = append(items, repository.TimelineEvent{LeadID: e.LeadID, ClientID: e.ClientID, EventType: e.EventType, Title: e.Title})
		}
	}
	return items, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.published))
	for _, event := range b.published {
		names = append(names, event.EventName())
	}
	return names
}

type fixture struct {
	svc      *Service
	repo     *memoryLeadRepo
	timeline *recordingTimeline
	bus      *recordingBus
}

func newFixture(leads ...domain.Lead) fixture {
	f := fixture{
		repo:     newMemoryLeadRepo(leads...),
		timeline: &recordingTimeline{},
		bus:      &recordingBus{},
	}
	f.svc = New(Deps{
		Repo:     f.repo,
		Timeline: f.timeline,
		Bus:      f.bus,
		Clock:    func() time.Time { return testNow },
	})
	return f
}

func leadIn(stage domain.Stage, automation domain.AutomationStatus) domain.Lead {
	lead := domain.NewLead(uuid.New(), nil, testNow.Add(-time.Hour))
	lead.Stage = stage
	lead.AutomationStatus = automation
	return lead
}

func TestStartAutomationMovesInboxLeadToQualifying(t *testing.T) {
	lead := leadIn(domain.StageInbox, domain.AutomationPending)
	f := newFixture(lead)

	updated, err := f.svc.StartAutomation(context.Background(), lead.ID, Actor{})
	if err != nil {
		t.Fatalf("StartAutomation returned error: %v", err)
	}
	if updated.Stage != domain.StageQualifying || updated.AutomationStatus != domain.AutomationRunning {
		t.Fatalf("expected Qualifying/Running, got %s/%s", updated.Stage, updated.AutomationStatus)
	}
	if updated.Version != lead.Version+1 {
		t.Fatalf("expected version bump, got %d", updated.Version)
	}

	if len(f.timeline.events) != 1 {
		t.Fatalf("expected one timeline entry, got %d", len(f.timeline.events))
	}
	entry := f.timeline.events[0]
	if entry.EventType != repository.EventTypeStageChange {
		t.Fatalf("expected stage change entry, got %s", entry.EventType)
	}
	if entry.Summary == nil || *entry.Summary != "Inbox → Qualifying (automation started)" {
		t.Fatalf("unexpected summary %v", entry.Summary)
	}
	if entry.ActorType != repository.ActorTypeSystem || entry.ActorName != repository.ActorNameOrchestrator {
		t.Fatalf("expected system actor by default, got %s/%s", entry.ActorType, entry.ActorName)
	}

	names := f.bus.names()
	if len(names) != 1 || names[0] != (events.LeadStageChanged{}).EventName() {
		t.Fatalf("expected a single stage changed event, got %v", names)
	}
}

func TestCloseRecordsTimelineAndPublishesClosed(t *testing.T) {
	lead := leadIn(domain.StageQualifying, domain.AutomationRunning)
	f := newFixture(lead)
	actor := Actor{Type: repository.ActorTypeUser, Name: "agent@example.com"}

	closed, err := f.svc.Close(context.Background(), lead.ID, domain.CloseReasonInterested, nil, actor)
	if err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if closed.Stage != domain.StageClosed || closed.AutomationStatus != domain.AutomationPaused {
		t.Fatalf("expected Closed/Paused, got %s/%s", closed.Stage, closed.AutomationStatus)
	}
	if err := closed.CheckInvariants(); err != nil {
		t.Fatalf("closed lead violates invariants: %v", err)
	}

	entry := f.timeline.events[0]
	if entry.Title != repository.EventTitleLeadClosed || entry.ActorName != actor.Name {
		t.Fatalf("unexpected timeline entry %+v", entry)
	}
	if entry.Metadata["closeReason"] != string(domain.CloseReasonInterested) {
		t.Fatalf("expected close reason in metadata, got %v", entry.Metadata)
	}

	names := f.bus.names()
	if len(names) != 2 || names[1] != (events.LeadClosed{}).EventName() {
		t.Fatalf("expected stage changed then closed events, got %v", names)
	}
}

func TestIllegalTransitionLeavesLeadUntouched(t *testing.T) {
	lead := leadIn(domain.StageInbox, domain.AutomationPending)
	f := newFixture(lead)

	_, err := f.svc.TransitionTo(context.Background(), lead.ID, domain.StageSalesReady, TransitionOptions{})
	if !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict kind, got %v", apperr.GetKind(err))
	}
	if f.repo.saveCalls != 0 {
		t.Fatalf("expected no save, got %d", f.repo.saveCalls)
	}
	if len(f.timeline.events) != 0 || len(f.bus.names()) != 0 {
		t.Fatal("expected no side effects for a rejected transition")
	}
	stored, _ := f.repo.GetByID(context.Background(), lead.ID)
	if stored.Stage != domain.StageInbox {
		t.Fatalf("expected stored lead to stay in Inbox, got %s", stored.Stage)
	}
}

func TestReopenRequiresClosedLead(t *testing.T) {
	lead := leadIn(domain.StageSalesReady, domain.AutomationCompleted)
	f := newFixture(lead)

	_, err := f.svc.Reopen(context.Background(), lead.ID, Actor{})
	if !errors.Is(err, domain.ErrNotClosed) {
		t.Fatalf("expected ErrNotClosed, got %v", err)
	}
}

func TestReopenPublishesReopened(t *testing.T) {
	lead := leadIn(domain.StageQualifying, domain.AutomationRunning)
	if err := lead.Close(domain.CloseReasonNoResponse, nil, testNow.Add(-time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}
	f := newFixture(lead)

	reopened, err := f.svc.Reopen(context.Background(), lead.ID, Actor{})
	if err != nil {
		t.Fatalf("Reopen returned error: %v", err)
	}
	if reopened.Stage != domain.StageInbox || reopened.ClosedAt != nil || reopened.CloseReason != nil {
		t.Fatalf("expected clean Inbox lead, got %+v", reopened)
	}
	names := f.bus.names()
	if len(names) != 2 || names[1] != (events.LeadReopened{}).EventName() {
		t.Fatalf("expected stage changed then reopened events, got %v", names)
	}
	if f.timeline.events[0].Title != repository.EventTitleLeadReopened {
		t.Fatalf("expected reopened title, got %s", f.timeline.events[0].Title)
	}
}

func TestPauseAutomationRecordsAutomationChangeOnly(t *testing.T) {
	lead := leadIn(domain.StageQualifying, domain.AutomationRunning)
	f := newFixture(lead)

	paused, err := f.svc.PauseAutomation(context.Background(), lead.ID, Actor{})
	if err != nil {
		t.Fatalf("PauseAutomation returned error: %v", err)
	}
	if paused.AutomationStatus != domain.AutomationPaused {
		t.Fatalf("expected Paused, got %s", paused.AutomationStatus)
	}
	if len(f.timeline.events) != 1 || f.timeline.events[0].EventType != repository.EventTypeAutomationChange {
		t.Fatalf("expected one automation change entry, got %+v", f.timeline.events)
	}
	if len(f.bus.names()) != 0 {
		t.Fatalf("expected no stage events, got %v", f.bus.names())
	}
}

func TestFailAutomationKeepsMessage(t *testing.T) {
	lead := leadIn(domain.StageQualifying, domain.AutomationRunning)
	f := newFixture(lead)

	failed, err := f.svc.FailAutomation(context.Background(), lead.ID, "provider timeout", Actor{})
	if err != nil {
		t.Fatalf("FailAutomation returned error: %v", err)
	}
	if failed.AutomationError == nil || *failed.AutomationError != "provider timeout" {
		t.Fatalf("expected automation error to be stored, got %v", failed.AutomationError)
	}
	if f.timeline.events[0].Metadata["error"] != "provider timeout" {
		t.Fatalf("expected error in metadata, got %v", f.timeline.events[0].Metadata)
	}
}

func TestMarkSalesReadyAssignsSeller(t *testing.T) {
	lead := leadIn(domain.StageQualifying, domain.AutomationRunning)
	f := newFixture(lead)
	seller := uuid.New()

	ready, err := f.svc.MarkSalesReady(context.Background(), lead.ID, &seller, Actor{})
	if err != nil {
		t.Fatalf("MarkSalesReady returned error: %v", err)
	}
	if !ready.IsSalesReady() || ready.AssignedTo == nil || *ready.AssignedTo != seller {
		t.Fatalf("expected assigned sales-ready lead, got %+v", ready)
	}
	if ready.AutomationStatus != domain.AutomationCompleted {
		t.Fatalf("expected automation completed, got %s", ready.AutomationStatus)
	}
}

func TestMissingLeadIsNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAutomation(context.Background(), uuid.New(), Actor{})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStaleVersionIsConflict(t *testing.T) {
	lead := leadIn(domain.StageInbox, domain.AutomationPending)
	f := newFixture(lead)
	f.repo.failSave = repository.ErrVersionConflict

	_, err := f.svc.StartAutomation(context.Background(), lead.ID, Actor{})
	if !errors.Is(err, repository.ErrVersionConflict) || !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if len(f.bus.names()) != 0 {
		t.Fatal("expected no events when the save fails")
	}
}

func TestTimelineFailureDoesNotFailCommand(t *testing.T) {
	lead := leadIn(domain.StageInbox, domain.AutomationPending)
	f := newFixture(lead)
	f.timeline.err = errors.New("timeline unavailable")

	if _, err := f.svc.StartAutomation(context.Background(), lead.ID, Actor{}); err != nil {
		t.Fatalf("expected command to succeed despite timeline failure, got %v", err)
	}
	stored, _ := f.repo.GetByID(context.Background(), lead.ID)
	if stored.Stage != domain.StageQualifying {
		t.Fatalf("expected committed stage, got %s", stored.Stage)
	}
}

func TestCreateStoresInboxLeadAndRecordsTimeline(t *testing.T) {
	f := newFixture()
	clientID := uuid.New()
	email := "anna@example.com"
	actor := Actor{Type: repository.ActorTypeUser, Name: "agent-7"}

	lead, err := f.svc.Create(context.Background(), NewLeadInput{
		ClientID:  clientID,
		FirstName: "Anna",
		LastName:  "de Vries",
		Phone:     "+31612345678",
		Email:     &email,
	}, actor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lead.Stage != domain.StageInbox || lead.AutomationStatus != domain.AutomationPending {
		t.Fatalf("expected Inbox/Pending, got %s/%s", lead.Stage, lead.AutomationStatus)
	}
	if !lead.CreatedAt.Equal(testNow) || lead.ClientID != clientID {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if _, err := f.repo.GetByID(context.Background(), lead.ID); err != nil {
		t.Fatalf("lead not stored: %v", err)
	}

	items, err := f.svc.Timeline(context.Background(), lead.ID, clientID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(items) != 1 || items[0].EventType != repository.EventTypeLeadCreated {
		t.Fatalf("expected one lead_created entry, got %+v", items)
	}
	if f.timeline.events[0].ActorName != actor.Name {
		t.Fatalf("expected actor %s, got %s", actor.Name, f.timeline.events[0].ActorName)
	}
}

func TestTimelineIsScopedToClientAndNewestFirst(t *testing.T) {
	lead := leadIn(domain.StageInbox, domain.AutomationPending)
	f := newFixture(lead)
	ctx := context.Background()

	if _, err := f.svc.StartAutomation(ctx, lead.ID, SystemActor); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Close(ctx, lead.ID, domain.CloseReasonInterested, nil, SystemActor); err != nil {
		t.Fatalf("close: %v", err)
	}

	items, err := f.svc.Timeline(ctx, lead.ID, lead.ClientID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(items) != 2 || items[0].Title != repository.EventTitleLeadClosed {
		t.Fatalf("expected closed entry first, got %+v", items)
	}

	other, err := f.svc.Timeline(ctx, lead.ID, uuid.New())
	if err != nil || len(other) != 0 {
		t.Fatalf("expected nothing for another client, got %d items err=%v", len(other), err)
	}
}
