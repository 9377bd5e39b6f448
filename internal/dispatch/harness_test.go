package dispatch

import (
	"testing"

	"lead_dispatch_backend/internal/leads/domain"
	"lead_dispatch_backend/platform/logger"

	"github.com/google/uuid"
)

type harness struct {
	clock        *fakeClock
	attempts     *memoryAttemptStore
	destinations *memoryDestinationStore
	caller       *stubCaller
	sheets       *stubAppender
	ledger       *Ledger
	executor     *Executor
	dispatcher   *Dispatcher
	campaignID   uuid.UUID
	webhookID    uuid.UUID
}

func newHarness(t *testing.T, actions ...IntentionAction) *harness {
	t.Helper()
	h := &harness{
		clock:        newFakeClock(),
		attempts:     newMemoryAttemptStore(),
		destinations: &memoryDestinationStore{actions: actions},
		caller:       &stubCaller{},
		sheets:       &stubAppender{},
		campaignID:   uuid.New(),
		webhookID:    uuid.New(),
	}
	h.rebuild(h.sheets)
	return h
}

func (h *harness) rebuild(sheets SheetAppender) {
	h.ledger = NewLedger(h.attempts, h.clock.Now)
	resolver := NewResolver(h.destinations)
	h.executor = NewExecutor(ExecutorDeps{
		Ledger:   h.ledger,
		Resolver: resolver,
		Caller:   h.caller,
		Sheets:   sheets,
		Log:      logger.Discard(),
	})
	h.dispatcher = NewDispatcher(DispatcherDeps{
		Resolver:    resolver,
		Ledger:      h.ledger,
		Executor:    h.executor,
		Log:         logger.Discard(),
		Clock:       h.clock.Now,
		PhoneRegion: "NL",
	})
}

func (h *harness) webhookAction(intention IntentionType) IntentionAction {
	webhookID := h.webhookID
	return IntentionAction{
		ID:             uuid.New(),
		CampaignID:     h.campaignID,
		IntentionType:  intention,
		ActionType:     ActionWebhook,
		Enabled:        true,
		WebhookID:      &webhookID,
		WebhookURL:     "https://crm.example.com/hooks/leads",
		WebhookHeaders: map[string]string{"Authorization": "Bearer abc"},
		WebhookSecret:  "s3cret",
	}
}

func (h *harness) sheetAction(intention IntentionType) IntentionAction {
	return IntentionAction{
		ID:            uuid.New(),
		CampaignID:    h.campaignID,
		IntentionType: intention,
		ActionType:    ActionSpreadsheet,
		Enabled:       true,
		SpreadsheetID: "sheet-123",
		SheetName:     "Leads",
	}
}

func (h *harness) closedLead(t *testing.T, reason domain.CloseReason) domain.Lead {
	t.Helper()
	campaignID := h.campaignID
	lead := domain.NewLead(uuid.New(), &campaignID, h.clock.Now())
	lead.FirstName = "Anna"
	lead.LastName = "de Vries"
	lead.Phone = "06 12345678"
	if err := lead.Close(reason, nil, h.clock.Now()); err != nil {
		t.Fatalf("close lead: %v", err)
	}
	return lead
}
