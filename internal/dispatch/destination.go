package dispatch

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionType is the configured reaction of a campaign to an intention.
type ActionType string

const (
	ActionWebhook     ActionType = "webhook"
	ActionSpreadsheet ActionType = "spreadsheet"
	ActionNone        ActionType = "none"
)

// IntentionAction is the stored campaign configuration row.
type IntentionAction struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	IntentionType  IntentionType
	ActionType     ActionType
	Enabled        bool
	WebhookID      *uuid.UUID
	WebhookURL     string
	WebhookMethod  string
	WebhookHeaders map[string]string
	WebhookSecret  string
	SpreadsheetID  string
	SheetName      string
	CreatedAt      time.Time
}

// Target is a deliverable destination. Only WebhookTarget and SheetTarget implement it.
type Target interface {
	attemptType() AttemptType
	requestLine() (url, method string)
}

// WebhookTarget posts the payload as JSON.
type WebhookTarget struct {
	WebhookID *uuid.UUID
	URL       string
	Method    string
	Headers   map[string]string
	Secret    string
}

func (WebhookTarget) attemptType() AttemptType { return TypeWebhook }

func (t WebhookTarget) requestLine() (string, string) { return t.URL, t.Method }

// SheetTarget appends the payload as a row.
type SheetTarget struct {
	SpreadsheetID string
	SheetName     string
}

func (SheetTarget) attemptType() AttemptType { return TypeGoogleSheet }

func (t SheetTarget) requestLine() (string, string) {
	return "sheets://" + t.SpreadsheetID + "/" + t.SheetName, "APPEND"
}

// Destination is a resolved, enabled intention action.
type Destination struct {
	ActionID   uuid.UUID
	CampaignID uuid.UUID
	Intention  IntentionType
	Target     Target
}

// ID is the idempotency-key component: the webhook id when the action points
// at a registered webhook, otherwise the intention-action id.
func (d Destination) ID() uuid.UUID {
	if wh, ok := d.Target.(WebhookTarget); ok && wh.WebhookID != nil {
		return *wh.WebhookID
	}
	return d.ActionID
}

// Type is the attempt type produced by this destination.
func (d Destination) Type() AttemptType {
	return d.Target.attemptType()
}

// toDestination converts a stored action. ok is false for ActionNone.
func (a IntentionAction) toDestination() (Destination, bool, error) {
	dest := Destination{ActionID: a.ID, CampaignID: a.CampaignID, Intention: a.IntentionType}

	switch a.ActionType {
	case ActionNone:
		return Destination{}, false, nil
	case ActionWebhook:
		url := strings.TrimSpace(a.WebhookURL)
		if url == "" {
			return Destination{}, false, fmt.Errorf("intention action %s: webhook url is empty", a.ID)
		}
		method := strings.ToUpper(strings.TrimSpace(a.WebhookMethod))
		if method == "" {
			method = http.MethodPost
		}
		dest.Target = WebhookTarget{
			WebhookID: a.WebhookID,
			URL:       url,
			Method:    method,
			Headers:   a.WebhookHeaders,
			Secret:    a.WebhookSecret,
		}
	case ActionSpreadsheet:
		if strings.TrimSpace(a.SpreadsheetID) == "" {
			return Destination{}, false, fmt.Errorf("intention action %s: spreadsheet id is empty", a.ID)
		}
		dest.Target = SheetTarget{SpreadsheetID: a.SpreadsheetID, SheetName: a.SheetName}
	default:
		return Destination{}, false, fmt.Errorf("intention action %s: unknown action type %q", a.ID, a.ActionType)
	}

	return dest, true, nil
}
