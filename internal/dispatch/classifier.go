package dispatch

import "lead_dispatch_backend/internal/leads/domain"

// IntentionType groups close reasons for destination lookup.
type IntentionType string

const (
	IntentionInterested    IntentionType = "interested"
	IntentionNotInterested IntentionType = "not_interested"
	IntentionNone          IntentionType = "none"
)

// Outcome is the dispatch meaning of a close reason.
type Outcome struct {
	Trigger   Trigger
	Intention IntentionType
}

// Classify maps a close reason to its dispatch outcome. The bool is false for
// reasons that carry no dispatch semantics, including unknown reasons.
func Classify(reason domain.CloseReason) (Outcome, bool) {
	switch reason {
	case domain.CloseReasonInterested, domain.CloseReasonWon:
		return Outcome{Trigger: TriggerOnInterested, Intention: IntentionInterested}, true
	case domain.CloseReasonNotInterested, domain.CloseReasonNoBudget:
		return Outcome{Trigger: TriggerOnNotInterested, Intention: IntentionNotInterested}, true
	default:
		return Outcome{Intention: IntentionNone}, false
	}
}

// IntentionForTrigger is the inverse of Classify on the trigger axis.
func IntentionForTrigger(t Trigger) IntentionType {
	switch t {
	case TriggerOnInterested:
		return IntentionInterested
	case TriggerOnNotInterested:
		return IntentionNotInterested
	default:
		return IntentionNone
	}
}
