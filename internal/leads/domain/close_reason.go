package domain

import "strings"

// CloseReason explains why a lead was closed. The dispatch classifier derives
// delivery triggers from it.
type CloseReason string

const (
	CloseReasonInterested    CloseReason = "Interested"
	CloseReasonWon           CloseReason = "Won"
	CloseReasonNotInterested CloseReason = "NotInterested"
	CloseReasonNoBudget      CloseReason = "NoBudget"
	CloseReasonDuplicate     CloseReason = "Duplicate"
	CloseReasonInvalidNumber CloseReason = "InvalidNumber"
	CloseReasonNoResponse    CloseReason = "NoResponse"
	CloseReasonOther         CloseReason = "Other"
)

// CloseReasons lists every known reason in a stable order.
var CloseReasons = []CloseReason{
	CloseReasonInterested,
	CloseReasonWon,
	CloseReasonNotInterested,
	CloseReasonNoBudget,
	CloseReasonDuplicate,
	CloseReasonInvalidNumber,
	CloseReasonNoResponse,
	CloseReasonOther,
}

func (r CloseReason) IsValid() bool {
	for _, known := range CloseReasons {
		if r == known {
			return true
		}
	}
	return false
}

func (r CloseReason) String() string { return string(r) }

// ParseCloseReason matches case-insensitively and ignores underscores,
// so "not_interested" and "NotInterested" are the same reason.
func ParseCloseReason(raw string) (CloseReason, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "")
	for _, known := range CloseReasons {
		if strings.ToLower(string(known)) == normalized {
			return known, true
		}
	}
	return "", false
}
