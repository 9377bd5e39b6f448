// Package domain provides core business rules for the leads bounded context.
package domain

import "strings"

// Stage is the primary pipeline position of a lead.
type Stage string

const (
	StageInbox      Stage = "Inbox"
	StageQualifying Stage = "Qualifying"
	StageSalesReady Stage = "SalesReady"
	StageClosed     Stage = "Closed"
)

var knownStages = map[Stage]struct{}{
	StageInbox:      {},
	StageQualifying: {},
	StageSalesReady: {},
	StageClosed:     {},
}

// IsValid reports whether s is one of the four known stages.
func (s Stage) IsValid() bool {
	_, ok := knownStages[s]
	return ok
}

func (s Stage) String() string { return string(s) }

// ParseStage accepts the canonical names case-insensitively, plus "sales_ready".
func ParseStage(raw string) (Stage, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "")
	for s := range knownStages {
		if strings.ToLower(string(s)) == normalized {
			return s, true
		}
	}
	return "", false
}

// Legacy status values mirrored from the stage for older read paths.
const (
	LegacyStatusPending = "Pending"
	LegacyStatusClosed  = "Closed"
)

// IntentionFinalized marks an intention decided by the stage machine.
const IntentionFinalized = "finalized"
