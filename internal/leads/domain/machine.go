package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransitionOptions carries the optional inputs of a generic stage transition.
type TransitionOptions struct {
	Reason      string
	CloseReason *CloseReason
	CloseNotes  *string
	AssignTo    *uuid.UUID
}

// TransitionTo moves the lead to stage `to`, applying that edge's bookkeeping.
// Closed can only be left through Reopen. On error the lead is left untouched.
func (l *Lead) TransitionTo(to Stage, opts TransitionOptions, now time.Time) error {
	if !to.IsValid() {
		return illegalTransition(l, to, "unknown stage")
	}

	if l.Stage == StageClosed {
		if to == StageClosed {
			return alreadyClosed(l)
		}
		return illegalTransition(l, to, "use reopen to leave Closed")
	}

	switch to {
	case StageClosed:
		if opts.CloseReason == nil {
			return closeReasonRequired()
		}
		return l.Close(*opts.CloseReason, opts.CloseNotes, now)
	case StageQualifying:
		if l.Stage != StageInbox {
			return illegalTransition(l, to, "")
		}
		if !l.AutomationStatus.CanStart() {
			return illegalTransition(l, to, "automation cannot start from "+string(l.AutomationStatus))
		}
		l.Stage = StageQualifying
		l.startAutomation(now)
	case StageSalesReady:
		if l.Stage == StageInbox {
			return illegalTransition(l, to, "lead must be qualified first")
		}
		if l.Stage != StageQualifying {
			return illegalTransition(l, to, "")
		}
		l.enterSalesReady(opts.AssignTo, now)
	default:
		return illegalTransition(l, to, "")
	}

	l.UpdatedAt = now
	return nil
}

// Close moves an open lead to Closed. Notes default to an empty string.
func (l *Lead) Close(reason CloseReason, notes *string, now time.Time) error {
	if l.Stage == StageClosed {
		return alreadyClosed(l)
	}
	if !reason.IsValid() {
		return closeReasonRequired()
	}

	closedAt := now
	r := reason
	n := ""
	if notes != nil {
		n = *notes
	}

	l.Stage = StageClosed
	l.Status = LegacyStatusClosed
	l.ClosedAt = &closedAt
	l.CloseReason = &r
	l.CloseNotes = &n
	if l.AutomationStatus.IsActive() {
		l.AutomationStatus = AutomationPaused
	}
	l.NextActionAt = nil
	l.UpdatedAt = now
	return nil
}

// Reopen returns a closed lead to Inbox and resets its automation.
func (l *Lead) Reopen(now time.Time) error {
	if l.Stage != StageClosed {
		return notClosed(l)
	}

	l.Stage = StageInbox
	l.Status = LegacyStatusPending
	l.ClosedAt = nil
	l.CloseReason = nil
	l.CloseNotes = nil
	l.AutomationStatus = AutomationPending
	l.AutomationError = nil
	l.UpdatedAt = now
	return nil
}

// StartAutomation runs automation for an Inbox or Qualifying lead.
// An Inbox lead is moved to Qualifying in the same step.
func (l *Lead) StartAutomation(now time.Time) error {
	if l.Stage != StageInbox && l.Stage != StageQualifying {
		return illegalTransition(l, StageQualifying, "automation only runs for Inbox or Qualifying leads")
	}
	if !l.AutomationStatus.CanStart() {
		return illegalTransition(l, l.Stage, "automation cannot start from "+string(l.AutomationStatus))
	}

	l.Stage = StageQualifying
	l.startAutomation(now)
	l.UpdatedAt = now
	return nil
}

// PauseAutomation pauses running automation.
func (l *Lead) PauseAutomation(now time.Time) error {
	if l.AutomationStatus != AutomationRunning {
		return illegalTransition(l, l.Stage, "automation is not running")
	}
	l.AutomationStatus = AutomationPaused
	l.NextActionAt = nil
	l.UpdatedAt = now
	return nil
}

// FailAutomation records an automation failure for pending or running automation.
func (l *Lead) FailAutomation(message string, now time.Time) error {
	if l.AutomationStatus != AutomationRunning && l.AutomationStatus != AutomationPending {
		return illegalTransition(l, l.Stage, "automation cannot fail from "+string(l.AutomationStatus))
	}
	msg := message
	l.AutomationStatus = AutomationFailed
	l.AutomationError = &msg
	l.NextActionAt = nil
	l.UpdatedAt = now
	return nil
}

// MarkSalesReady is TransitionTo(SalesReady) with an optional seller.
func (l *Lead) MarkSalesReady(assignTo *uuid.UUID, now time.Time) error {
	return l.TransitionTo(StageSalesReady, TransitionOptions{AssignTo: assignTo}, now)
}

func (l *Lead) startAutomation(now time.Time) {
	runAt := now
	l.AutomationStatus = AutomationRunning
	l.LastAutomationRunAt = &runAt
	l.AutomationError = nil
	l.AutomationAttempts++
}

func (l *Lead) enterSalesReady(assignTo *uuid.UUID, now time.Time) {
	l.Stage = StageSalesReady
	finalized := IntentionFinalized
	l.IntentionStatus = &finalized
	if l.IntentionDecidedAt == nil {
		decided := now
		l.IntentionDecidedAt = &decided
	}
	if l.AutomationStatus.IsActive() {
		l.AutomationStatus = AutomationCompleted
	}
	l.NextActionAt = nil
	if assignTo != nil {
		seller := *assignTo
		assignedAt := now
		l.AssignedTo = &seller
		l.AssignedAt = &assignedAt
	}
}
