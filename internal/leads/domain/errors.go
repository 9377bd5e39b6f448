package domain

import (
	"errors"
	"fmt"

	"lead_dispatch_backend/platform/apperr"
)

// Sentinel errors. Every error returned by the stage machine wraps one of
// these inside an *apperr.Error, so errors.Is works on either.
var (
	ErrIllegalTransition   = errors.New("illegal stage transition")
	ErrAlreadyClosed       = errors.New("lead is already closed")
	ErrNotClosed           = errors.New("lead is not closed")
	ErrCloseReasonRequired = errors.New("close reason is required")
	ErrInconsistentLead    = errors.New("lead close fields are inconsistent with its stage")
)

// TransitionDetails is attached to transition errors for client rendering.
type TransitionDetails struct {
	From       Stage            `json:"from"`
	To         Stage            `json:"to"`
	Automation AutomationStatus `json:"automationStatus,omitempty"`
}

func illegalTransition(l *Lead, to Stage, why string) error {
	msg := fmt.Sprintf("cannot move lead from %s to %s", l.Stage, to)
	if why != "" {
		msg += ": " + why
	}
	return apperr.Wrap(apperr.KindConflict, msg, ErrIllegalTransition).
		WithCode("illegal_transition").
		WithDetails(TransitionDetails{From: l.Stage, To: to, Automation: l.AutomationStatus})
}

func alreadyClosed(l *Lead) error {
	return apperr.Wrap(apperr.KindConflict, "lead is already closed", ErrAlreadyClosed).
		WithCode("already_closed").
		WithDetails(TransitionDetails{From: l.Stage, To: StageClosed})
}

func notClosed(l *Lead) error {
	return apperr.Wrap(apperr.KindConflict, "only closed leads can be reopened", ErrNotClosed).
		WithCode("not_closed").
		WithDetails(TransitionDetails{From: l.Stage, To: StageInbox})
}

func closeReasonRequired() error {
	return apperr.Wrap(apperr.KindValidation, "a valid close reason is required to close a lead", ErrCloseReasonRequired).
		WithCode("close_reason_required")
}
