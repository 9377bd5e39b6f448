package repository

// ActorType constants identify the category of entity that produced a timeline event.
const (
	ActorTypeUser   = "User"   // Human user acting through the API
	ActorTypeSystem = "System" // Internal process (orchestrator, retry sweep)
)

// System actor names. Human actor names come from the token subject.
const (
	ActorNameOrchestrator = "Orchestrator"
	ActorNameDispatcher   = "Dispatcher"
	ActorNameRetrySweep   = "RetrySweep"
)

// EventType constants identify the nature of a timeline event.
const (
	EventTypeLeadCreated            = "lead_created"
	EventTypeStageChange            = "stage_change"
	EventTypeAutomationChange       = "automation_change"
	EventTypeDispatchSucceeded      = "dispatch_succeeded"
	EventTypeDispatchFailed         = "dispatch_failed"
	EventTypeDispatchRetryScheduled = "dispatch_retry_scheduled"
)

// EventTitle constants are the labels shown in the timeline UI.
const (
	EventTitleLeadCreated            = "Lead created"
	EventTitleStageUpdated           = "Stage updated"
	EventTitleLeadClosed             = "Lead closed"
	EventTitleLeadReopened           = "Lead reopened"
	EventTitleAutomationUpdated      = "Automation updated"
	EventTitleDispatchSucceeded      = "Outcome delivered"
	EventTitleDispatchFailed         = "Outcome delivery failed"
	EventTitleDispatchRetryScheduled = "Outcome delivery retry scheduled"
)
