package domain

// AutomationStatus tracks the automated-outreach sub-process. It is orthogonal to Stage.
type AutomationStatus string

const (
	AutomationPending   AutomationStatus = "Pending"
	AutomationRunning   AutomationStatus = "Running"
	AutomationPaused    AutomationStatus = "Paused"
	AutomationCompleted AutomationStatus = "Completed"
	AutomationFailed    AutomationStatus = "Failed"
	AutomationSkipped   AutomationStatus = "Skipped"
)

// CanStart reports whether automation may move to Running from this status.
func (s AutomationStatus) CanStart() bool {
	switch s {
	case AutomationPending, AutomationPaused, AutomationFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether the automation has not reached an end state.
func (s AutomationStatus) IsActive() bool {
	switch s {
	case AutomationPending, AutomationRunning, AutomationPaused:
		return true
	default:
		return false
	}
}

func (s AutomationStatus) IsValid() bool {
	switch s {
	case AutomationPending, AutomationRunning, AutomationPaused, AutomationCompleted, AutomationFailed, AutomationSkipped:
		return true
	default:
		return false
	}
}
