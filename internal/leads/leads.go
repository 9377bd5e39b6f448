// Package leads provides the lead lifecycle bounded context.
// This file defines the narrow API other domains may depend on.
package leads

import (
	"context"

	"lead_dispatch_backend/internal/dispatch"
)

// RetrySweeper replays due dispatch attempts. The scheduler and the retry CLI
// depend on this rather than on the orchestrator itself.
type RetrySweeper interface {
	RetrySweep(ctx context.Context) ([]dispatch.AttemptResult, error)
}

var _ RetrySweeper = (*Orchestrator)(nil)
