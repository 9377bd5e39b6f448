package leads

import (
	"context"
	"fmt"

	"lead_dispatch_backend/internal/dispatch"
	"lead_dispatch_backend/internal/events"
	"lead_dispatch_backend/internal/leads/repository"
	"lead_dispatch_backend/platform/logger"
)

type timelineCreator interface {
	CreateTimelineEvent(ctx context.Context, params repository.CreateTimelineEventParams) (repository.TimelineEvent, error)
}

// DispatchTimelineRecorder mirrors dispatch outcomes onto the lead timeline.
type DispatchTimelineRecorder struct {
	timeline timelineCreator
	log      *logger.Logger
}

func NewDispatchTimelineRecorder(timeline timelineCreator, log *logger.Logger) *DispatchTimelineRecorder {
	if log == nil {
		log = logger.Discard()
	}
	return &DispatchTimelineRecorder{timeline: timeline, log: log}
}

// Subscribe registers the recorder on the bus.
func (r *DispatchTimelineRecorder) Subscribe(bus events.Bus) {
	bus.Subscribe(events.DispatchAttemptFinished{}.EventName(), r)
}

func (r *DispatchTimelineRecorder) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.DispatchAttemptFinished)
	if !ok {
		return nil
	}

	params := repository.CreateTimelineEventParams{
		LeadID:    e.LeadID,
		ClientID:  e.ClientID,
		ActorType: repository.ActorTypeSystem,
		ActorName: repository.ActorNameDispatcher,
	}
	if e.AttemptNo > 1 {
		params.ActorName = repository.ActorNameRetrySweep
	}

	switch dispatch.AttemptStatus(e.Status) {
	case dispatch.StatusSuccess:
		params.EventType = repository.EventTypeDispatchSucceeded
		params.Title = repository.EventTitleDispatchSucceeded
		params.Summary = repository.TruncateSummary(fmt.Sprintf("%s delivered (attempt %d)", e.Type, e.AttemptNo), repository.TimelineSummaryMaxLen)
	case dispatch.StatusRetrying:
		params.EventType = repository.EventTypeDispatchRetryScheduled
		params.Title = repository.EventTitleDispatchRetryScheduled
		params.Summary = repository.TruncateSummary(fmt.Sprintf("%s attempt %d failed: %s", e.Type, e.AttemptNo, e.Error), repository.TimelineSummaryMaxLen)
	case dispatch.StatusFailed:
		params.EventType = repository.EventTypeDispatchFailed
		params.Title = repository.EventTitleDispatchFailed
		params.Summary = repository.TruncateSummary(fmt.Sprintf("%s gave up after attempt %d: %s", e.Type, e.AttemptNo, e.Error), repository.TimelineSummaryMaxLen)
	default:
		return nil
	}

	metadata := repository.DispatchMetadata{
		AttemptID:      e.AttemptID,
		Type:           e.Type,
		Trigger:        e.Trigger,
		AttemptNo:      e.AttemptNo,
		ResponseStatus: e.ResponseStatus,
	}
	if e.Error != "" {
		msg := e.Error
		metadata.Error = &msg
	}
	params.Metadata = metadata.ToMap()

	if _, err := r.timeline.CreateTimelineEvent(ctx, params); err != nil {
		r.log.Warn("failed to record dispatch timeline event", "leadId", e.LeadID, "attemptId", e.AttemptID, "error", err)
		return err
	}
	return nil
}
