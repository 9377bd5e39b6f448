package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimelineSummaryMaxLen caps summaries written through TruncateSummary.
const TimelineSummaryMaxLen = 400

// TruncateSummary trims text to maxLen runes, appending "..." on overflow.
// Returns nil for blank input.
func TruncateSummary(text string, maxLen int) *string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if runes := []rune(trimmed); len(runes) > maxLen {
		trimmed = string(runes[:maxLen]) + "..."
	}
	return &trimmed
}

type TimelineEvent struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	ClientID  uuid.UUID
	ActorType string
	ActorName string
	EventType string
	Title     string
	Summary   *string
	Metadata  map[string]any
	CreatedAt time.Time
}

type CreateTimelineEventParams struct {
	LeadID    uuid.UUID
	ClientID  uuid.UUID
	ActorType string
	ActorName string
	EventType string
	Title     string
	Summary   *string
	Metadata  map[string]any
}

func (r *Repository) CreateTimelineEvent(ctx context.Context, params CreateTimelineEventParams) (TimelineEvent, error) {
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return TimelineEvent{}, err
	}

	var event TimelineEvent
	err = r.pool.QueryRow(ctx, `
		INSERT INTO lead_timeline_events (
			lead_id, client_id, actor_type, actor_name, event_type, title, summary, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, lead_id, client_id, actor_type, actor_name, event_type, title, summary, created_at
	`, params.LeadID, params.ClientID, params.ActorType, params.ActorName, params.EventType, params.Title, params.Summary, metadataJSON).Scan(
		&event.ID,
		&event.LeadID,
		&event.ClientID,
		&event.ActorType,
		&event.ActorName,
		&event.EventType,
		&event.Title,
		&event.Summary,
		&event.CreatedAt,
	)
	if err != nil {
		return TimelineEvent{}, err
	}
	event.Metadata = metadata

	return event, nil
}

type timelineRowScanner interface {
	Scan(dest ...any) error
}

// Column order: id, lead_id, client_id, actor_type, actor_name, event_type,
// title, summary, metadata, created_at.
func scanTimelineEvent(s timelineRowScanner) (TimelineEvent, error) {
	var event TimelineEvent
	var rawMetadata []byte
	if err := s.Scan(
		&event.ID,
		&event.LeadID,
		&event.ClientID,
		&event.ActorType,
		&event.ActorName,
		&event.EventType,
		&event.Title,
		&event.Summary,
		&rawMetadata,
		&event.CreatedAt,
	); err != nil {
		return TimelineEvent{}, err
	}
	if len(rawMetadata) > 0 {
		_ = json.Unmarshal(rawMetadata, &event.Metadata)
	}
	return event, nil
}

const timelineSelectCols = `
	id, lead_id, client_id, actor_type, actor_name, event_type, title, summary, metadata, created_at`

// ListTimelineEvents returns the lead's timeline, newest first.
func (r *Repository) ListTimelineEvents(ctx context.Context, leadID uuid.UUID, clientID uuid.UUID) ([]TimelineEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+timelineSelectCols+`
		FROM lead_timeline_events
		WHERE lead_id = $1 AND client_id = $2
		ORDER BY created_at DESC
	`, leadID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]TimelineEvent, 0)
	for rows.Next() {
		event, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
