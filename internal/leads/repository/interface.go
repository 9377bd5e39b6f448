package repository

import (
	"context"

	"github.com/google/uuid"

	"lead_dispatch_backend/internal/leads/domain"
)

// LeadReader provides read-only access to a single lead.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

// LeadWriter persists lifecycle changes with optimistic concurrency.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Save(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

// PipelineReader backs the active-pipeline and sales-ready views.
type PipelineReader interface {
	ListActivePipeline(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error)
	ListSalesReady(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error)
}

// TimelineEventStore records and lists timeline events.
type TimelineEventStore interface {
	CreateTimelineEvent(ctx context.Context, params CreateTimelineEventParams) (TimelineEvent, error)
	ListTimelineEvents(ctx context.Context, leadID uuid.UUID, clientID uuid.UUID) ([]TimelineEvent, error)
}

// LeadsRepository composes every segregated interface.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	PipelineReader
	TimelineEventStore
}

var _ LeadsRepository = (*Repository)(nil)
