package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_dispatch_backend/internal/leads/domain"
)

var (
	ErrNotFound        = errors.New("lead not found")
	ErrVersionConflict = errors.New("lead was modified concurrently")
)

const defaultListLimit = 100

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadSelectCols = `
	id, client_id, campaign_id, first_name, last_name, phone, email,
	stage, automation_status, status, closed_at, close_reason, close_notes,
	assigned_to, assigned_at, intention_status, intention_decided_at,
	next_action_at, automation_attempts, automation_error, last_automation_run_at,
	version, created_at, updated_at`

type leadRowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s leadRowScanner) (domain.Lead, error) {
	var (
		lead        domain.Lead
		stage       string
		automation  string
		closeReason *string
	)
	if err := s.Scan(
		&lead.ID,
		&lead.ClientID,
		&lead.CampaignID,
		&lead.FirstName,
		&lead.LastName,
		&lead.Phone,
		&lead.Email,
		&stage,
		&automation,
		&lead.Status,
		&lead.ClosedAt,
		&closeReason,
		&lead.CloseNotes,
		&lead.AssignedTo,
		&lead.AssignedAt,
		&lead.IntentionStatus,
		&lead.IntentionDecidedAt,
		&lead.NextActionAt,
		&lead.AutomationAttempts,
		&lead.AutomationError,
		&lead.LastAutomationRunAt,
		&lead.Version,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return domain.Lead{}, err
	}

	lead.Stage = domain.Stage(stage)
	lead.AutomationStatus = domain.AutomationStatus(automation)
	if closeReason != nil {
		reason := domain.CloseReason(*closeReason)
		lead.CloseReason = &reason
	}
	return lead, nil
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func closeReasonValue(reason *domain.CloseReason) *string {
	if reason == nil {
		return nil
	}
	value := string(*reason)
	return &value
}

// Create inserts a new lead as given. Used by intake and seeding.
func (r *Repository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, client_id, campaign_id, first_name, last_name, phone, email,
			stage, automation_status, status, closed_at, close_reason, close_notes,
			assigned_to, assigned_at, intention_status, intention_decided_at,
			next_action_at, automation_attempts, automation_error, last_automation_run_at,
			version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING`+leadSelectCols,
		lead.ID, lead.ClientID, lead.CampaignID, lead.FirstName, lead.LastName, lead.Phone, lead.Email,
		string(lead.Stage), string(lead.AutomationStatus), lead.Status, lead.ClosedAt, closeReasonValue(lead.CloseReason), lead.CloseNotes,
		lead.AssignedTo, lead.AssignedAt, lead.IntentionStatus, lead.IntentionDecidedAt,
		lead.NextActionAt, lead.AutomationAttempts, lead.AutomationError, lead.LastAutomationRunAt,
		lead.Version, lead.CreatedAt, lead.UpdatedAt,
	)
	created, err := scanLead(row)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+leadSelectCols+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// Save writes every mutable lifecycle column in one statement, guarded by the
// version the lead was loaded with. A stale version yields ErrVersionConflict.
func (r *Repository) Save(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads SET
			stage = $3,
			automation_status = $4,
			status = $5,
			closed_at = $6,
			close_reason = $7,
			close_notes = $8,
			assigned_to = $9,
			assigned_at = $10,
			intention_status = $11,
			intention_decided_at = $12,
			next_action_at = $13,
			automation_attempts = $14,
			automation_error = $15,
			last_automation_run_at = $16,
			updated_at = $17,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING`+leadSelectCols,
		lead.ID, lead.Version,
		string(lead.Stage), string(lead.AutomationStatus), lead.Status,
		lead.ClosedAt, closeReasonValue(lead.CloseReason), lead.CloseNotes,
		lead.AssignedTo, lead.AssignedAt,
		lead.IntentionStatus, lead.IntentionDecidedAt,
		lead.NextActionAt, lead.AutomationAttempts, lead.AutomationError, lead.LastAutomationRunAt,
		lead.UpdatedAt,
	)
	saved, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, r.missingOrStale(ctx, lead.ID)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("save lead: %w", err)
	}
	return saved, nil
}

func (r *Repository) missingOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// ListActivePipeline returns the client's leads still in Inbox or Qualifying,
// oldest first so the queue is worked in arrival order.
func (r *Repository) ListActivePipeline(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE client_id = $1 AND stage IN ($2, $3)
		ORDER BY created_at ASC
		LIMIT $4
	`, clientID, string(domain.StageInbox), string(domain.StageQualifying), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

// ListSalesReady returns leads waiting for a seller, most recently qualified first.
func (r *Repository) ListSalesReady(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadSelectCols+`
		FROM leads
		WHERE client_id = $1 AND stage = $2
		ORDER BY updated_at DESC
		LIMIT $3
	`, clientID, string(domain.StageSalesReady), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
