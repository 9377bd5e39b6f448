// Package repository is the Postgres store for dispatch attempts and campaign intention actions.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lead_dispatch_backend/internal/dispatch"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errRepoNotConfigured   = "dispatch repository not configured"
	uniqueViolation        = "23505"
	deliveredConstraint    = "uq_dispatch_attempts_delivered"
	defaultClaimBatchLimit = 100
)

// Repository implements dispatch.AttemptStore and dispatch.DestinationStore.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const attemptColumns = `id, lead_id, campaign_id, client_id, type, trigger, destination_id,
	request_payload, request_url, request_method, response_status, response_body, error_message,
	status, attempt_no, next_retry_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s rowScanner) (dispatch.Attempt, error) {
	var a dispatch.Attempt
	var typ, trigger, status string
	var url, method *string
	var payload []byte
	err := s.Scan(
		&a.ID, &a.LeadID, &a.CampaignID, &a.ClientID, &typ, &trigger, &a.DestinationID,
		&payload, &url, &method, &a.ResponseStatus, &a.ResponseBody, &a.ErrorMessage,
		&status, &a.AttemptNo, &a.NextRetryAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return dispatch.Attempt{}, err
	}
	a.Type = dispatch.AttemptType(typ)
	a.Trigger = dispatch.Trigger(trigger)
	a.Status = dispatch.AttemptStatus(status)
	a.RequestPayload = json.RawMessage(payload)
	if url != nil {
		a.RequestURL = *url
	}
	if method != nil {
		a.RequestMethod = *method
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]dispatch.Attempt, error) {
	defer rows.Close()
	results := make([]dispatch.Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) HasSuccess(ctx context.Context, leadID uuid.UUID, trigger dispatch.Trigger, destinationID uuid.UUID) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM dispatch_attempts
			WHERE lead_id = $1 AND trigger = $2 AND destination_id = $3 AND status = 'success'
		)`, leadID, string(trigger), destinationID).Scan(&exists)
	return exists, err
}

func (r *Repository) Insert(ctx context.Context, a dispatch.Attempt) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dispatch_attempts (
			id, lead_id, campaign_id, client_id, type, trigger, destination_id,
			request_payload, request_url, request_method, status, attempt_no, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.LeadID, a.CampaignID, a.ClientID, string(a.Type), string(a.Trigger), a.DestinationID,
		[]byte(a.RequestPayload), nullIfEmpty(a.RequestURL), nullIfEmpty(a.RequestMethod),
		string(a.Status), a.AttemptNo, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *Repository) UpdateOutcome(ctx context.Context, a dispatch.Attempt) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_attempts
		SET status = $2,
			response_status = $3,
			response_body = $4,
			error_message = $5,
			next_retry_at = $6,
			updated_at = $7
		WHERE id = $1`,
		a.ID, string(a.Status), a.ResponseStatus, a.ResponseBody, a.ErrorMessage, a.NextRetryAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == deliveredConstraint {
			return dispatch.ErrAlreadyDelivered
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrAttemptNotFound
	}
	return nil
}

func (r *Repository) ClaimForRetry(ctx context.Context, id uuid.UUID, expectedAttemptNo int, now, staleBefore time.Time) (dispatch.Attempt, bool, error) {
	if r == nil || r.pool == nil {
		return dispatch.Attempt{}, false, errors.New(errRepoNotConfigured)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE dispatch_attempts
		SET attempt_no = attempt_no + 1, status = 'pending', next_retry_at = NULL, updated_at = $3
		WHERE id = $1 AND attempt_no = $2
			AND (status IN ('retrying', 'failed') OR (status = 'pending' AND updated_at <= $4))
		RETURNING `+attemptColumns, id, expectedAttemptNo, now, staleBefore)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.Attempt{}, false, nil
	}
	if err != nil {
		return dispatch.Attempt{}, false, err
	}
	return a, true, nil
}

// ClaimDue locks due rows with SKIP LOCKED so overlapping sweeps split the work.
// Pending rows untouched since staleBefore are reclaimed alongside due retries.
func (r *Repository) ClaimDue(ctx context.Context, now, staleBefore time.Time, limit, maxAttempts int) ([]dispatch.Attempt, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = defaultClaimBatchLimit
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH due AS (
		SELECT id
		FROM dispatch_attempts
		WHERE attempt_no < $3
			AND ((status = 'retrying' AND next_retry_at <= $1) OR (status = 'pending' AND updated_at <= $4))
		ORDER BY COALESCE(next_retry_at, updated_at) ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE dispatch_attempts d
	SET attempt_no = d.attempt_no + 1, status = 'pending', next_retry_at = NULL, updated_at = $1
	FROM due
	WHERE d.id = due.id
	RETURNING d.id, d.lead_id, d.campaign_id, d.client_id, d.type, d.trigger, d.destination_id,
		d.request_payload, d.request_url, d.request_method, d.response_status, d.response_body, d.error_message,
		d.status, d.attempt_no, d.next_retry_at, d.created_at, d.updated_at`, now, limit, maxAttempts, staleBefore)
	if err != nil {
		return nil, err
	}
	results, err := collectAttempts(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) FailAbandoned(ctx context.Context, now, staleBefore time.Time, maxAttempts int, message string) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE dispatch_attempts
		SET status = 'failed', error_message = $4, updated_at = $1
		WHERE status = 'pending' AND updated_at <= $2 AND attempt_no >= $3`,
		now, staleBefore, maxAttempts, message)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (dispatch.Attempt, error) {
	if r == nil || r.pool == nil {
		return dispatch.Attempt{}, errors.New(errRepoNotConfigured)
	}
	a, err := scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM dispatch_attempts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.Attempt{}, dispatch.ErrAttemptNotFound
	}
	return a, err
}

func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]dispatch.Attempt, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM dispatch_attempts
		WHERE lead_id = $1
		ORDER BY created_at DESC, id`, leadID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// FindEnabledAction returns the oldest enabled action so the choice is stable
// even if the partial unique index is missing.
func (r *Repository) FindEnabledAction(ctx context.Context, campaignID uuid.UUID, intention dispatch.IntentionType) (dispatch.IntentionAction, bool, error) {
	if r == nil || r.pool == nil {
		return dispatch.IntentionAction{}, false, errors.New(errRepoNotConfigured)
	}

	var a dispatch.IntentionAction
	var intentionType, actionType string
	var url, method, secret, spreadsheetID, sheetName *string
	var headers []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, campaign_id, intention_type, action_type, enabled, webhook_id, webhook_url, webhook_method,
			webhook_headers, webhook_secret, spreadsheet_id, sheet_name, created_at
		FROM campaign_intention_actions
		WHERE campaign_id = $1 AND intention_type = $2 AND enabled
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, campaignID, string(intention)).Scan(
		&a.ID, &a.CampaignID, &intentionType, &actionType, &a.Enabled, &a.WebhookID, &url, &method,
		&headers, &secret, &spreadsheetID, &sheetName, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return dispatch.IntentionAction{}, false, nil
	}
	if err != nil {
		return dispatch.IntentionAction{}, false, err
	}

	a.IntentionType = dispatch.IntentionType(intentionType)
	a.ActionType = dispatch.ActionType(actionType)
	a.WebhookURL = deref(url)
	a.WebhookMethod = deref(method)
	a.WebhookSecret = deref(secret)
	a.SpreadsheetID = deref(spreadsheetID)
	a.SheetName = deref(sheetName)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &a.WebhookHeaders); err != nil {
			return dispatch.IntentionAction{}, false, fmt.Errorf("decode webhook headers of action %s: %w", a.ID, err)
		}
	}
	return a, true, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	_ dispatch.AttemptStore     = (*Repository)(nil)
	_ dispatch.DestinationStore = (*Repository)(nil)
)
