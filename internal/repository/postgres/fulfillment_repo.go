package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"ticketbooth/internal/domain"
)

type fulfillmentRepository struct {
	DB     *sql.DB
	cipher domain.FieldCipher
}

// NewFulfillmentRepository returns the idempotency tracker and webhook
// finalize store.
func NewFulfillmentRepository(db *sql.DB, cipher domain.FieldCipher) domain.FulfillmentRepository {
	return &fulfillmentRepository{
		DB:     db,
		cipher: cipher,
	}
}

func (r *fulfillmentRepository) IsProcessed(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_payments WHERE session_id = $1)
	`, sessionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed payment: %w", err)
	}
	return exists, nil
}

// FinalizeSession applies a paid session exactly once. The reservations and
// the idempotency marker share one transaction; concurrent deliveries of
// the same session race on the processed_payments primary key, and the
// loser's reservations roll back.
func (r *fulfillmentRepository) FinalizeSession(ctx context.Context, sessionID string, reservations []domain.ReservationRequest) ([]*domain.Attendee, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_payments WHERE session_id = $1)
	`, sessionID).Scan(&exists)
	if err != nil {
		return nil, false, fmt.Errorf("check processed payment: %w", err)
	}
	if exists {
		_ = tx.Rollback()
		return nil, true, nil
	}

	attendees := make([]*domain.Attendee, 0, len(reservations))
	attendeeIDs := make([]string, 0, len(reservations))
	for _, req := range reservations {
		var attendee *domain.Attendee
		attendee, err = reserveAttendeeTx(ctx, tx, r.cipher, req)
		if err != nil {
			return nil, false, err
		}
		attendees = append(attendees, attendee)
		attendeeIDs = append(attendeeIDs, attendee.ID)
	}

	var result sql.Result
	result, err = tx.ExecContext(ctx, `
		INSERT INTO processed_payments (session_id, attendee_ids)
		VALUES ($1, $2)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, pq.Array(attendeeIDs))
	if err != nil {
		return nil, false, fmt.Errorf("mark processed: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("mark processed: %w", err)
	}
	if inserted == 0 {
		// A concurrent delivery won the race; drop our reservations.
		_ = tx.Rollback()
		return nil, true, nil
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit finalize: %w", err)
	}
	return attendees, false, nil
}

func (r *fulfillmentRepository) RecordFailure(ctx context.Context, f *domain.FulfillmentFailure) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO fulfillment_failures (session_id, provider, reason, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, f.SessionID, f.Provider, f.Reason, nullString(f.Detail)).
		Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("record fulfillment failure: %w", err)
	}
	return nil
}

func (r *fulfillmentRepository) ListFailures(ctx context.Context, p domain.PaginationParams) ([]*domain.FulfillmentFailure, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM fulfillment_failures`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fulfillment failures: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, session_id, provider, reason, COALESCE(detail, ''), created_at
		FROM fulfillment_failures
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, p.PageSize, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list fulfillment failures: %w", err)
	}
	defer rows.Close()

	var failures []*domain.FulfillmentFailure
	for rows.Next() {
		f := &domain.FulfillmentFailure{}
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Provider, &f.Reason, &f.Detail, &f.CreatedAt); err != nil {
			return nil, 0, err
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if failures == nil {
		failures = []*domain.FulfillmentFailure{}
	}
	return failures, total, nil
}
