package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketbooth/internal/domain"
)

type attendeeRepository struct {
	DB     *sql.DB
	cipher domain.FieldCipher
}

// NewAttendeeRepository returns the capacity ledger. The cipher encrypts
// contact fields before they reach the database.
func NewAttendeeRepository(db *sql.DB, cipher domain.FieldCipher) domain.AttendeeRepository {
	return &attendeeRepository{
		DB:     db,
		cipher: cipher,
	}
}

// ReserveAtomic locks the event row, recomputes consumed capacity, and
// inserts the attendee, all in one transaction. The row lock serializes
// concurrent reservations for the same event, so two requests for the last
// seat resolve to one success and one ErrCapacityExceeded.
func (r *attendeeRepository) ReserveAtomic(ctx context.Context, req domain.ReservationRequest) (*domain.Attendee, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var attendee *domain.Attendee
	attendee, err = reserveAttendeeTx(ctx, tx, r.cipher, req)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return attendee, nil
}

// reserveAttendeeTx performs the locked check-then-insert on an open
// transaction. Shared with the webhook finalize path, which batches several
// reservations and the idempotency marker into one transaction.
func reserveAttendeeTx(ctx context.Context, tx *sql.Tx, cipher domain.FieldCipher, req domain.ReservationRequest) (*domain.Attendee, error) {
	var capacity sql.NullInt64
	var dateScoped bool
	err := tx.QueryRowContext(ctx, `
		SELECT capacity, date_scoped
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, req.EventID).Scan(&capacity, &dateScoped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	if capacity.Valid {
		consumed, err := consumedQuantityTx(ctx, tx, req.EventID, dateScoped, req.Date)
		if err != nil {
			return nil, err
		}
		if consumed+req.Quantity > int(capacity.Int64) {
			return nil, domain.ErrCapacityExceeded
		}
	}

	encName, err := cipher.Encrypt(req.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	encEmail, err := cipher.Encrypt(req.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	var encPhone sql.NullString
	if req.Phone != "" {
		p, err := cipher.Encrypt(req.Phone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
		}
		encPhone = sql.NullString{String: p, Valid: true}
	}

	attendee := &domain.Attendee{
		EventID:          req.EventID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Quantity:         req.Quantity,
		BookingDate:      req.Date,
		PaymentReference: req.PaymentReference,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendees (event_id, name, email, phone, quantity, booking_date, payment_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, req.EventID, encName, encEmail, encPhone, req.Quantity,
		nullString(req.Date), nullString(req.PaymentReference),
	).Scan(&attendee.ID, &attendee.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert attendee: %w", err)
	}
	return attendee, nil
}

func consumedQuantityTx(ctx context.Context, tx *sql.Tx, eventID string, dateScoped bool, date string) (int, error) {
	var consumed int
	var err error
	if dateScoped && date != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM attendees
			WHERE event_id = $1 AND booking_date = $2
		`, eventID, date).Scan(&consumed)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM attendees
			WHERE event_id = $1
		`, eventID).Scan(&consumed)
	}
	if err != nil {
		return 0, fmt.Errorf("sum consumed quantity: %w", err)
	}
	return consumed, nil
}

// CheckBatchAvailability reports whether every queried quantity currently
// fits. It takes no locks; the authoritative check still happens at
// ReserveAtomic time, so callers must tolerate this answer going stale.
func (r *attendeeRepository) CheckBatchAvailability(ctx context.Context, items []domain.AvailabilityQuery) (bool, error) {
	for _, item := range items {
		remaining, err := r.Remaining(ctx, item.EventID, item.Date)
		if err != nil {
			return false, err
		}
		if remaining != nil && item.Quantity > *remaining {
			return false, nil
		}
	}
	return true, nil
}

// Remaining returns the open capacity for an event; nil means unlimited.
func (r *attendeeRepository) Remaining(ctx context.Context, eventID, date string) (*int, error) {
	var capacity sql.NullInt64
	var dateScoped bool
	err := r.DB.QueryRowContext(ctx, `
		SELECT capacity, date_scoped FROM events WHERE id = $1
	`, eventID).Scan(&capacity, &dateScoped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event capacity: %w", err)
	}
	if !capacity.Valid {
		return nil, nil
	}

	var consumed int
	if dateScoped && date != "" {
		err = r.DB.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM attendees
			WHERE event_id = $1 AND booking_date = $2
		`, eventID, date).Scan(&consumed)
	} else {
		err = r.DB.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM attendees
			WHERE event_id = $1
		`, eventID).Scan(&consumed)
	}
	if err != nil {
		return nil, fmt.Errorf("sum consumed quantity: %w", err)
	}

	remaining := int(capacity.Int64) - consumed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
