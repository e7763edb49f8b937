// Package postgres implements the storage side of the reservation engine:
// event reads, the atomic capacity ledger, and the payment idempotency
// tracker. Atomicity relies on Postgres row locks and unique constraints,
// never on in-process locking.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ticketbooth/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, name, capacity, price_cents, currency, max_per_booking,
			date_scoped, closing_deadline, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	event := &domain.Event{}
	var capacity sql.NullInt64
	var price sql.NullInt64
	var deadline sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.Name, &capacity, &price, &event.Currency,
		&event.MaxPerBooking, &event.DateScoped, &deadline,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		event.Capacity = &c
	}
	if price.Valid {
		p := price.Int64
		event.PriceCents = &p
	}
	if deadline.Valid {
		d := deadline.Time
		event.ClosingDeadline = &d
	}
	return event, nil
}
