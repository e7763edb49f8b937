package domain

import (
	"context"
	"time"
)

// Event represents a bookable event.
// swagger:model Event
type Event struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Capacity is the total seat limit. Nil means unlimited.
	Capacity *int `json:"capacity"`

	// PriceCents is the unit price in the smallest currency unit. Nil means
	// the event is free.
	PriceCents *int64 `json:"price_cents"`
	Currency   string `json:"currency"`

	// MaxPerBooking caps the quantity of a single booking. Zero means no cap.
	MaxPerBooking int `json:"max_per_booking"`

	// DateScoped marks recurring events whose capacity is tracked per
	// booking date rather than for the event as a whole.
	DateScoped bool `json:"date_scoped"`

	// ClosingDeadline, when set, rejects bookings after this instant.
	ClosingDeadline *time.Time `json:"closing_deadline"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFree reports whether the event has no configured price.
func (e *Event) IsFree() bool {
	return e.PriceCents == nil || *e.PriceCents <= 0
}

// IsClosed reports whether the closing deadline has passed at the given time.
func (e *Event) IsClosed(now time.Time) bool {
	return e.ClosingDeadline != nil && now.After(*e.ClosingDeadline)
}

// EventRepository defines the interface for event storage. Events are owned
// by the admin dataset; the booking engine only reads them.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
}
