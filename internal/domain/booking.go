package domain

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// BasketItem is one entry of a multi-event booking.
type BasketItem struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

// ReservationIntent is one booking attempt. It is built per request and
// never persisted; for paid bookings its essential fields travel inside the
// checkout session's metadata until the webhook arrives.
type ReservationIntent struct {
	EventID  string
	Items    []BasketItem
	Name     string
	Email    string
	Phone    string
	Quantity int
	// Date is the booking date (YYYY-MM-DD) for date-scoped events.
	Date string
}

// IsMulti reports whether the intent spans several events.
func (i *ReservationIntent) IsMulti() bool {
	return len(i.Items) > 0
}

// Validate returns a list of problems with the intent; empty means valid.
func (i *ReservationIntent) Validate() []string {
	var errs []string
	if strings.TrimSpace(i.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(i.Email) == "" {
		errs = append(errs, "email is required")
	} else if _, err := mail.ParseAddress(i.Email); err != nil {
		errs = append(errs, "email is not a valid address")
	}
	if i.IsMulti() {
		for _, item := range i.Items {
			if item.EventID == "" {
				errs = append(errs, "every item needs an event_id")
				break
			}
			if item.Quantity < 1 {
				errs = append(errs, "every item quantity must be at least 1")
				break
			}
		}
	} else {
		if i.EventID == "" {
			errs = append(errs, "event_id is required")
		}
		if i.Quantity < 1 {
			errs = append(errs, "quantity must be at least 1")
		}
	}
	if i.Date != "" {
		if _, err := time.Parse("2006-01-02", i.Date); err != nil {
			errs = append(errs, "date must be formatted YYYY-MM-DD")
		}
	}
	return errs
}

// Attendee is the durable result of a fulfilled reservation. Its existence
// is the capacity consumption: remaining = limit - sum(quantity) over
// attendees for the event (per date, for date-scoped events). Contact
// fields are encrypted at rest and held in plaintext only in memory.
// swagger:model Attendee
type Attendee struct {
	ID       string `json:"id"`
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Quantity int    `json:"quantity"`
	// BookingDate is set for date-scoped events (YYYY-MM-DD).
	BookingDate string `json:"booking_date,omitempty"`
	// PaymentReference links a paid booking to the provider's payment.
	PaymentReference string    `json:"payment_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ReservationRequest is the input to an atomic reservation.
type ReservationRequest struct {
	EventID          string
	Name             string
	Email            string
	Phone            string
	Quantity         int
	Date             string
	PaymentReference string
}

// AvailabilityQuery asks whether quantity seats are open for an event,
// optionally on a specific date.
type AvailabilityQuery struct {
	EventID  string
	Quantity int
	Date     string
}

// Availability is the remaining-capacity read for one event.
// swagger:model Availability
type Availability struct {
	EventID string `json:"event_id"`
	Date    string `json:"date,omitempty"`
	// Remaining is nil for unlimited-capacity events.
	Remaining *int `json:"remaining"`
}

// AttendeeRepository is the capacity ledger: it computes remaining capacity
// and performs the atomic reserve-or-fail insert.
type AttendeeRepository interface {
	// ReserveAtomic checks remaining capacity and inserts the attendee in
	// one transaction. Two concurrent calls for the last seat resolve to
	// exactly one success and one ErrCapacityExceeded.
	ReserveAtomic(ctx context.Context, req ReservationRequest) (*Attendee, error)

	// CheckBatchAvailability reports whether every queried quantity fits.
	// It takes no locks; callers must treat the answer as advisory.
	CheckBatchAvailability(ctx context.Context, items []AvailabilityQuery) (bool, error)

	// Remaining returns the open capacity for an event (nil = unlimited).
	Remaining(ctx context.Context, eventID, date string) (*int, error)
}

// BookingService handles the free booking path and availability reads.
type BookingService interface {
	// BookFree reserves directly, without any payment session.
	BookFree(ctx context.Context, intent *ReservationIntent) (*Attendee, error)
	Availability(ctx context.Context, eventID, date string) (*Availability, error)
}
