package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"ticketbooth/internal/domain"
)

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type mockEventRepository struct {
	events map[string]*domain.Event
	err    error
}

func (m *mockEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	ev, ok := m.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ev, nil
}

type mockAttendeeRepository struct {
	reserveErr   error
	reserved     []domain.ReservationRequest
	available    bool
	availability []domain.AvailabilityQuery
	availErr     error
	remaining    *int
	remainingErr error
}

func (m *mockAttendeeRepository) ReserveAtomic(ctx context.Context, req domain.ReservationRequest) (*domain.Attendee, error) {
	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	m.reserved = append(m.reserved, req)
	return &domain.Attendee{
		ID:               "a1",
		EventID:          req.EventID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Quantity:         req.Quantity,
		BookingDate:      req.Date,
		PaymentReference: req.PaymentReference,
		CreatedAt:        time.Now(),
	}, nil
}

func (m *mockAttendeeRepository) CheckBatchAvailability(ctx context.Context, queries []domain.AvailabilityQuery) (bool, error) {
	if m.availErr != nil {
		return false, m.availErr
	}
	m.availability = append(m.availability, queries...)
	return m.available, nil
}

func (m *mockAttendeeRepository) Remaining(ctx context.Context, eventID, date string) (*int, error) {
	if m.remainingErr != nil {
		return nil, m.remainingErr
	}
	return m.remaining, nil
}

type mockEmailService struct {
	sent    []*domain.BookingConfirmationData
	sendErr error
}

func (m *mockEmailService) SendBookingConfirmation(ctx context.Context, data *domain.BookingConfirmationData) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func TestBookingService_BookFree(t *testing.T) {
	pastDeadline := time.Now().Add(-time.Hour)
	freeEvent := &domain.Event{ID: "e1", Name: "Community Meetup", Capacity: intPtr(50)}
	paidEvent := &domain.Event{ID: "e2", Name: "Gala", Capacity: intPtr(50), PriceCents: int64Ptr(5000), Currency: "usd"}
	closedEvent := &domain.Event{ID: "e3", Name: "Closed", ClosingDeadline: &pastDeadline}
	cappedEvent := &domain.Event{ID: "e4", Name: "Workshop", Capacity: intPtr(50), MaxPerBooking: 4}
	datedEvent := &domain.Event{ID: "e5", Name: "Tour", Capacity: intPtr(10), DateScoped: true}

	events := map[string]*domain.Event{
		"e1": freeEvent, "e2": paidEvent, "e3": closedEvent, "e4": cappedEvent, "e5": datedEvent,
	}

	tests := []struct {
		name       string
		intent     *domain.ReservationIntent
		reserveErr error
		wantErr    error
		wantDate   string
	}{
		{
			name:   "success",
			intent: &domain.ReservationIntent{EventID: "e1", Name: "Alice", Email: "alice@example.com", Quantity: 2},
		},
		{
			name:    "invalid intent",
			intent:  &domain.ReservationIntent{EventID: "e1", Quantity: 0},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "multi basket rejected on free path",
			intent: &domain.ReservationIntent{
				Items: []domain.BasketItem{{EventID: "e1", Quantity: 1}},
				Name:  "Alice", Email: "alice@example.com",
			},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "unknown event",
			intent:  &domain.ReservationIntent{EventID: "missing", Name: "Alice", Email: "alice@example.com", Quantity: 1},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "paid event rejected",
			intent:  &domain.ReservationIntent{EventID: "e2", Name: "Alice", Email: "alice@example.com", Quantity: 1},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "closed event",
			intent:  &domain.ReservationIntent{EventID: "e3", Name: "Alice", Email: "alice@example.com", Quantity: 1},
			wantErr: domain.ErrBookingClosed,
		},
		{
			name:    "over per-booking cap",
			intent:  &domain.ReservationIntent{EventID: "e4", Name: "Alice", Email: "alice@example.com", Quantity: 5},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "date-scoped event requires date",
			intent:  &domain.ReservationIntent{EventID: "e5", Name: "Alice", Email: "alice@example.com", Quantity: 1},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:     "date kept for date-scoped event",
			intent:   &domain.ReservationIntent{EventID: "e5", Name: "Alice", Email: "alice@example.com", Quantity: 1, Date: "2026-09-12"},
			wantDate: "2026-09-12",
		},
		{
			name:   "date dropped for non-scoped event",
			intent: &domain.ReservationIntent{EventID: "e1", Name: "Alice", Email: "alice@example.com", Quantity: 1, Date: "2026-09-12"},
		},
		{
			name:       "capacity exceeded surfaces",
			intent:     &domain.ReservationIntent{EventID: "e1", Name: "Alice", Email: "alice@example.com", Quantity: 2},
			reserveErr: domain.ErrCapacityExceeded,
			wantErr:    domain.ErrCapacityExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attendeeRepo := &mockAttendeeRepository{reserveErr: tt.reserveErr}
			emails := &mockEmailService{}
			svc := NewBookingService(&mockEventRepository{events: events}, attendeeRepo, emails, discardLogger())

			attendee, err := svc.BookFree(context.Background(), tt.intent)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if len(emails.sent) != 0 {
					t.Fatalf("no email should be sent on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if attendee.EventID != tt.intent.EventID {
				t.Fatalf("expected event %s, got %s", tt.intent.EventID, attendee.EventID)
			}
			if attendee.BookingDate != tt.wantDate {
				t.Fatalf("expected booking date %q, got %q", tt.wantDate, attendee.BookingDate)
			}
			if len(emails.sent) != 1 {
				t.Fatalf("expected one confirmation email, got %d", len(emails.sent))
			}
		})
	}
}

func TestBookingService_BookFree_EmailFailureIsNonFatal(t *testing.T) {
	events := map[string]*domain.Event{"e1": {ID: "e1", Name: "Meetup", Capacity: intPtr(10)}}
	svc := NewBookingService(
		&mockEventRepository{events: events},
		&mockAttendeeRepository{},
		&mockEmailService{sendErr: errors.New("ses down")},
		discardLogger(),
	)

	attendee, err := svc.BookFree(context.Background(), &domain.ReservationIntent{
		EventID: "e1", Name: "Alice", Email: "alice@example.com", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attendee == nil {
		t.Fatal("reservation should stand when the email fails")
	}
}

func TestBookingService_Availability(t *testing.T) {
	events := map[string]*domain.Event{
		"e1": {ID: "e1", Name: "Capped", Capacity: intPtr(10)},
		"e2": {ID: "e2", Name: "Unlimited"},
	}

	tests := []struct {
		name          string
		eventID       string
		remaining     *int
		wantRemaining *int
		wantErr       error
	}{
		{name: "finite remaining", eventID: "e1", remaining: intPtr(3), wantRemaining: intPtr(3)},
		{name: "unlimited", eventID: "e2", remaining: nil, wantRemaining: nil},
		{name: "unknown event", eventID: "missing", wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewBookingService(
				&mockEventRepository{events: events},
				&mockAttendeeRepository{remaining: tt.remaining},
				&mockEmailService{},
				discardLogger(),
			)
			got, err := svc.Availability(context.Background(), tt.eventID, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got.Remaining == nil) != (tt.wantRemaining == nil) {
				t.Fatalf("expected remaining %v, got %v", tt.wantRemaining, got.Remaining)
			}
			if got.Remaining != nil && *got.Remaining != *tt.wantRemaining {
				t.Fatalf("expected remaining %d, got %d", *tt.wantRemaining, *got.Remaining)
			}
		})
	}
}
