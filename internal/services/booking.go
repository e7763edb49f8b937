package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ticketbooth/internal/domain"
)

type bookingService struct {
	eventRepo    domain.EventRepository
	attendeeRepo domain.AttendeeRepository
	emailService domain.EmailService
	logger       *slog.Logger
}

// NewBookingService creates the free-path booking service.
func NewBookingService(
	eventRepo domain.EventRepository,
	attendeeRepo domain.AttendeeRepository,
	emailService domain.EmailService,
	logger *slog.Logger,
) domain.BookingService {
	return &bookingService{
		eventRepo:    eventRepo,
		attendeeRepo: attendeeRepo,
		emailService: emailService,
		logger:       logger,
	}
}

// BookFree reserves directly: the atomic capacity check is the only
// gatekeeper, and the attendee row is the booking.
func (s *bookingService) BookFree(ctx context.Context, intent *domain.ReservationIntent) (*domain.Attendee, error) {
	if errs := intent.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(errs, "; "))
	}
	if intent.IsMulti() {
		return nil, fmt.Errorf("%w: multi-item bookings go through checkout", domain.ErrInvalidInput)
	}

	event, err := s.eventRepo.GetByID(ctx, intent.EventID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if err := validateIntentAgainstEvent(event, intent.Quantity, intent.Date); err != nil {
		return nil, err
	}
	if !event.IsFree() {
		return nil, fmt.Errorf("%w: event %s requires payment", domain.ErrInvalidInput, event.ID)
	}

	attendee, err := s.attendeeRepo.ReserveAtomic(ctx, domain.ReservationRequest{
		EventID:  event.ID,
		Name:     intent.Name,
		Email:    intent.Email,
		Phone:    intent.Phone,
		Quantity: intent.Quantity,
		Date:     intentDate(event, intent.Date),
	})
	if err != nil {
		return nil, err
	}

	// Confirmation email is best effort; the reservation stands either way.
	if err := s.emailService.SendBookingConfirmation(ctx, &domain.BookingConfirmationData{
		Email:     attendee.Email,
		Name:      attendee.Name,
		EventName: event.Name,
		Quantity:  attendee.Quantity,
		Date:      attendee.BookingDate,
	}); err != nil {
		s.logger.WarnContext(ctx, "confirmation email failed", "event_id", event.ID, "err", err)
	}
	return attendee, nil
}

func (s *bookingService) Availability(ctx context.Context, eventID, date string) (*domain.Availability, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	remaining, err := s.attendeeRepo.Remaining(ctx, eventID, intentDate(event, date))
	if err != nil {
		return nil, fmt.Errorf("compute remaining capacity: %w", err)
	}
	return &domain.Availability{
		EventID:   eventID,
		Date:      intentDate(event, date),
		Remaining: remaining,
	}, nil
}

// validateIntentAgainstEvent enforces per-event booking rules shared by the
// free and paid paths.
func validateIntentAgainstEvent(event *domain.Event, quantity int, date string) error {
	if event.IsClosed(time.Now()) {
		return domain.ErrBookingClosed
	}
	if event.MaxPerBooking > 0 && quantity > event.MaxPerBooking {
		return fmt.Errorf("%w: at most %d tickets per booking", domain.ErrInvalidInput, event.MaxPerBooking)
	}
	if event.DateScoped && date == "" {
		return fmt.Errorf("%w: a date is required for this event", domain.ErrInvalidInput)
	}
	return nil
}

// intentDate keeps the booking date only for date-scoped events.
func intentDate(event *domain.Event, date string) string {
	if event.DateScoped {
		return date
	}
	return ""
}
