package services

import (
	"context"
	"fmt"

	"ticketbooth/internal/domain"
)

type emailService struct {
	mailer domain.Mailer
}

// NewEmailService returns an EmailService that uses the given Mailer.
func NewEmailService(mailer domain.Mailer) domain.EmailService {
	return &emailService{mailer: mailer}
}

// SendBookingConfirmation sends a plain-text confirmation for a fulfilled
// reservation.
func (s *emailService) SendBookingConfirmation(ctx context.Context, data *domain.BookingConfirmationData) error {
	if data == nil {
		return fmt.Errorf("booking confirmation data is nil")
	}
	subject := fmt.Sprintf("Your booking for %s is confirmed", data.EventName)
	body := fmt.Sprintf("Hello %s,\n\nYour booking for %s is confirmed.\nTickets: %d\n",
		data.Name, data.EventName, data.Quantity)
	if data.Date != "" {
		body += fmt.Sprintf("Date: %s\n", data.Date)
	}
	if data.Reference != "" {
		body += fmt.Sprintf("Payment reference: %s\n", data.Reference)
	}
	body += "\nSee you there!\n"
	if err := s.mailer.Send(data.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send booking confirmation: %w", err)
	}
	return nil
}
