package domain

import "context"

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(to, subject, text string) error
}

// BookingConfirmationData holds data for the booking confirmation email.
type BookingConfirmationData struct {
	Email     string
	Name      string
	EventName string
	Quantity  int
	Date      string
	Reference string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendBookingConfirmation(ctx context.Context, data *BookingConfirmationData) error
}
