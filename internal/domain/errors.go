package domain

import "errors"

// Sentinel errors shared across services and repositories.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for malformed or incomplete booking input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapacityExceeded is returned when a reservation would exceed the
	// event's remaining capacity.
	ErrCapacityExceeded = errors.New("not enough spots available")

	// ErrBookingClosed is returned when the event's closing deadline has
	// passed.
	ErrBookingClosed = errors.New("booking closed")

	// ErrEncryption is returned when contact fields cannot be encrypted or
	// decrypted.
	ErrEncryption = errors.New("encryption failed")

	// ErrProviderUnconfigured is returned when no price or no gateway
	// credentials are configured for a paid checkout.
	ErrProviderUnconfigured = errors.New("payments not configured")

	// ErrProviderRejected is returned when the gateway refuses or fails a
	// session-creation call.
	ErrProviderRejected = errors.New("payment provider rejected the request")

	// ErrMetadataOverflow is returned when a non-truncatable metadata value
	// exceeds the provider's per-field limit.
	ErrMetadataOverflow = errors.New("session metadata exceeds provider limit")

	// ErrWebhookRejected wraps all webhook verification failures. The
	// verification result carries the specific failure code.
	ErrWebhookRejected = errors.New("webhook rejected")
)
