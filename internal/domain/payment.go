package domain

import (
	"context"
	"encoding/json"
	"time"
)

// PaymentStatus is the normalized payment state of a checkout session.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusFailed PaymentStatus = "failed"
)

// MetadataValueLimit is the per-value size ceiling both gateways impose on
// session metadata. Values marked truncatable are cut to this length;
// anything else that overflows aborts session creation.
const MetadataValueLimit = 255

// SessionMetadata is the serialization contract carried on a checkout
// session. The provider is the only durable store of a paid intent between
// session creation and webhook delivery, so this must round-trip every
// field needed to rebuild the reservation.
type SessionMetadata struct {
	EventID  string
	Name     string
	Email    string
	Phone    string
	Quantity int
	Date     string
	// Multi marks a basket session; Items then carries the compact
	// {event, quantity} list and EventID/Quantity are unset.
	Multi bool
	Items []BasketItem
}

// Complete reports whether the metadata can rebuild a reservation: name,
// email, and either a single event id or a multi-item list.
func (m *SessionMetadata) Complete() bool {
	if m.Name == "" || m.Email == "" {
		return false
	}
	if m.Multi {
		return len(m.Items) > 0
	}
	return m.EventID != "" && m.Quantity > 0
}

// CheckoutSession is the domain view of a provider-side session. It is
// never stored locally and never mutated after creation.
type CheckoutSession struct {
	ID               string
	URL              string
	PaymentStatus    PaymentStatus
	PaymentReference string
	Metadata         SessionMetadata
}

// PricedItem is one line item of a multi-event checkout, priced at session
// creation from the event's configuration.
type PricedItem struct {
	EventID        string
	Name           string
	Quantity       int
	UnitPriceCents int64
	Currency       string
}

// WebhookFailureCode identifies why webhook verification failed.
type WebhookFailureCode string

const (
	WebhookFailureInvalidHeader  WebhookFailureCode = "invalid_signature_format"
	WebhookFailureSecretMissing  WebhookFailureCode = "secret_missing"
	WebhookFailureTimestamp      WebhookFailureCode = "timestamp_out_of_tolerance"
	WebhookFailureSignature      WebhookFailureCode = "signature_mismatch"
	WebhookFailureInvalidPayload WebhookFailureCode = "invalid_payload"
)

// WebhookEvent is the typed envelope of a verified webhook delivery.
type WebhookEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookVerification is the discriminated result of signature
// verification. Exactly one of Event or Code is meaningful. Error messages
// never include the secret or the raw payload.
type WebhookVerification struct {
	Valid bool
	Event *WebhookEvent
	Code  WebhookFailureCode
	// Message is a sanitized human-readable reason for the failure.
	Message string
}

// PaymentProvider is the uniform gateway contract. All failures surface as
// errors or false returns; no call panics across this boundary.
type PaymentProvider interface {
	Name() string

	// CreateCheckoutSession opens a single-event session. Fails with
	// ErrProviderUnconfigured when the event has no price or the gateway
	// has no credentials, ErrMetadataOverflow when a non-truncatable
	// metadata value exceeds the limit, and ErrProviderRejected when the
	// gateway call fails.
	CreateCheckoutSession(ctx context.Context, event *Event, intent *ReservationIntent, baseURL string) (*CheckoutSession, error)

	// CreateMultiCheckoutSession opens a basket session across several
	// events. Same failure modes as CreateCheckoutSession.
	CreateMultiCheckoutSession(ctx context.Context, intent *ReservationIntent, items []PricedItem, baseURL string) (*CheckoutSession, error)

	// RetrieveSession maps the provider's native session into the domain
	// shape. Incomplete metadata is a hard failure, never a partial result.
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// VerifyWebhookSignature validates the raw body against the provider's
	// signature header and returns the typed event on success.
	VerifyWebhookSignature(body []byte, signatureHeader string) WebhookVerification

	// RefundPayment looks the original amount up from the provider and
	// issues a full refund. Returns false on any failure.
	RefundPayment(ctx context.Context, paymentReference string) bool
}

// ProviderSource resolves gateway adapters. Implementations cache clients
// per credential fingerprint and expose an explicit invalidation.
type ProviderSource interface {
	// Active returns the configured gateway for new checkouts.
	Active() (PaymentProvider, error)
	// ByName returns the named gateway, for webhook routes.
	ByName(name string) (PaymentProvider, error)
	// Invalidate drops cached clients, forcing re-creation from current
	// credentials.
	Invalidate()
}

// ProcessedPayment is the durable idempotency marker: at most one exists
// per external session id, ever.
type ProcessedPayment struct {
	SessionID   string    `json:"session_id"`
	AttendeeIDs []string  `json:"attendee_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// FulfillmentFailure records a paid session that could not be honored
// (capacity lost between the advisory check and the webhook). Money has
// moved, so the row waits for manual operator follow-up; nothing retries
// automatically.
// swagger:model FulfillmentFailure
type FulfillmentFailure struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Provider  string    `json:"provider"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReasonPostPaymentCapacityLost marks fulfillment failures caused by losing
// the capacity race after payment completed.
const ReasonPostPaymentCapacityLost = "post_payment_capacity_lost"

// FulfillmentRepository finalizes paid sessions and tracks idempotency.
type FulfillmentRepository interface {
	// IsProcessed reports whether the session id has already been applied.
	IsProcessed(ctx context.Context, sessionID string) (bool, error)

	// FinalizeSession atomically reserves capacity for every request and
	// marks the session processed, all in one transaction. When the session
	// was already processed it returns (nil, true, nil) without touching
	// anything. ErrCapacityExceeded rolls the whole batch back.
	FinalizeSession(ctx context.Context, sessionID string, reservations []ReservationRequest) ([]*Attendee, bool, error)

	// RecordFailure appends to the manual-reconciliation queue.
	RecordFailure(ctx context.Context, f *FulfillmentFailure) error

	// ListFailures pages through the reconciliation queue, newest first.
	ListFailures(ctx context.Context, p PaginationParams) ([]*FulfillmentFailure, int, error)
}

// FinalizeOutcome is the result of applying a paid session.
type FinalizeOutcome struct {
	SessionID        string        `json:"session_id"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	Attendees        []*Attendee   `json:"attendees,omitempty"`
	AlreadyProcessed bool          `json:"already_processed"`
	CapacityLost     bool          `json:"capacity_lost"`
}

// CheckoutResult is returned to the booking UI to redirect the user.
type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutService is the paid-path orchestrator.
type CheckoutService interface {
	// StartCheckout pre-validates capacity (advisory) and opens a provider
	// session. No attendee exists until finalize.
	StartCheckout(ctx context.Context, intent *ReservationIntent) (*CheckoutResult, error)

	// HandleWebhook verifies, retrieves the session, and finalizes it
	// idempotently. Verification failures wrap ErrWebhookRejected.
	HandleWebhook(ctx context.Context, providerName string, body []byte, signatureHeader string) (*FinalizeOutcome, error)

	// PollSession is the success-page poll: it finalizes a paid session
	// through the same idempotent path as the webhook. An empty provider
	// name resolves to the active gateway; passing the name keeps sessions
	// opened under a previously active gateway reachable.
	PollSession(ctx context.Context, providerName, sessionID string) (*FinalizeOutcome, error)

	// Refund issues a full refund for the payment reference. An empty
	// provider name resolves to the active gateway. Returns false on any
	// failure.
	Refund(ctx context.Context, providerName, paymentReference string) bool

	// ListFulfillmentFailures exposes the reconciliation queue.
	ListFulfillmentFailures(ctx context.Context, p PaginationParams) ([]*FulfillmentFailure, int, error)
}
