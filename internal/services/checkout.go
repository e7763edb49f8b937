package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ticketbooth/internal/domain"
)

type checkoutService struct {
	eventRepo       domain.EventRepository
	attendeeRepo    domain.AttendeeRepository
	fulfillmentRepo domain.FulfillmentRepository
	providers       domain.ProviderSource
	emailService    domain.EmailService
	baseURL         string
	logger          *slog.Logger
}

// NewCheckoutService creates the paid-path orchestrator.
func NewCheckoutService(
	eventRepo domain.EventRepository,
	attendeeRepo domain.AttendeeRepository,
	fulfillmentRepo domain.FulfillmentRepository,
	providers domain.ProviderSource,
	emailService domain.EmailService,
	baseURL string,
	logger *slog.Logger,
) domain.CheckoutService {
	return &checkoutService{
		eventRepo:       eventRepo,
		attendeeRepo:    attendeeRepo,
		fulfillmentRepo: fulfillmentRepo,
		providers:       providers,
		emailService:    emailService,
		baseURL:         baseURL,
		logger:          logger,
	}
}

// StartCheckout validates the intent, runs the advisory capacity check, and
// opens a provider session. Nothing is reserved here: the provider session's
// metadata carries the intent until the webhook finalizes it.
func (s *checkoutService) StartCheckout(ctx context.Context, intent *domain.ReservationIntent) (*domain.CheckoutResult, error) {
	if errs := intent.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(errs, "; "))
	}

	provider, err := s.providers.Active()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnconfigured, err)
	}

	if intent.IsMulti() {
		return s.startMultiCheckout(ctx, provider, intent)
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
	if event.IsFree() {
		return nil, fmt.Errorf("%w: event %s is free, book it directly", domain.ErrInvalidInput, event.ID)
	}

	ok, err := s.attendeeRepo.CheckBatchAvailability(ctx, []domain.AvailabilityQuery{
		{EventID: event.ID, Quantity: intent.Quantity, Date: intentDate(event, intent.Date)},
	})
	if err != nil {
		return nil, fmt.Errorf("advisory availability check: %w", err)
	}
	if !ok {
		return nil, domain.ErrCapacityExceeded
	}

	session, err := provider.CreateCheckoutSession(ctx, event, intent, s.baseURL)
	if err != nil {
		return nil, err
	}
	return &domain.CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (s *checkoutService) startMultiCheckout(ctx context.Context, provider domain.PaymentProvider, intent *domain.ReservationIntent) (*domain.CheckoutResult, error) {
	priced := make([]domain.PricedItem, 0, len(intent.Items))
	queries := make([]domain.AvailabilityQuery, 0, len(intent.Items))
	for _, item := range intent.Items {
		event, err := s.eventRepo.GetByID(ctx, item.EventID)
		if err != nil {
			if err == domain.ErrNotFound {
				return nil, domain.ErrNotFound
			}
			return nil, fmt.Errorf("get event %s: %w", item.EventID, err)
		}
		if err := validateIntentAgainstEvent(event, item.Quantity, ""); err != nil {
			return nil, err
		}
		if event.IsFree() {
			return nil, fmt.Errorf("%w: event %s is free and cannot join a paid basket", domain.ErrInvalidInput, event.ID)
		}
		priced = append(priced, domain.PricedItem{
			EventID:        event.ID,
			Name:           event.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: *event.PriceCents,
			Currency:       event.Currency,
		})
		queries = append(queries, domain.AvailabilityQuery{EventID: event.ID, Quantity: item.Quantity})
	}

	ok, err := s.attendeeRepo.CheckBatchAvailability(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("advisory availability check: %w", err)
	}
	if !ok {
		return nil, domain.ErrCapacityExceeded
	}

	session, err := provider.CreateMultiCheckoutSession(ctx, intent, priced, s.baseURL)
	if err != nil {
		return nil, err
	}
	return &domain.CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

// HandleWebhook verifies the delivery, extracts the session id, and
// finalizes it. Gateway retries and duplicate deliveries are safe: the
// finalize is idempotent, and irrelevant event types ack as no-ops.
func (s *checkoutService) HandleWebhook(ctx context.Context, providerName string, body []byte, signatureHeader string) (*domain.FinalizeOutcome, error) {
	provider, err := s.providers.ByName(providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrWebhookRejected, providerName)
	}

	verification := provider.VerifyWebhookSignature(body, signatureHeader)
	if !verification.Valid {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrWebhookRejected, verification.Message, verification.Code)
	}

	sessionID, relevant := sessionIDFromEvent(provider.Name(), verification.Event)
	if !relevant {
		s.logger.DebugContext(ctx, "ignoring webhook event", "provider", provider.Name(), "type", verification.Event.Type)
		return &domain.FinalizeOutcome{}, nil
	}
	return s.finalize(ctx, provider, sessionID)
}

// PollSession finalizes from the success page through the same idempotent
// path as the webhook, covering deliveries that are late or lost.
func (s *checkoutService) PollSession(ctx context.Context, providerName, sessionID string) (*domain.FinalizeOutcome, error) {
	provider, err := s.providerFor(providerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnconfigured, err)
	}
	return s.finalize(ctx, provider, sessionID)
}

// providerFor resolves the named gateway, or the active one when no name
// is given. Sessions and failures created under a previously active gateway
// stay reachable after the operator switches providers.
func (s *checkoutService) providerFor(name string) (domain.PaymentProvider, error) {
	if name == "" {
		return s.providers.Active()
	}
	return s.providers.ByName(name)
}

func (s *checkoutService) finalize(ctx context.Context, provider domain.PaymentProvider, sessionID string) (*domain.FinalizeOutcome, error) {
	session, err := provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve session %s: %w", sessionID, err)
	}
	outcome := &domain.FinalizeOutcome{SessionID: session.ID, PaymentStatus: session.PaymentStatus}
	if session.PaymentStatus != domain.PaymentStatusPaid {
		return outcome, nil
	}

	reservations := reservationsFromMetadata(session)
	attendees, already, err := s.fulfillmentRepo.FinalizeSession(ctx, session.ID, reservations)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			// Money has moved but the seats are gone: record it for manual
			// refund and ack the delivery so the gateway stops retrying.
			outcome.CapacityLost = true
			s.recordCapacityLoss(ctx, provider.Name(), session, err)
			return outcome, nil
		}
		return nil, fmt.Errorf("finalize session %s: %w", session.ID, err)
	}
	if already {
		outcome.AlreadyProcessed = true
		return outcome, nil
	}
	outcome.Attendees = attendees

	for _, attendee := range attendees {
		eventName := attendee.EventID
		if event, lookupErr := s.eventRepo.GetByID(ctx, attendee.EventID); lookupErr == nil {
			eventName = event.Name
		}
		if err := s.emailService.SendBookingConfirmation(ctx, &domain.BookingConfirmationData{
			Email:     attendee.Email,
			Name:      attendee.Name,
			EventName: eventName,
			Quantity:  attendee.Quantity,
			Date:      attendee.BookingDate,
			Reference: attendee.PaymentReference,
		}); err != nil {
			s.logger.WarnContext(ctx, "confirmation email failed", "session_id", session.ID, "err", err)
		}
	}
	s.logger.InfoContext(ctx, "session fulfilled", "session_id", session.ID, "attendees", len(attendees))
	return outcome, nil
}

func (s *checkoutService) recordCapacityLoss(ctx context.Context, providerName string, session *domain.CheckoutSession, cause error) {
	failure := &domain.FulfillmentFailure{
		SessionID: session.ID,
		Provider:  providerName,
		Reason:    domain.ReasonPostPaymentCapacityLost,
		Detail:    cause.Error(),
	}
	if err := s.fulfillmentRepo.RecordFailure(ctx, failure); err != nil {
		s.logger.ErrorContext(ctx, "failed to record fulfillment failure", "session_id", session.ID, "err", err)
		return
	}
	s.logger.WarnContext(ctx, "post-payment capacity lost, manual refund required",
		"session_id", session.ID, "provider", providerName)
}

// Refund issues a full refund through the named gateway, falling back to
// the active one.
func (s *checkoutService) Refund(ctx context.Context, providerName, paymentReference string) bool {
	provider, err := s.providerFor(providerName)
	if err != nil {
		return false
	}
	return provider.RefundPayment(ctx, paymentReference)
}

func (s *checkoutService) ListFulfillmentFailures(ctx context.Context, p domain.PaginationParams) ([]*domain.FulfillmentFailure, int, error) {
	return s.fulfillmentRepo.ListFailures(ctx, p)
}

// reservationsFromMetadata rebuilds the reservation batch from session
// metadata, which the adapter has already validated for completeness.
func reservationsFromMetadata(session *domain.CheckoutSession) []domain.ReservationRequest {
	meta := session.Metadata
	if meta.Multi {
		reservations := make([]domain.ReservationRequest, len(meta.Items))
		for i, item := range meta.Items {
			reservations[i] = domain.ReservationRequest{
				EventID:          item.EventID,
				Name:             meta.Name,
				Email:            meta.Email,
				Phone:            meta.Phone,
				Quantity:         item.Quantity,
				PaymentReference: session.PaymentReference,
			}
		}
		return reservations
	}
	return []domain.ReservationRequest{{
		EventID:          meta.EventID,
		Name:             meta.Name,
		Email:            meta.Email,
		Phone:            meta.Phone,
		Quantity:         meta.Quantity,
		Date:             meta.Date,
		PaymentReference: session.PaymentReference,
	}}
}

// sessionIDFromEvent pulls the checkout session id out of a verified
// webhook event. Returns false for event types that do not complete a
// payment.
func sessionIDFromEvent(providerName string, event *domain.WebhookEvent) (string, bool) {
	var payload struct {
		Object struct {
			ID      string `json:"id"`
			Payment struct {
				OrderID string `json:"order_id"`
			} `json:"payment"`
		} `json:"object"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return "", false
	}
	switch providerName {
	case "stripe":
		if event.Type == "checkout.session.completed" && payload.Object.ID != "" {
			return payload.Object.ID, true
		}
	case "square":
		if (event.Type == "payment.updated" || event.Type == "payment.created") && payload.Object.Payment.OrderID != "" {
			return payload.Object.Payment.OrderID, true
		}
	}
	return "", false
}
