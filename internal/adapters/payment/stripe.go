// Package payment implements the gateway adapters behind the
// domain.PaymentProvider contract. Each adapter speaks the provider's HTTP
// API directly and converts every failure into an error or a discriminated
// result; nothing panics across this boundary.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketbooth/internal/domain"
)

const stripeAPIBase = "https://api.stripe.com"

// defaultTolerance bounds how far a signed webhook timestamp may drift
// from the local clock.
const defaultTolerance = 300 * time.Second

// StripeOptions configures the Stripe adapter.
type StripeOptions struct {
	SecretKey     string
	WebhookSecret string
	// APIBase overrides the Stripe endpoint, for tests.
	APIBase string
	// Tolerance overrides the webhook timestamp window (default 300s).
	Tolerance time.Duration
	// Now overrides the clock, for tests.
	Now        func() time.Time
	HTTPClient *http.Client
}

type stripeProvider struct {
	secretKey     string
	webhookSecret string
	apiBase       string
	tolerance     time.Duration
	now           func() time.Time
	client        *http.Client
}

// NewStripe returns a PaymentProvider backed by the Stripe Checkout
// Sessions API.
func NewStripe(opts StripeOptions) domain.PaymentProvider {
	p := &stripeProvider{
		secretKey:     opts.SecretKey,
		webhookSecret: opts.WebhookSecret,
		apiBase:       opts.APIBase,
		tolerance:     opts.Tolerance,
		now:           opts.Now,
		client:        opts.HTTPClient,
	}
	if p.apiBase == "" {
		p.apiBase = stripeAPIBase
	}
	if p.tolerance <= 0 {
		p.tolerance = defaultTolerance
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

func (p *stripeProvider) Name() string { return "stripe" }

// stripeSession is the subset of Stripe's checkout session object we read.
type stripeSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeError struct {
	Error struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, event *domain.Event, intent *domain.ReservationIntent, baseURL string) (*domain.CheckoutSession, error) {
	if event.IsFree() {
		return nil, fmt.Errorf("%w: event %s has no price", domain.ErrProviderUnconfigured, event.ID)
	}
	meta, err := encodeMetadata(domain.SessionMetadata{
		EventID:  event.ID,
		Name:     intent.Name,
		Email:    intent.Email,
		Phone:    intent.Phone,
		Quantity: intent.Quantity,
		Date:     intent.Date,
	})
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	addStripeLineItem(form, 0, event.Name, event.Currency, *event.PriceCents, intent.Quantity)
	return p.createSession(ctx, form, meta, baseURL)
}

func (p *stripeProvider) CreateMultiCheckoutSession(ctx context.Context, intent *domain.ReservationIntent, items []domain.PricedItem, baseURL string) (*domain.CheckoutSession, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty basket", domain.ErrProviderUnconfigured)
	}
	basket := make([]domain.BasketItem, len(items))
	for i, it := range items {
		basket[i] = domain.BasketItem{EventID: it.EventID, Quantity: it.Quantity}
	}
	meta, err := encodeMetadata(domain.SessionMetadata{
		Name:  intent.Name,
		Email: intent.Email,
		Phone: intent.Phone,
		Multi: true,
		Items: basket,
	})
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	for i, it := range items {
		addStripeLineItem(form, i, it.Name, it.Currency, it.UnitPriceCents, it.Quantity)
	}
	return p.createSession(ctx, form, meta, baseURL)
}

func addStripeLineItem(form url.Values, idx int, name, currency string, unitPrice int64, quantity int) {
	prefix := fmt.Sprintf("line_items[%d]", idx)
	form.Set(prefix+"[price_data][currency]", strings.ToLower(currency))
	form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(unitPrice, 10))
	form.Set(prefix+"[price_data][product_data][name]", name)
	form.Set(prefix+"[quantity]", strconv.Itoa(quantity))
}

func (p *stripeProvider) createSession(ctx context.Context, form url.Values, meta map[string]string, baseURL string) (*domain.CheckoutSession, error) {
	if p.secretKey == "" {
		return nil, fmt.Errorf("%w: missing stripe credentials", domain.ErrProviderUnconfigured)
	}
	form.Set("mode", "payment")
	form.Set("client_reference_id", uuid.New().String())
	form.Set("success_url", baseURL+"/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", baseURL+"/checkout/cancel")
	for k, v := range meta {
		form.Set("metadata["+k+"]", v)
	}

	var session stripeSession
	if err := p.call(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()), &session); err != nil {
		return nil, err
	}
	return &domain.CheckoutSession{
		ID:            session.ID,
		URL:           session.URL,
		PaymentStatus: domain.PaymentStatusUnpaid,
	}, nil
}

func (p *stripeProvider) RetrieveSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	if p.secretKey == "" {
		return nil, fmt.Errorf("%w: missing stripe credentials", domain.ErrProviderUnconfigured)
	}
	var session stripeSession
	if err := p.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(session.Metadata)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &domain.CheckoutSession{
		ID:               session.ID,
		URL:              session.URL,
		PaymentStatus:    mapStripeStatus(session.PaymentStatus),
		PaymentReference: session.PaymentIntent,
		Metadata:         meta,
	}, nil
}

func mapStripeStatus(s string) domain.PaymentStatus {
	switch s {
	case "paid", "no_payment_required":
		return domain.PaymentStatusPaid
	case "unpaid":
		return domain.PaymentStatusUnpaid
	default:
		return domain.PaymentStatusFailed
	}
}

// VerifyWebhookSignature checks a Stripe-style "t=<ts>,v1=<hex>" header:
// HMAC-SHA256 over "<ts>.<payload>" with the webhook secret, compared in
// constant time, after bounding the timestamp to the tolerance window.
func (p *stripeProvider) VerifyWebhookSignature(body []byte, signatureHeader string) domain.WebhookVerification {
	ts, sigs, ok := parseStripeHeader(signatureHeader)
	if !ok {
		return reject(domain.WebhookFailureInvalidHeader, "Invalid signature header format")
	}
	if p.webhookSecret == "" {
		return reject(domain.WebhookFailureSecretMissing, "Webhook secret not configured")
	}
	age := p.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > p.tolerance {
		return reject(domain.WebhookFailureTimestamp, "Timestamp outside tolerance window")
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	matched := false
	for _, sig := range sigs {
		raw, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(raw, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return reject(domain.WebhookFailureSignature, "Signature verification failed")
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
		return reject(domain.WebhookFailureInvalidPayload, "Invalid JSON payload")
	}
	return domain.WebhookVerification{Valid: true, Event: &event}
}

// parseStripeHeader splits "t=<ts>,v1=<hex>[,v1=<hex>...]" into the
// timestamp and candidate signatures.
func parseStripeHeader(header string) (int64, []string, bool) {
	var ts int64
	var haveTS bool
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, false
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, false
			}
			ts = parsed
			haveTS = true
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if !haveTS || len(sigs) == 0 {
		return 0, nil, false
	}
	return ts, sigs, true
}

// stripePaymentIntent is the subset of Stripe's payment intent we read for
// refunds.
type stripePaymentIntent struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
}

// RefundPayment looks the original amount up from Stripe and refunds it in
// full. The locally known amount is never trusted.
func (p *stripeProvider) RefundPayment(ctx context.Context, paymentReference string) bool {
	if p.secretKey == "" || paymentReference == "" {
		return false
	}
	var intent stripePaymentIntent
	if err := p.call(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(paymentReference), nil, &intent); err != nil {
		return false
	}
	form := url.Values{}
	form.Set("payment_intent", intent.ID)
	form.Set("amount", strconv.FormatInt(intent.Amount, 10))
	var refund struct {
		ID string `json:"id"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/refunds", strings.NewReader(form.Encode()), &refund); err != nil {
		return false
	}
	return refund.ID != ""
}

// call performs one authenticated Stripe API request and decodes the JSON
// response into out. Non-2xx responses surface as ErrProviderRejected with
// only the sanitized error type and code.
func (p *stripeProvider) call(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: stripe unreachable", domain.ErrProviderRejected)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr stripeError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%w: stripe status %d type=%s code=%s",
			domain.ErrProviderRejected, resp.StatusCode, apiErr.Error.Type, apiErr.Error.Code)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}

func reject(code domain.WebhookFailureCode, message string) domain.WebhookVerification {
	return domain.WebhookVerification{Valid: false, Code: code, Message: message}
}
