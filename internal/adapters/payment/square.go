package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"ticketbooth/internal/domain"
)

const (
	squareAPIBase        = "https://connect.squareup.com"
	squareSandboxAPIBase = "https://connect.squareupsandbox.com"
)

// SquareOptions configures the Square adapter.
type SquareOptions struct {
	AccessToken   string
	LocationID    string
	WebhookSecret string
	// NotificationURL is the registered webhook URL; Square signs
	// notificationURL+payload, so verification cannot run without it.
	NotificationURL string
	// Sandbox selects the sandbox endpoint.
	Sandbox bool
	// APIBase overrides the endpoint entirely, for tests.
	APIBase    string
	HTTPClient *http.Client
}

type squareProvider struct {
	accessToken     string
	locationID      string
	webhookSecret   string
	notificationURL string
	apiBase         string
	client          *http.Client
}

// NewSquare returns a PaymentProvider backed by Square's Payment Links and
// Orders APIs. Sessions are identified by the Square order id, which the
// payment webhooks reference.
func NewSquare(opts SquareOptions) domain.PaymentProvider {
	p := &squareProvider{
		accessToken:     opts.AccessToken,
		locationID:      opts.LocationID,
		webhookSecret:   opts.WebhookSecret,
		notificationURL: opts.NotificationURL,
		apiBase:         opts.APIBase,
		client:          opts.HTTPClient,
	}
	if p.apiBase == "" {
		if opts.Sandbox {
			p.apiBase = squareSandboxAPIBase
		} else {
			p.apiBase = squareAPIBase
		}
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

func (p *squareProvider) Name() string { return "square" }

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareLineItem struct {
	Name           string      `json:"name"`
	Quantity       string      `json:"quantity"`
	BasePriceMoney squareMoney `json:"base_price_money"`
}

type squarePaymentLinkRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Order          struct {
		LocationID string            `json:"location_id"`
		LineItems  []squareLineItem  `json:"line_items"`
		Metadata   map[string]string `json:"metadata"`
	} `json:"order"`
	CheckoutOptions struct {
		RedirectURL string `json:"redirect_url"`
	} `json:"checkout_options"`
}

type squarePaymentLinkResponse struct {
	PaymentLink struct {
		ID      string `json:"id"`
		URL     string `json:"url"`
		OrderID string `json:"order_id"`
	} `json:"payment_link"`
}

func (p *squareProvider) CreateCheckoutSession(ctx context.Context, event *domain.Event, intent *domain.ReservationIntent, baseURL string) (*domain.CheckoutSession, error) {
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
	items := []squareLineItem{{
		Name:           event.Name,
		Quantity:       strconv.Itoa(intent.Quantity),
		BasePriceMoney: squareMoney{Amount: *event.PriceCents, Currency: event.Currency},
	}}
	return p.createSession(ctx, items, meta, baseURL)
}

func (p *squareProvider) CreateMultiCheckoutSession(ctx context.Context, intent *domain.ReservationIntent, priced []domain.PricedItem, baseURL string) (*domain.CheckoutSession, error) {
	if len(priced) == 0 {
		return nil, fmt.Errorf("%w: empty basket", domain.ErrProviderUnconfigured)
	}
	basket := make([]domain.BasketItem, len(priced))
	items := make([]squareLineItem, len(priced))
	for i, it := range priced {
		basket[i] = domain.BasketItem{EventID: it.EventID, Quantity: it.Quantity}
		items[i] = squareLineItem{
			Name:           it.Name,
			Quantity:       strconv.Itoa(it.Quantity),
			BasePriceMoney: squareMoney{Amount: it.UnitPriceCents, Currency: it.Currency},
		}
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
	return p.createSession(ctx, items, meta, baseURL)
}

func (p *squareProvider) createSession(ctx context.Context, items []squareLineItem, meta map[string]string, baseURL string) (*domain.CheckoutSession, error) {
	if p.accessToken == "" || p.locationID == "" {
		return nil, fmt.Errorf("%w: missing square credentials", domain.ErrProviderUnconfigured)
	}
	reqBody := squarePaymentLinkRequest{IdempotencyKey: uuid.New().String()}
	reqBody.Order.LocationID = p.locationID
	reqBody.Order.LineItems = items
	reqBody.Order.Metadata = meta
	reqBody.CheckoutOptions.RedirectURL = baseURL + "/checkout/success"

	var resp squarePaymentLinkResponse
	if err := p.call(ctx, http.MethodPost, "/v2/online-checkout/payment-links", reqBody, &resp); err != nil {
		return nil, err
	}
	return &domain.CheckoutSession{
		ID:            resp.PaymentLink.OrderID,
		URL:           resp.PaymentLink.URL,
		PaymentStatus: domain.PaymentStatusUnpaid,
	}, nil
}

type squareOrderResponse struct {
	Order struct {
		ID       string            `json:"id"`
		State    string            `json:"state"`
		Metadata map[string]string `json:"metadata"`
		Tenders  []struct {
			ID string `json:"id"`
		} `json:"tenders"`
	} `json:"order"`
}

func (p *squareProvider) RetrieveSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	if p.accessToken == "" {
		return nil, fmt.Errorf("%w: missing square credentials", domain.ErrProviderUnconfigured)
	}
	var resp squareOrderResponse
	if err := p.call(ctx, http.MethodGet, "/v2/orders/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return nil, err
	}
	meta, err := decodeMetadata(resp.Order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", sessionID, err)
	}
	session := &domain.CheckoutSession{
		ID:            resp.Order.ID,
		PaymentStatus: mapSquareState(resp.Order.State),
		Metadata:      meta,
	}
	if len(resp.Order.Tenders) > 0 {
		session.PaymentReference = resp.Order.Tenders[0].ID
	}
	return session, nil
}

func mapSquareState(state string) domain.PaymentStatus {
	switch state {
	case "COMPLETED":
		return domain.PaymentStatusPaid
	case "CANCELED":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusUnpaid
	}
}

// VerifyWebhookSignature checks Square's scheme: base64 HMAC-SHA256 over
// the registered notification URL concatenated with the raw payload.
// Square's header carries no timestamp, so replay exposure is bounded by
// the idempotency tracker instead of a tolerance window.
func (p *squareProvider) VerifyWebhookSignature(body []byte, signatureHeader string) domain.WebhookVerification {
	if signatureHeader == "" {
		return reject(domain.WebhookFailureInvalidHeader, "Invalid signature header format")
	}
	provided, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return reject(domain.WebhookFailureInvalidHeader, "Invalid signature header format")
	}
	if p.webhookSecret == "" {
		return reject(domain.WebhookFailureSecretMissing, "Webhook secret not configured")
	}
	if p.notificationURL == "" {
		return reject(domain.WebhookFailureSecretMissing, "Notification URL required for verification")
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(p.notificationURL))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return reject(domain.WebhookFailureSignature, "Signature verification failed")
	}

	var envelope struct {
		EventID string          `json:"event_id"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Type == "" {
		return reject(domain.WebhookFailureInvalidPayload, "Invalid JSON payload")
	}
	return domain.WebhookVerification{Valid: true, Event: &domain.WebhookEvent{
		ID:   envelope.EventID,
		Type: envelope.Type,
		Data: envelope.Data,
	}}
}

type squarePaymentResponse struct {
	Payment struct {
		ID          string      `json:"id"`
		AmountMoney squareMoney `json:"amount_money"`
	} `json:"payment"`
}

// RefundPayment looks the payment up and refunds its full amount.
func (p *squareProvider) RefundPayment(ctx context.Context, paymentReference string) bool {
	if p.accessToken == "" || paymentReference == "" {
		return false
	}
	var payment squarePaymentResponse
	if err := p.call(ctx, http.MethodGet, "/v2/payments/"+url.PathEscape(paymentReference), nil, &payment); err != nil {
		return false
	}
	refundReq := map[string]any{
		"idempotency_key": uuid.New().String(),
		"payment_id":      payment.Payment.ID,
		"amount_money":    payment.Payment.AmountMoney,
	}
	var refundResp struct {
		Refund struct {
			ID string `json:"id"`
		} `json:"refund"`
	}
	if err := p.call(ctx, http.MethodPost, "/v2/refunds", refundReq, &refundResp); err != nil {
		return false
	}
	return refundResp.Refund.ID != ""
}

// call performs one authenticated Square API request with a JSON body and
// decodes the JSON response into out. Non-2xx responses surface as
// ErrProviderRejected carrying only the sanitized error category/code.
func (p *squareProvider) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: square unreachable", domain.ErrProviderRejected)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Errors []struct {
				Category string `json:"category"`
				Code     string `json:"code"`
			} `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		category, code := "", ""
		if len(apiErr.Errors) > 0 {
			category, code = apiErr.Errors[0].Category, apiErr.Errors[0].Code
		}
		return fmt.Errorf("%w: square status %d category=%s code=%s",
			domain.ErrProviderRejected, resp.StatusCode, category, code)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode square response: %w", err)
	}
	return nil
}
