package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ticketbooth/internal/domain"
)

const squareNotificationURL = "https://booking.example/webhooks/square"

func signSquare(secret, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSquare_CreateCheckoutSession(t *testing.T) {
	var gotReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/v2/online-checkout/payment-links", r.URL.Path)
		require.Equal(t, "Bearer sq0atp-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_link": map[string]string{
				"id":       "plink_1",
				"url":      "https://square.link/u/abc",
				"order_id": "order_1",
			},
		})
	}))
	defer server.Close()

	p := NewSquare(SquareOptions{AccessToken: "sq0atp-token", LocationID: "L123", APIBase: server.URL})
	session, err := p.CreateCheckoutSession(context.Background(), testEvent(), testIntent(), "https://booking.example")
	require.NoError(t, err)
	require.Equal(t, "order_1", session.ID)
	require.Equal(t, "https://square.link/u/abc", session.URL)

	require.NotEmpty(t, gotReq["idempotency_key"])
	order := gotReq["order"].(map[string]any)
	require.Equal(t, "L123", order["location_id"])
	lineItems := order["line_items"].([]any)
	require.Len(t, lineItems, 1)
	first := lineItems[0].(map[string]any)
	require.Equal(t, "Summer Workshop", first["name"])
	require.Equal(t, "2", first["quantity"])
	money := first["base_price_money"].(map[string]any)
	require.Equal(t, float64(1500), money["amount"])
	meta := order["metadata"].(map[string]any)
	require.Equal(t, "ev-1", meta["event_id"])
}

func TestSquare_CreateCheckoutSession_Unconfigured(t *testing.T) {
	p := NewSquare(SquareOptions{})
	_, err := p.CreateCheckoutSession(context.Background(), testEvent(), testIntent(), "https://booking.example")
	require.ErrorIs(t, err, domain.ErrProviderUnconfigured)

	free := testEvent()
	free.PriceCents = nil
	p = NewSquare(SquareOptions{AccessToken: "tok", LocationID: "L123"})
	_, err = p.CreateCheckoutSession(context.Background(), free, testIntent(), "https://booking.example")
	require.ErrorIs(t, err, domain.ErrProviderUnconfigured)
}

func TestSquare_RetrieveSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/orders/order_1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{
				"id":    "order_1",
				"state": "COMPLETED",
				"metadata": map[string]string{
					"event_id": "ev-1",
					"name":     "Alice",
					"email":    "alice@example.com",
					"quantity": "2",
				},
				"tenders": []map[string]string{{"id": "tender_1"}},
			},
		})
	}))
	defer server.Close()

	p := NewSquare(SquareOptions{AccessToken: "tok", LocationID: "L123", APIBase: server.URL})
	session, err := p.RetrieveSession(context.Background(), "order_1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, session.PaymentStatus)
	require.Equal(t, "tender_1", session.PaymentReference)
	require.Equal(t, "ev-1", session.Metadata.EventID)
}

func TestSquare_RetrieveSession_OpenOrderIsUnpaid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{
				"id":    "order_1",
				"state": "OPEN",
				"metadata": map[string]string{
					"event_id": "ev-1",
					"name":     "Alice",
					"email":    "alice@example.com",
					"quantity": "1",
				},
			},
		})
	}))
	defer server.Close()

	p := NewSquare(SquareOptions{AccessToken: "tok", APIBase: server.URL})
	session, err := p.RetrieveSession(context.Background(), "order_1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusUnpaid, session.PaymentStatus)
	require.Empty(t, session.PaymentReference)
}

func TestSquare_VerifyWebhookSignature(t *testing.T) {
	secret := "sq-webhook-key"
	body := []byte(`{"event_id":"sqevt_1","type":"payment.updated","data":{"object":{"payment":{"order_id":"order_1"}}}}`)

	newProvider := func() domain.PaymentProvider {
		return NewSquare(SquareOptions{
			AccessToken:     "tok",
			WebhookSecret:   secret,
			NotificationURL: squareNotificationURL,
		})
	}

	t.Run("valid", func(t *testing.T) {
		result := newProvider().VerifyWebhookSignature(body, signSquare(secret, squareNotificationURL, body))
		require.True(t, result.Valid)
		require.Equal(t, "sqevt_1", result.Event.ID)
		require.Equal(t, "payment.updated", result.Event.Type)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := signSquare(secret, squareNotificationURL, body)
		tampered := append([]byte(nil), body...)
		tampered[10] ^= 0x01
		result := newProvider().VerifyWebhookSignature(tampered, header)
		require.False(t, result.Valid)
		require.Equal(t, domain.WebhookFailureSignature, result.Code)
	})

	t.Run("wrong notification url", func(t *testing.T) {
		header := signSquare(secret, "https://other.example/webhooks/square", body)
		result := newProvider().VerifyWebhookSignature(body, header)
		require.False(t, result.Valid)
		require.Equal(t, domain.WebhookFailureSignature, result.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		result := newProvider().VerifyWebhookSignature(body, "")
		require.False(t, result.Valid)
		require.Equal(t, domain.WebhookFailureInvalidHeader, result.Code)
	})

	t.Run("secret missing", func(t *testing.T) {
		p := NewSquare(SquareOptions{AccessToken: "tok", NotificationURL: squareNotificationURL})
		result := p.VerifyWebhookSignature(body, signSquare(secret, squareNotificationURL, body))
		require.False(t, result.Valid)
		require.Equal(t, domain.WebhookFailureSecretMissing, result.Code)
		require.Equal(t, "Webhook secret not configured", result.Message)
	})

	t.Run("notification url missing", func(t *testing.T) {
		p := NewSquare(SquareOptions{AccessToken: "tok", WebhookSecret: secret})
		result := p.VerifyWebhookSignature(body, signSquare(secret, squareNotificationURL, body))
		require.False(t, result.Valid)
		require.Equal(t, "Notification URL required for verification", result.Message)
	})

	t.Run("invalid payload", func(t *testing.T) {
		broken := []byte("{oops")
		result := newProvider().VerifyWebhookSignature(broken, signSquare(secret, squareNotificationURL, broken))
		require.False(t, result.Valid)
		require.Equal(t, domain.WebhookFailureInvalidPayload, result.Code)
	})
}

func TestSquare_RefundPayment(t *testing.T) {
	var refundReq map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/v2/payments/tender_1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"payment": map[string]any{
					"id":           "tender_1",
					"amount_money": map[string]any{"amount": 2500, "currency": "EUR"},
				},
			})
		case r.Method == "POST" && r.URL.Path == "/v2/refunds":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&refundReq))
			_ = json.NewEncoder(w).Encode(map[string]any{"refund": map[string]string{"id": "ref_1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := NewSquare(SquareOptions{AccessToken: "tok", APIBase: server.URL})
	require.True(t, p.RefundPayment(context.Background(), "tender_1"))

	money := refundReq["amount_money"].(map[string]any)
	require.Equal(t, float64(2500), money["amount"])
	require.Equal(t, "tender_1", refundReq["payment_id"])
}

func TestSquare_RefundPayment_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":[{"category":"API_ERROR","code":"INTERNAL"}]}`))
	}))
	defer server.Close()

	p := NewSquare(SquareOptions{AccessToken: "tok", APIBase: server.URL})
	require.False(t, p.RefundPayment(context.Background(), "tender_1"))
	require.False(t, p.RefundPayment(context.Background(), ""))
}
