package controllers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookController_HandleStripe(t *testing.T) {
	tests := []struct {
		name        string
		svc         *mockCheckoutService
		wantStatus  int
		wantErrCode string
	}{
		{
			name:       "fulfilled",
			svc:        &mockCheckoutService{outcome: &domain.FinalizeOutcome{SessionID: "cs_1", PaymentStatus: domain.PaymentStatusPaid}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate delivery still acks",
			svc:        &mockCheckoutService{outcome: &domain.FinalizeOutcome{SessionID: "cs_1", AlreadyProcessed: true}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "capacity lost still acks",
			svc:        &mockCheckoutService{outcome: &domain.FinalizeOutcome{SessionID: "cs_1", CapacityLost: true}},
			wantStatus: http.StatusOK,
		},
		{
			name:        "invalid signature",
			svc:         &mockCheckoutService{webhookErr: fmt.Errorf("%w: signature mismatch", domain.ErrWebhookRejected)},
			wantStatus:  http.StatusBadRequest,
			wantErrCode: helpers.ErrCodeWebhookRejected,
		},
		{
			name:        "internal failure lets the gateway retry",
			svc:         &mockCheckoutService{webhookErr: fmt.Errorf("db down")},
			wantStatus:  http.StatusInternalServerError,
			wantErrCode: helpers.ErrCodeInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewWebhookController(testLogger(), tt.svc)
			req := httptest.NewRequest(http.MethodPost, "http://test/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=123,v1=abc")
			rr := httptest.NewRecorder()

			ctrl.HandleStripe(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "stripe", tt.svc.gotProvider)
			assert.Equal(t, "t=123,v1=abc", tt.svc.gotSignature)
			assert.Equal(t, `{"id":"evt_1"}`, string(tt.svc.gotBody))
			envelope := decodeEnvelope(t, rr)
			if tt.wantErrCode != "" {
				require.NotNil(t, envelope.Error)
				assert.Equal(t, tt.wantErrCode, envelope.Error.Code)
				return
			}
			require.Nil(t, envelope.Error)
		})
	}
}

func TestWebhookController_HandleSquare(t *testing.T) {
	svc := &mockCheckoutService{outcome: &domain.FinalizeOutcome{SessionID: "ord_1", PaymentStatus: domain.PaymentStatusPaid}}
	ctrl := NewWebhookController(testLogger(), svc)
	req := httptest.NewRequest(http.MethodPost, "http://test/webhooks/square", strings.NewReader(`{"event_id":"evt_1"}`))
	req.Header.Set("x-square-hmacsha256-signature", "c2ln")
	rr := httptest.NewRecorder()

	ctrl.HandleSquare(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "square", svc.gotProvider)
	assert.Equal(t, "c2ln", svc.gotSignature)
}
