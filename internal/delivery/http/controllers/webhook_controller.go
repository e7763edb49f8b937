package controllers

import (
	"io"
	"log/slog"
	"net/http"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/domain"
)

// maxWebhookBody caps webhook payload reads. Both gateways send far
// smaller events.
const maxWebhookBody = 1 << 20

// WebhookAck is the acknowledgment body returned for accepted webhooks.
type WebhookAck struct {
	Received         bool `json:"received"`
	AlreadyProcessed bool `json:"already_processed,omitempty"`
	CapacityLost     bool `json:"capacity_lost,omitempty"`
}

type WebhookController struct {
	Logger  *slog.Logger
	Service domain.CheckoutService
}

func NewWebhookController(logger *slog.Logger, svc domain.CheckoutService) *WebhookController {
	return &WebhookController{
		Logger:  logger,
		Service: svc,
	}
}

// HandleStripe godoc
// @Summary Stripe webhook endpoint
// @Description Verifies the Stripe-Signature header and finalizes completed checkout sessions. Duplicate deliveries and irrelevant event types are acknowledged without side effects; invalid signatures get 400 so misconfigured endpoints surface in the gateway dashboard.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} controllers.WebhookAck
// @Failure 400 {object} helpers.APIResponse "error.code: webhook_rejected"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /webhooks/stripe [post]
func (c *WebhookController) HandleStripe(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, "stripe", r.Header.Get("Stripe-Signature"))
}

// HandleSquare godoc
// @Summary Square webhook endpoint
// @Description Verifies the x-square-hmacsha256-signature header and finalizes completed payments by their order id. Same acknowledgment semantics as the Stripe endpoint.
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} controllers.WebhookAck
// @Failure 400 {object} helpers.APIResponse "error.code: webhook_rejected"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /webhooks/square [post]
func (c *WebhookController) HandleSquare(w http.ResponseWriter, r *http.Request) {
	c.handle(w, r, "square", r.Header.Get("x-square-hmacsha256-signature"))
}

func (c *WebhookController) handle(w http.ResponseWriter, r *http.Request, providerName, signature string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "unreadable body")
		return
	}
	outcome, err := c.Service.HandleWebhook(r.Context(), providerName, body, signature)
	if err != nil {
		c.Logger.WarnContext(r.Context(), "webhook rejected", "provider", providerName, "err", err)
		writeDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, WebhookAck{
		Received:         true,
		AlreadyProcessed: outcome.AlreadyProcessed,
		CapacityLost:     outcome.CapacityLost,
	})
}
