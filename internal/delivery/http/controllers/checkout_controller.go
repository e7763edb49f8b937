package controllers

import (
	"log/slog"
	"net/http"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/domain"
)

// CheckoutItem is one entry of a multi-event checkout request.
type CheckoutItem struct {
	EventID  string `json:"event_id"`
	Quantity int    `json:"quantity"`
}

// CheckoutRequest is the request body for POST /checkout. Either event_id
// and quantity (single event) or items (basket) must be set, not both.
type CheckoutRequest struct {
	EventID  string         `json:"event_id"`
	Items    []CheckoutItem `json:"items"`
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Quantity int            `json:"quantity"`
	Date     string         `json:"date"`
}

// Validate implements Validator.
func (c CheckoutRequest) Validate() []string {
	if len(c.Items) > 0 && c.EventID != "" {
		return []string{"set either event_id or items, not both"}
	}
	return c.intent().Validate()
}

func (c CheckoutRequest) intent() *domain.ReservationIntent {
	intent := &domain.ReservationIntent{
		EventID:  c.EventID,
		Name:     c.Name,
		Email:    c.Email,
		Phone:    c.Phone,
		Quantity: c.Quantity,
		Date:     c.Date,
	}
	for _, item := range c.Items {
		intent.Items = append(intent.Items, domain.BasketItem{EventID: item.EventID, Quantity: item.Quantity})
	}
	return intent
}

// CheckoutSuccessResponse is the success response envelope for POST /checkout (201).
type CheckoutSuccessResponse struct {
	Data  *domain.CheckoutResult `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

// SessionSuccessResponse is the success response envelope for GET /checkout/sessions/{sessionID} (200).
type SessionSuccessResponse struct {
	Data  *domain.FinalizeOutcome `json:"data"`
	Error *helpers.APIError       `json:"error"`
}

type CheckoutController struct {
	Logger  *slog.Logger
	Service domain.CheckoutService
}

func NewCheckoutController(logger *slog.Logger, svc domain.CheckoutService) *CheckoutController {
	return &CheckoutController{
		Logger:  logger,
		Service: svc,
	}
}

// StartCheckout godoc
// @Summary Start a paid checkout
// @Description Opens a payment session for one event or a basket of events and returns the provider's checkout URL. Nothing is reserved until the payment completes; capacity is only advisory-checked here.
// @Tags checkout
// @Accept json
// @Produce json
// @Param checkout body CheckoutRequest true "Checkout data"
// @Success 201 {object} controllers.CheckoutSuccessResponse "data contains the session id and checkout URL"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: capacity_exceeded or booking_closed"
// @Failure 502 {object} helpers.APIResponse "error.code: payment_unavailable"
// @Failure 503 {object} helpers.APIResponse "error.code: payment_unavailable"
// @Router /checkout [post]
func (c *CheckoutController) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := c.Service.StartCheckout(r.Context(), req.intent())
	if err != nil {
		writeDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, result)
}

// GetSession godoc
// @Summary Poll a checkout session
// @Description Returns the payment status of a checkout session and, when paid, finalizes the reservation through the same idempotent path as the webhook. The success page polls this until payment_status is paid.
// @Tags checkout
// @Produce json
// @Param sessionID path string true "Provider session ID"
// @Param provider query string false "Gateway the session was opened under (defaults to the active one)"
// @Success 200 {object} controllers.SessionSuccessResponse "data contains the session outcome"
// @Failure 502 {object} helpers.APIResponse "error.code: payment_unavailable"
// @Failure 503 {object} helpers.APIResponse "error.code: payment_unavailable"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /checkout/sessions/{sessionID} [get]
func (c *CheckoutController) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	outcome, err := c.Service.PollSession(r.Context(), r.URL.Query().Get("provider"), sessionID)
	if err != nil {
		writeDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, outcome)
}
