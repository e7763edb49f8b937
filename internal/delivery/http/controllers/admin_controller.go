package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/delivery/http/middleware"
	"ticketbooth/internal/domain"
)

// RefundRequest is the request body for POST /admin/refunds.
type RefundRequest struct {
	PaymentReference string `json:"payment_reference"`
	SessionID        string `json:"session_id"`
	Provider         string `json:"provider"`
}

// Validate implements Validator.
func (r RefundRequest) Validate() []string {
	if strings.TrimSpace(r.PaymentReference) == "" {
		return []string{"payment_reference is required"}
	}
	return nil
}

// RefundResponse is the data payload for a processed refund.
type RefundResponse struct {
	PaymentReference string `json:"payment_reference"`
	Refunded         bool   `json:"refunded"`
}

// RefundSuccessResponse is the success response envelope for POST /admin/refunds (200).
type RefundSuccessResponse struct {
	Data  RefundResponse    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// FulfillmentFailureList is the data payload for GET /admin/fulfillment-failures.
type FulfillmentFailureList struct {
	Failures   []*domain.FulfillmentFailure `json:"failures"`
	Pagination helpers.PaginationMeta       `json:"pagination"`
}

// FulfillmentFailureListSuccessResponse is the success response envelope for GET /admin/fulfillment-failures (200).
type FulfillmentFailureListSuccessResponse struct {
	Data  FulfillmentFailureList `json:"data"`
	Error *helpers.APIError      `json:"error"`
}

type AdminController struct {
	Logger  *slog.Logger
	Service domain.CheckoutService
}

func NewAdminController(logger *slog.Logger, svc domain.CheckoutService) *AdminController {
	return &AdminController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateRefund godoc
// @Summary Refund a payment
// @Description Issues a full refund through the gateway named in the request, or the active one when omitted. Intended for reconciling fulfillment failures: the refund does not release or restore any reserved capacity.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param refund body RefundRequest true "Payment reference to refund"
// @Success 200 {object} controllers.RefundSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 502 {object} helpers.APIResponse "error.code: payment_unavailable"
// @Router /admin/refunds [post]
func (c *AdminController) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	subject, _ := middleware.AdminSubjectFromContext(r.Context())
	if !c.Service.Refund(r.Context(), req.Provider, req.PaymentReference) {
		c.Logger.WarnContext(r.Context(), "refund failed", "payment_reference", req.PaymentReference, "admin", subject)
		helpers.WriteJSONError(w, http.StatusBadGateway, helpers.ErrCodePaymentUnavailable, "refund failed")
		return
	}
	c.Logger.InfoContext(r.Context(), "refund issued", "payment_reference", req.PaymentReference, "session_id", req.SessionID, "admin", subject)
	helpers.WriteJSONSuccess(w, http.StatusOK, RefundResponse{PaymentReference: req.PaymentReference, Refunded: true})
}

// ListFulfillmentFailures godoc
// @Summary List fulfillment failures
// @Description Pages through paid sessions that could not be honored (capacity lost after payment), newest first. Each row waits for a manual refund; nothing retries automatically.
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.FulfillmentFailureListSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/fulfillment-failures [get]
func (c *AdminController) ListFulfillmentFailures(w http.ResponseWriter, r *http.Request) {
	params := helpers.ParsePagination(r)
	failures, total, err := c.Service.ListFulfillmentFailures(r.Context(), params)
	if err != nil {
		writeDomainError(w, r, c.Logger, err)
		return
	}
	if failures == nil {
		failures = []*domain.FulfillmentFailure{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, FulfillmentFailureList{
		Failures:   failures,
		Pagination: helpers.NewPaginationMeta(params.Page, params.PageSize, total),
	})
}
