package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticketbooth/internal/delivery/http/helpers"
	"ticketbooth/internal/domain"
)

// BookingRequest is the request body for POST /bookings (free events only).
type BookingRequest struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Quantity int    `json:"quantity"`
	Date     string `json:"date"`
}

// Validate implements Validator.
func (b BookingRequest) Validate() []string {
	return b.intent().Validate()
}

func (b BookingRequest) intent() *domain.ReservationIntent {
	return &domain.ReservationIntent{
		EventID:  b.EventID,
		Name:     b.Name,
		Email:    b.Email,
		Phone:    b.Phone,
		Quantity: b.Quantity,
		Date:     b.Date,
	}
}

// BookingSuccessResponse is the success response envelope for POST /bookings (201).
type BookingSuccessResponse struct {
	Data  *domain.Attendee  `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// AvailabilitySuccessResponse is the success response envelope for GET /events/{eventID}/availability (200).
type AvailabilitySuccessResponse struct {
	Data  *domain.Availability `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

type BookingController struct {
	Logger  *slog.Logger
	Service domain.BookingService
}

func NewBookingController(logger *slog.Logger, svc domain.BookingService) *BookingController {
	return &BookingController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateBooking godoc
// @Summary Book a free event
// @Description Reserves tickets for a free event. Capacity is checked and consumed atomically; when the event is full the request fails with 409 and nothing is reserved. Paid events must go through POST /checkout.
// @Tags bookings
// @Accept json
// @Produce json
// @Param booking body BookingRequest true "Booking data"
// @Success 201 {object} controllers.BookingSuccessResponse "data contains the created attendee"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: capacity_exceeded or booking_closed"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /bookings [post]
func (c *BookingController) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req BookingRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	attendee, err := c.Service.BookFree(r.Context(), req.intent())
	if err != nil {
		writeDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, attendee)
}

// GetAvailability godoc
// @Summary Get remaining capacity for an event
// @Description Returns the remaining capacity for an event. For date-scoped events pass the date query parameter; remaining is null for unlimited-capacity events. The answer is advisory: the atomic check at booking time is authoritative.
// @Tags bookings
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Param date query string false "Booking date (YYYY-MM-DD) for date-scoped events"
// @Success 200 {object} controllers.AvailabilitySuccessResponse "data contains the availability"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/availability [get]
func (c *BookingController) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	availability, err := c.Service.Availability(r.Context(), eventID, r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, availability)
}

// writeDomainError maps domain sentinel errors onto the API error envelope.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMetadataOverflow):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "event not found")
	case errors.Is(err, domain.ErrCapacityExceeded):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeCapacityExceeded, "not enough capacity left")
	case errors.Is(err, domain.ErrBookingClosed):
		helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeBookingClosed, "bookings for this event are closed")
	case errors.Is(err, domain.ErrProviderUnconfigured):
		helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodePaymentUnavailable, "payment is not configured")
	case errors.Is(err, domain.ErrProviderRejected):
		logger.ErrorContext(r.Context(), "gateway call failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusBadGateway, helpers.ErrCodePaymentUnavailable, "payment provider rejected the request")
	case errors.Is(err, domain.ErrWebhookRejected):
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeWebhookRejected, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "internal error")
	}
}
