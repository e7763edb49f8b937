package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"ticketbooth/internal/delivery/http/controllers"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	booking *controllers.BookingController,
	checkout *controllers.CheckoutController,
	webhooks *controllers.WebhookController,
	admin *controllers.AdminController,
	requireAdmin func(http.HandlerFunc) http.HandlerFunc,
) *http.ServeMux {
	mux := http.NewServeMux()

	// Public booking routes
	mux.HandleFunc("GET /events/{eventID}/availability", booking.GetAvailability)
	mux.HandleFunc("POST /bookings", booking.CreateBooking)

	// Checkout
	mux.HandleFunc("POST /checkout", checkout.StartCheckout)
	mux.HandleFunc("GET /checkout/sessions/{sessionID}", checkout.GetSession)

	// Gateway webhooks
	mux.HandleFunc("POST /webhooks/stripe", webhooks.HandleStripe)
	mux.HandleFunc("POST /webhooks/square", webhooks.HandleSquare)

	// Operator routes
	mux.HandleFunc("POST /admin/refunds", requireAdmin(admin.CreateRefund))
	mux.HandleFunc("GET /admin/fulfillment-failures", requireAdmin(admin.ListFulfillmentFailures))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
