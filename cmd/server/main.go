package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"ticketbooth/config"
	_ "ticketbooth/docs"
	"ticketbooth/internal/adapters/auth"
	"ticketbooth/internal/adapters/email"
	"ticketbooth/internal/adapters/fieldcrypt"
	"ticketbooth/internal/adapters/payment"
	delivery "ticketbooth/internal/delivery/http"
	"ticketbooth/internal/delivery/http/controllers"
	"ticketbooth/internal/delivery/http/middleware"
	"ticketbooth/internal/repository/postgres"
	"ticketbooth/internal/services"
)

// @title ticketbooth API
// @version 1.0
// @description Event ticket reservation and payment consistency service.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	issueToken := flag.String("issue-admin-token", "", "print an admin bearer token for the given subject and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := config.NewLogger()

	issuer, verifier := auth.NewJWT(cfg.AdminJWTSecret)
	if *issueToken != "" {
		token, err := issuer.Issue(*issueToken, []string{"admin"}, 24*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Error("ping database", "err", err)
		os.Exit(1)
	}

	cipher, err := fieldcrypt.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("field encryption key", "err", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(db)
	attendeeRepo := postgres.NewAttendeeRepository(db, cipher)
	fulfillmentRepo := postgres.NewFulfillmentRepository(db, cipher)

	providers := payment.NewCache(func() payment.Config {
		return payment.Config{
			Active: cfg.ActiveProvider,
			Stripe: payment.StripeOptions{
				SecretKey:     cfg.Stripe.SecretKey,
				WebhookSecret: cfg.Stripe.WebhookSecret,
				Tolerance:     cfg.WebhookTolerance,
			},
			Square: payment.SquareOptions{
				AccessToken:     cfg.Square.AccessToken,
				LocationID:      cfg.Square.LocationID,
				WebhookSecret:   cfg.Square.WebhookSecret,
				NotificationURL: cfg.Square.NotificationURL,
				Sandbox:         cfg.Square.Environment != "production",
			},
		}
	})

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Mailer.Provider,
		FromAddress: cfg.Mailer.FromAddress,
		FromName:    cfg.Mailer.FromName,
		SES: email.SESConfig{
			Region:          cfg.Mailer.SESRegion,
			AccessKeyID:     cfg.Mailer.SESAccessKeyID,
			SecretAccessKey: cfg.Mailer.SESSecretAccessKey,
		},
	})
	if err != nil {
		logger.Error("mailer", "err", err)
		os.Exit(1)
	}
	emailService := services.NewEmailService(mailer)

	bookingService := services.NewBookingService(eventRepo, attendeeRepo, emailService, logger)
	checkoutService := services.NewCheckoutService(eventRepo, attendeeRepo, fulfillmentRepo, providers, emailService, cfg.BaseURL, logger)

	mux := delivery.NewRouter(
		controllers.NewBookingController(logger, bookingService),
		controllers.NewCheckoutController(logger, checkoutService),
		controllers.NewWebhookController(logger, checkoutService),
		controllers.NewAdminController(logger, checkoutService),
		middleware.RequireAdmin(verifier, logger),
	)

	handler := middleware.LoggingMiddleware(logger, middleware.CORS(cfg.CORSAllowedOrigins, mux))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "port", cfg.Port, "provider", cfg.ActiveProvider, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
