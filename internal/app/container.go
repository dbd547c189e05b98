package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/api"
	"github.com/citaflow/booking-backend/internal/availability"
	"github.com/citaflow/booking-backend/internal/booking"
	"github.com/citaflow/booking-backend/internal/calendar"
	"github.com/citaflow/booking-backend/internal/callback"
	"github.com/citaflow/booking-backend/internal/config"
	"github.com/citaflow/booking-backend/internal/hold"
	"github.com/citaflow/booking-backend/internal/notification"
	"github.com/citaflow/booking-backend/internal/offering"
	"github.com/citaflow/booking-backend/internal/payment"
	"github.com/citaflow/booking-backend/internal/pkg/background"
	"github.com/citaflow/booking-backend/internal/pkg/retry"
	"github.com/citaflow/booking-backend/internal/professional"
	"github.com/citaflow/booking-backend/internal/subscription"
	"github.com/citaflow/booking-backend/internal/tenant"
)

// Container holds the initialized components that are needed externally.
type Container struct {
	Router      *gin.Engine
	HoldService hold.Service
	Background  *background.Group
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) *Container {
	// Shared Components
	bg := background.NewGroup(log, cfg.TaskTimeout)
	cal := calendar.NewHTTPClient(cfg.CalendarAPIURL)

	var mailer notification.Mailer = notification.NopMailer{}
	if cfg.SMTPAddr != "" {
		mailer = notification.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	providers := payment.NewProviders(
		payment.NewWompi(cfg.WompiCheckoutURL, cfg.WompiAPIURL),
		payment.NewPayU(cfg.PayUCheckoutURL, cfg.PayUAPIURL),
	)

	// Tenant / Catalog Modules
	tenantRepo := tenant.NewPgxRepository(pool)
	proRepo := professional.NewPgxRepository(pool)
	offRepo := offering.NewPgxRepository(pool)

	// Hold Module
	holdRepo := hold.NewPgxRepository(pool)
	holdService := hold.NewService(holdRepo, proRepo, cfg.HoldTTL, log)

	// Callback Module
	callbackRepo := callback.NewPgxRepository(pool)
	retryPolicy := retry.LinearBackoff(cfg.WebhookRetryAttempts, cfg.WebhookRetryDelay)
	dispatcher := callback.NewDispatcher(callbackRepo, nil, retryPolicy, log)

	// Booking Module
	bookingRepo := booking.NewPgxRepository(pool)
	bookingService := booking.NewService(
		bookingRepo, tenantRepo, proRepo, offRepo,
		providers, cal, mailer, dispatcher, bg, log,
	)
	// The dispatcher confirms bookings once the merchant acknowledges
	// booking.created, so it needs the service it was just injected into.
	dispatcher.SetAcknowledger(bookingService)

	// Availability Module
	availabilityService := availability.NewService(
		bookingRepo, holdRepo, proRepo, offRepo, tenantRepo, cal, log,
	)

	// Subscription Module
	subRepo := subscription.NewPgxRepository(pool)
	subService := subscription.NewService(subRepo, tenantRepo, log)

	// Payment Webhook Processing
	paymentRepo := payment.NewPgxRepository(pool)
	processor := payment.NewProcessor(
		paymentRepo, tenantRepo, providers, bookingService, subService,
		cfg.PlatformWebhookSecret, log,
	)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction,
		ProdOrigins:         cfg.ProdOrigins,
		AvailabilityService: availabilityService,
		HoldService:         holdService,
		BookingService:      bookingService,
		PaymentProcessor:    processor,
	})

	return &Container{
		Router:      router,
		HoldService: holdService,
		Background:  bg,
	}
}
