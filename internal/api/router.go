package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/citaflow/booking-backend/internal/availability"
	availabilityHttp "github.com/citaflow/booking-backend/internal/availability/http"
	"github.com/citaflow/booking-backend/internal/booking"
	bookingHttp "github.com/citaflow/booking-backend/internal/booking/http"
	"github.com/citaflow/booking-backend/internal/hold"
	holdHttp "github.com/citaflow/booking-backend/internal/hold/http"
	"github.com/citaflow/booking-backend/internal/payment"
	paymentHttp "github.com/citaflow/booking-backend/internal/payment/http"
)

// Config carries everything the router needs to assemble the HTTP surface.
type Config struct {
	IsProduction        bool
	ProdOrigins         string
	AvailabilityService availability.Service
	HoldService         hold.Service
	BookingService      booking.Service
	PaymentProcessor    *payment.Processor
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Event-Checksum"}
	r.Use(cors.New(corsConfig))

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	availabilityHandler := availabilityHttp.NewHandler(cfg.AvailabilityService)
	holdHandler := holdHttp.NewHandler(cfg.HoldService)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService)
	paymentHandler := paymentHttp.NewHandler(cfg.PaymentProcessor)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		availabilityHttp.RegisterRoutes(v1, availabilityHandler)
		holdHttp.RegisterRoutes(v1, holdHandler)
		bookingHttp.RegisterRoutes(v1, bookingHandler)
		paymentHttp.RegisterRoutes(v1, paymentHandler)
	}

	return r
}
