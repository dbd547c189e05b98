package tenant

import (
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound = apperror.NotFound("tenant not found")
)

// PaymentProvider selects which checkout integration a tenant uses.
type PaymentProvider string

const (
	ProviderWompi PaymentProvider = "wompi"
	ProviderPayU  PaymentProvider = "payu"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Tenant is the merchant that owns bookings. Provider credentials and webhook
// secrets live here and are injected per call site, never held in process-wide
// state.
type Tenant struct {
	ID              string
	Name            string
	Plan            Plan
	PaymentProvider PaymentProvider
	ProviderPublic  string
	ProviderSecret  string
	WebhookSecret   string
	CallbackURL     string
	NotifyEmail     string
	CalendarToken   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
