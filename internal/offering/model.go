package offering

import (
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound = apperror.NotFound("service not found")
)

// Offering is a bookable service: what is sold, for how long, at what price.
type Offering struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	PriceCents      int64
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
