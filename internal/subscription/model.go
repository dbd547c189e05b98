package subscription

import (
	"strings"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound = apperror.NotFound("subscription not found")
)

// ReferencePrefix marks payment references that belong to platform
// subscription billing rather than customer bookings.
const ReferencePrefix = "sub-"

// IsSubscriptionReference reports whether a payment reference should be
// routed to subscription reconciliation.
func IsSubscriptionReference(reference string) bool {
	return strings.HasPrefix(reference, ReferencePrefix)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription bills a tenant for platform access. Reference follows the
// same idempotency-key contract as booking payments.
type Subscription struct {
	ID               string
	TenantID         string
	Reference        string
	Plan             string
	Status           Status
	CurrentPeriodEnd time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
