package hold

import (
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/timerange"
)

var (
	ErrSlotBooked       = apperror.Conflict("time slot already booked")
	ErrSlotHeld         = apperror.Conflict("time slot held by another session")
	ErrInvalidTimeRange = apperror.Validation("start time must be before end time")
	ErrStartTimePast    = apperror.Validation("cannot hold a slot in the past")
	ErrProfessionalGone = apperror.NotFound("professional not found")
)

// DefaultTTL is how long a hold shields a slot while the shopper checks out.
// Holds are never renewed.
const DefaultTTL = 10 * time.Minute

// Hold is a short-lived exclusive claim on a professional's time slot, owned
// by exactly one shopper session. It dies by expiry, supersession, or a
// completed booking.
type Hold struct {
	ID             string
	ProfessionalID string
	ServiceID      string
	Range          timerange.TimeRange
	SessionID      string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Active reports whether the hold still blocks the slot at the given instant.
// Expiry is lazy: expired rows simply stop matching this predicate.
func (h *Hold) Active(now time.Time) bool {
	return h.ExpiresAt.After(now)
}
