package payment

import (
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
)

var (
	ErrNotFound         = apperror.NotFound("payment not found")
	ErrInvalidSignature = apperror.Unauthorized("webhook signature mismatch")
	ErrMalformedPayload = apperror.Validation("malformed webhook payload")
	ErrUnknownProvider  = apperror.Validation("unknown payment provider")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusError    Status = "error"
)

// Payment correlates one checkout attempt to one provider webhook stream.
// Reference is the global idempotency key: it maps to exactly one booking for
// its lifetime, and status updates keyed by it are overwrites, so webhook
// redeliveries are safe.
type Payment struct {
	ID          string
	TenantID    string
	BookingID   string
	Provider    string
	Reference   string
	AmountCents int64
	Currency    string
	Status      Status
	RawPayload  []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MapProviderStatus converts a provider transaction status into the internal
// enum. Anything unrecognized stays pending; the provider will redeliver.
func MapProviderStatus(s string) Status {
	switch s {
	case "APPROVED", "approved":
		return StatusApproved
	case "DECLINED", "declined", "VOIDED", "voided":
		return StatusDeclined
	case "ERROR", "error":
		return StatusError
	default:
		return StatusPending
	}
}
