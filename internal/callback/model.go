package callback

import "time"

// Event types delivered to merchant callback endpoints.
const (
	EventBookingCreated     = "booking.created"
	EventBookingCancelled   = "booking.cancelled"
	EventBookingRescheduled = "booking.rescheduled"
)

// Event is one outbound notification. Body carries the merchant-facing JSON
// sections; the dispatcher adds the signature block before posting.
type Event struct {
	Type      string
	BookingID string
	TenantID  string
	Body      map[string]any
}

// Target is where and how to deliver: the tenant's endpoint and its shared
// secret.
type Target struct {
	URL    string
	Secret string
}

// Log is an append-only audit row for every delivery attempt outcome, success
// and failure alike. StatusCode 0 means the request never got an HTTP
// response.
type Log struct {
	ID         string
	BookingID  string
	URL        string
	Payload    []byte
	StatusCode int
	Success    bool
	Error      string
	CreatedAt  time.Time
}
