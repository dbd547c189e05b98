package calendar

import (
	"context"
	"time"

	"github.com/citaflow/booking-backend/internal/timerange"
)

// Credential carries a tenant-scoped calendar authorization. It is passed
// explicitly on every call; the OAuth handshake that produces it lives
// outside this service.
type Credential struct {
	AccessToken string
}

// EventDetails describes a calendar event to create or update.
type EventDetails struct {
	Summary     string
	Description string
	Range       timerange.TimeRange
	Attendees   []string
}

// Client is the external calendar collaborator. Only free/busy reads and
// event CRUD are consumed here.
type Client interface {
	GetFreeBusy(ctx context.Context, cred Credential, calendarID string, from, to time.Time) ([]timerange.TimeRange, error)
	CreateEvent(ctx context.Context, cred Credential, calendarID string, details EventDetails) (string, error)
	UpdateEvent(ctx context.Context, cred Credential, calendarID, eventID string, details EventDetails) error
	DeleteEvent(ctx context.Context, cred Credential, calendarID, eventID string) error
}
