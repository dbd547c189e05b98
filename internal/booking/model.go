package booking

import (
	"fmt"
	"time"

	"github.com/citaflow/booking-backend/internal/pkg/apperror"
	"github.com/citaflow/booking-backend/internal/timerange"
)

var (
	ErrNotFound          = apperror.NotFound("booking not found")
	ErrTimeConflict      = apperror.Conflict("time slot already held or booked")
	ErrInvalidTimeRange  = apperror.Validation("start time must be before end time")
	ErrStartTimePast     = apperror.Validation("cannot book a slot in the past")
	ErrTermsNotAccepted  = apperror.Validation("terms must be accepted")
	ErrServiceNotFound   = apperror.NotFound("service not found")
	ErrInvalidToken      = apperror.Unauthorized("invalid token")
	ErrAlreadyCancelled  = apperror.Conflict("booking already cancelled")
	ErrAlreadyStarted    = apperror.Validation("booking has already started")
	ErrInvalidTransition = apperror.Conflict("invalid booking status transition")
)

func errDurationMismatch(minutes int) error {
	return apperror.Validation(fmt.Sprintf("slot must last exactly %d minutes", minutes))
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the states in which a booking still claims its slot.
var ActiveStatuses = []Status{StatusPending, StatusPaid, StatusConfirmed}

// Customer is the person who bought the appointment.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Booking is a paid appointment on a professional's calendar. Status only
// moves forward: pending -> paid -> confirmed, with pending and paid also
// able to reach cancelled. It never leaves cancelled, and rows are never
// hard-deleted here.
type Booking struct {
	ID                string
	TenantID          string
	LinkID            string
	ServiceID         string
	ProfessionalID    string
	Range             timerange.TimeRange
	Customer          Customer
	AcceptedTerms     bool
	Status            Status
	CancellationToken string
	RescheduleToken   string
	CalendarEventID   string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Filter struct {
	TenantID       string
	ProfessionalID string
	Status         string
	StartTime      *time.Time
	EndTime        *time.Time
	Page           int
	PageSize       int
}
