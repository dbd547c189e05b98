package http

import (
	"time"

	"github.com/citaflow/booking-backend/internal/booking"
	"github.com/citaflow/booking-backend/internal/pkg/request"
)

type CreateBookingRequest struct {
	TenantID       string    `json:"tenant_id" binding:"required,uuid"`
	LinkID         string    `json:"link_id" binding:"omitempty,uuid"`
	ServiceID      string    `json:"service_id" binding:"required,uuid"`
	ProfessionalID string    `json:"professional_id" binding:"required,uuid"`
	SessionID      string    `json:"session_id" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
	CustomerName   string    `json:"customer_name" binding:"required"`
	CustomerEmail  string    `json:"customer_email" binding:"required,email"`
	CustomerPhone  string    `json:"customer_phone"`
	AcceptedTerms  bool      `json:"accepted_terms"`
}

type CancelBookingRequest struct {
	Token string `json:"token" binding:"required"`
}

type RescheduleBookingRequest struct {
	Token     string    `json:"token" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

type ListBookingsRequest struct {
	request.ListParams
	TenantID       string `form:"tenant_id" binding:"required,uuid"`
	ProfessionalID string `form:"professional_id" binding:"omitempty,uuid"`
	Status         string `form:"status" binding:"omitempty,oneof=pending paid confirmed cancelled"`
}

type BookingResponse struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	ServiceID       string    `json:"service_id"`
	ProfessionalID  string    `json:"professional_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	CustomerName    string    `json:"customer_name"`
	CustomerEmail   string    `json:"customer_email"`
	Status          string    `json:"status"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		TenantID:        b.TenantID,
		ServiceID:       b.ServiceID,
		ProfessionalID:  b.ProfessionalID,
		StartTime:       b.Range.Start,
		EndTime:         b.Range.End,
		CustomerName:    b.Customer.Name,
		CustomerEmail:   b.Customer.Email,
		Status:          string(b.Status),
		CalendarEventID: b.CalendarEventID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

// CreateBookingResponse includes the checkout redirect plus the single-purpose
// secrets the customer needs for self-service cancel/reschedule links.
type CreateBookingResponse struct {
	Booking           BookingResponse `json:"booking"`
	Reference         string          `json:"reference"`
	CheckoutURL       string          `json:"checkout_url"`
	CancellationToken string          `json:"cancellation_token"`
	RescheduleToken   string          `json:"reschedule_token"`
}
