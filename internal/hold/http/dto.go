package http

import (
	"time"

	"github.com/citaflow/booking-backend/internal/hold"
)

type CreateHoldRequest struct {
	ProfessionalID string    `json:"professional_id" binding:"required,uuid"`
	ServiceID      string    `json:"service_id" binding:"required,uuid"`
	SessionID      string    `json:"session_id" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
}

type HoldResponse struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceID      string    `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func NewHoldResponse(h *hold.Hold) HoldResponse {
	return HoldResponse{
		ID:             h.ID,
		ProfessionalID: h.ProfessionalID,
		ServiceID:      h.ServiceID,
		StartTime:      h.Range.Start,
		EndTime:        h.Range.End,
		ExpiresAt:      h.ExpiresAt,
	}
}
