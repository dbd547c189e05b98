package http

import (
	"time"

	"github.com/citaflow/booking-backend/internal/timerange"
)

type SearchAvailabilityRequest struct {
	ProfessionalID string    `form:"professional_id" binding:"required,uuid"`
	ServiceID      string    `form:"service_id" binding:"required,uuid"`
	SessionID      string    `form:"session_id"`
	From           time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To             time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

type SlotResponse struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type SearchAvailabilityResponse struct {
	Slots []SlotResponse `json:"slots"`
}

func NewSearchAvailabilityResponse(slots []timerange.TimeRange) SearchAvailabilityResponse {
	items := make([]SlotResponse, len(slots))
	for i, s := range slots {
		items[i] = SlotResponse{StartTime: s.Start, EndTime: s.End}
	}
	return SearchAvailabilityResponse{Slots: items}
}
