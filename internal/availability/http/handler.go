package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citaflow/booking-backend/internal/availability"
	"github.com/citaflow/booking-backend/internal/pkg/response"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type Handler struct {
	service availability.Service
}

func NewHandler(service availability.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Search(c *gin.Context) {
	var q SearchAvailabilityRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	slots, err := h.service.Search(c.Request.Context(), availability.Query{
		ProfessionalID: q.ProfessionalID,
		ServiceID:      q.ServiceID,
		SessionID:      q.SessionID,
		Window:         timerange.TimeRange{Start: q.From, End: q.To},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSearchAvailabilityResponse(slots))
}
