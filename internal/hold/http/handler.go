package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citaflow/booking-backend/internal/hold"
	"github.com/citaflow/booking-backend/internal/pkg/response"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type Handler struct {
	service hold.Service
}

func NewHandler(service hold.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateHoldRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), hold.CreateRequest{
		ProfessionalID: body.ProfessionalID,
		ServiceID:      body.ServiceID,
		SessionID:      body.SessionID,
		Range:          timerange.TimeRange{Start: body.StartTime, End: body.EndTime},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewHoldResponse(created))
}
