package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citaflow/booking-backend/internal/booking"
	"github.com/citaflow/booking-backend/internal/pkg/request"
	"github.com/citaflow/booking-backend/internal/pkg/response"
	"github.com/citaflow/booking-backend/internal/timerange"
)

type Handler struct {
	service booking.Service
}

func NewHandler(service booking.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(c *gin.Context) {
	var body CreateBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.service.Create(c.Request.Context(), booking.CreateRequest{
		TenantID:       body.TenantID,
		LinkID:         body.LinkID,
		ServiceID:      body.ServiceID,
		ProfessionalID: body.ProfessionalID,
		SessionID:      body.SessionID,
		Range:          timerange.TimeRange{Start: body.StartTime, End: body.EndTime},
		Customer: booking.Customer{
			Name:  body.CustomerName,
			Email: body.CustomerEmail,
			Phone: body.CustomerPhone,
		},
		AcceptedTerms: body.AcceptedTerms,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateBookingResponse{
		Booking:           NewBookingResponse(result.Booking),
		Reference:         result.Reference,
		CheckoutURL:       result.CheckoutURL,
		CancellationToken: result.Booking.CancellationToken,
		RescheduleToken:   result.Booking.RescheduleToken,
	})
}

func (h *Handler) Get(c *gin.Context) {
	var params request.ByIDRequest
	if err := c.ShouldBindUri(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	b, err := h.service.GetByID(c.Request.Context(), params.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) List(c *gin.Context) {
	var q ListBookingsRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters", "details": err.Error()})
		return
	}

	bookings, total, err := h.service.List(c.Request.Context(), booking.Filter{
		TenantID:       q.TenantID,
		ProfessionalID: q.ProfessionalID,
		Status:         q.Status,
		Page:           q.Page,
		PageSize:       q.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = NewBookingResponse(b)
	}
	c.JSON(http.StatusOK, response.NewPageResponse(items, q.Page, q.PageSize, total))
}

func (h *Handler) Cancel(c *gin.Context) {
	var params request.ByIDRequest
	if err := c.ShouldBindUri(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	var body CancelBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.service.Cancel(c.Request.Context(), params.ID, body.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(b))
}

func (h *Handler) Reschedule(c *gin.Context) {
	var params request.ByIDRequest
	if err := c.ShouldBindUri(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid UUID"})
		return
	}

	var body RescheduleBookingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	b, err := h.service.Reschedule(c.Request.Context(), params.ID, body.Token,
		timerange.TimeRange{Start: body.StartTime, End: body.EndTime})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBookingResponse(b))
}
