package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citaflow/booking-backend/internal/payment"
	"github.com/citaflow/booking-backend/internal/pkg/response"
)

// signatureHeaders maps a provider to the header its webhooks carry the
// checksum in. PayU embeds the signature in the body instead, so it has no
// entry here.
var signatureHeaders = map[string]string{
	"wompi": "X-Event-Checksum",
}

type Handler struct {
	processor *payment.Processor
}

func NewHandler(processor *payment.Processor) *Handler {
	return &Handler{processor: processor}
}

func (h *Handler) Receive(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}

	var signature string
	if header, ok := signatureHeaders[provider]; ok {
		signature = c.GetHeader(header)
	}

	if err := h.processor.Process(c.Request.Context(), provider, payload, signature); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
