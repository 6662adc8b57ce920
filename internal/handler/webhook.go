package handler

import (
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatherly/gatherly/internal/webhook"
)

// WebhookHandler is the unauthenticated transport boundary for
// processor notifications.
type WebhookHandler struct {
	Processor *webhook.Processor
}

func NewWebhookHandler(p *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{Processor: p}
}

// Receive handles POST /v1/payments/webhook. A bad signature is the
// only 4xx; everything past verification answers 200 so the processor
// stops redelivering; fulfillment failures are logged and audited
// out of band, and a true duplicate is a success with no side
// effects.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return errKind(c, http.StatusBadRequest, "InvalidRequest", "unreadable body")
	}
	if err := h.Processor.VerifySignature(body, c.Request().Header.Get(webhook.SignatureHeader)); err != nil {
		return errKind(c, http.StatusBadRequest, "WebhookSignatureInvalid", "signature verification failed")
	}
	if err := h.Processor.Process(c.Request().Context(), body); err != nil {
		log.Printf("[webhook] processing error: %v", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
