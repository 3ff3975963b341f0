package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/payout"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor applies signed provider deliveries.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (payout.Ack, error)
}

type WebhookHandler struct {
	proc WebhookProcessor
}

func NewWebhookHandler(p WebhookProcessor) *WebhookHandler {
	if p == nil {
		panic("nil processor passed to NewWebhookHandler")
	}
	return &WebhookHandler{proc: p}
}

// Paystack handles POST /v1/payments/paystack/webhook. The signature is checked
// against the raw bytes, so the body is read as-is and never re-encoded.
func (h *WebhookHandler) Paystack(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return respondError(c, apperr.Wrap(apperr.InvalidArgument, "invalid webhook payload", err))
	}
	ack, err := h.proc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get(paystack.SignatureHeader))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ack)
}
