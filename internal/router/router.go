package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/handler"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Booking *handler.BookingHandler
	Coupon  *handler.CouponHandler
	Payment *handler.PaymentHandler
	Webhook *handler.WebhookHandler
}

// RegisterRoutes registers the unauthenticated routes: the health probe
// and the provider webhook, which is authenticated by its signature.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	e.GET("/healthz", handler.Health)
	e.POST("/v1/payments/paystack/webhook", h.Webhook.Paystack)
}
