package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/middleware"
)

// Guarded holds the middlewares shared by authenticated groups.
type Guarded struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (g Guarded) rateLimit() echo.MiddlewareFunc {
	if g.RateLimit == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return g.RateLimit
}

func (g Guarded) cache() echo.MiddlewareFunc {
	if g.Cache == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return g.Cache
}

// RegisterUser registers guest and host endpoints under /v1. Every route
// requires a valid JWT with the USER or ADMIN role and is rate limited.
func RegisterUser(e *echo.Echo, h Handlers, mw Guarded) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin),
		mw.rateLimit(),
	)

	g.POST("/listings/:id/bookings", h.Booking.CreateBooking)
	g.POST("/coupons/verify", h.Coupon.Verify)

	// bank list changes rarely
	g.GET("/payments/banks", h.Payment.ListBanks, mw.cache())
	g.POST("/payments/resolve-account", h.Payment.ResolveAccount)
	g.POST("/payments/bank-accounts", h.Payment.SaveBankAccount)
	g.GET("/payments/bank-accounts", h.Payment.ListBankAccounts)
	g.GET("/payouts", h.Payment.MyPayouts)
}
