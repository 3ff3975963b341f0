package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/middleware"
)

// RegisterAdmin registers the coupon management and payout endpoints
// under /v1/admin. All routes require the ADMIN role.
func RegisterAdmin(e *echo.Echo, h Handlers, mw Guarded) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)

	// ---- Coupons ----
	g.POST("/coupons", h.Coupon.Create)
	g.GET("/coupons", h.Coupon.List)
	g.GET("/coupons/:id", h.Coupon.Get)
	g.PATCH("/coupons/:id", h.Coupon.Update)
	g.DELETE("/coupons/:id", h.Coupon.Delete)
	g.PATCH("/coupons/:id/status", h.Coupon.UpdateStatus)
	g.PATCH("/coupons/:id/assign", h.Coupon.Assign)
	g.PATCH("/coupons/:id/unassign", h.Coupon.Unassign)

	// ---- Payouts ----
	g.POST("/payouts", h.Payment.InitiatePayout)
	g.GET("/payouts", h.Payment.Payouts)
	g.GET("/payouts/users/:id/bank-accounts", h.Payment.UserBankAccounts)
}
