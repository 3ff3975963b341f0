package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rental-settlement/internal/coupon"
	"github.com/iliyamo/rental-settlement/internal/handler"
	"github.com/iliyamo/rental-settlement/internal/middleware"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/payout"
	"github.com/iliyamo/rental-settlement/internal/settlement"
	"github.com/iliyamo/rental-settlement/internal/utils"
)

const secret = "router-secret"

type stubSettler struct{}

func (stubSettler) Settle(_ context.Context, req settlement.Request) (model.Booking, error) {
	return model.Booking{ID: "b1", ListingID: req.ListingID, UserID: req.RequesterID}, nil
}

type stubCoupons struct{ handler.CouponService }

func (stubCoupons) List(context.Context, model.CouponFilter) (coupon.Page, error) {
	return coupon.Page{Data: []model.Coupon{}}, nil
}

type stubPayouts struct{ handler.PayoutService }

func (stubPayouts) ListBanks(context.Context) ([]paystack.Bank, error) {
	return []paystack.Bank{{ID: 1, Name: "GTBank", Code: "058"}}, nil
}

type stubWebhook struct{}

func (stubWebhook) HandleWebhook(context.Context, []byte, string) (payout.Ack, error) {
	return payout.Ack{Event: "charge.success"}, nil
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	h := Handlers{
		Booking: handler.NewBookingHandler(stubSettler{}),
		Coupon:  handler.NewCouponHandler(stubCoupons{}),
		Payment: handler.NewPaymentHandler(stubPayouts{}),
		Webhook: handler.NewWebhookHandler(stubWebhook{}),
	}
	mw := Guarded{JWTSecret: secret}
	RegisterRoutes(e, h)
	RegisterUser(e, h, mw)
	RegisterAdmin(e, h, mw)
	return e
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, "u-"+strings.ToLower(role), role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func serve(e *echo.Echo, method, path, tok, body string) int {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouteAccess(t *testing.T) {
	e := newServer(t)
	user := token(t, middleware.RoleUser)
	admin := token(t, middleware.RoleAdmin)
	booking := `{"start_date":"2025-01-10","end_date":"2025-01-12","coupon_code":"X"}`

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		body   string
		want   int
	}{
		{"health is public", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"webhook needs no token", http.MethodPost, "/v1/payments/paystack/webhook", "", `{}`, http.StatusOK},
		{"booking needs a token", http.MethodPost, "/v1/listings/l1/bookings", "", booking, http.StatusUnauthorized},
		{"guest can book", http.MethodPost, "/v1/listings/l1/bookings", user, booking, http.StatusCreated},
		{"admin can book", http.MethodPost, "/v1/listings/l1/bookings", admin, booking, http.StatusCreated},
		{"guest lists banks", http.MethodGet, "/v1/payments/banks", user, "", http.StatusOK},
		{"guest cannot manage coupons", http.MethodGet, "/v1/admin/coupons", user, "", http.StatusForbidden},
		{"admin manages coupons", http.MethodGet, "/v1/admin/coupons", admin, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(e, tt.method, tt.path, tt.tok, tt.body))
		})
	}
}
