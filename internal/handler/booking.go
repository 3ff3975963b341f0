package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/settlement"
)

// Settler creates bookings.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (model.Booking, error)
}

// BookingHandler exposes booking settlement to guests.
type BookingHandler struct {
	settler Settler
}

// NewBookingHandler returns a BookingHandler over s.
func NewBookingHandler(s Settler) *BookingHandler {
	if s == nil {
		panic("nil settler passed to NewBookingHandler")
	}
	return &BookingHandler{settler: s}
}

type createBookingRequest struct {
	StartDate        string  `json:"start_date" validate:"required"`
	EndDate          string  `json:"end_date" validate:"required"`
	PaymentReference *string `json:"payment_reference"`
	CouponCode       *string `json:"coupon_code"`
}

// CreateBooking handles POST /v1/listings/:id/bookings. The booking is
// created only if the stay is free and fully paid for by the coupon and
// the verified payment together; it answers 201 with the booking.
func (h *BookingHandler) CreateBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body createBookingRequest
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	b, err := h.settler.Settle(c.Request().Context(), settlement.Request{
		ListingID:        c.Param("id"),
		Start:            body.StartDate,
		End:              body.EndDate,
		PaymentReference: body.PaymentReference,
		CouponCode:       body.CouponCode,
		RequesterID:      userID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}
