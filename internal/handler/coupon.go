package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/coupon"
	"github.com/iliyamo/rental-settlement/internal/model"
)

// CouponService is the coupon surface used by the HTTP layer.
type CouponService interface {
	Create(ctx context.Context, in coupon.CreateInput) (model.Coupon, error)
	List(ctx context.Context, f model.CouponFilter) (coupon.Page, error)
	Get(ctx context.Context, id string) (model.Coupon, error)
	Update(ctx context.Context, id string, in coupon.UpdateInput) (model.Coupon, error)
	UpdateStatus(ctx context.Context, id string, status model.CouponStatus) (model.Coupon, error)
	Assign(ctx context.Context, id, userID string) (model.Coupon, error)
	Unassign(ctx context.Context, id string) (model.Coupon, error)
	Delete(ctx context.Context, id string) error
	VerifyForUser(ctx context.Context, userID, listingID string, dr model.DateRange, code string) (coupon.Preview, error)
}

// CouponHandler serves the admin coupon API and the guest preview.
type CouponHandler struct {
	svc CouponService
}

func NewCouponHandler(svc CouponService) *CouponHandler {
	if svc == nil {
		panic("nil service passed to NewCouponHandler")
	}
	return &CouponHandler{svc: svc}
}

type verifyCouponRequest struct {
	Code      string `json:"code" validate:"required"`
	ListingID string `json:"listing_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// Verify handles POST /v1/coupons/verify. It previews the discount the
// caller would get for a stay without reserving any balance.
func (h *CouponHandler) Verify(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body verifyCouponRequest
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	dr, err := model.ParseDateRange(body.StartDate, body.EndDate)
	if err != nil {
		return respondError(c, apperr.Wrap(apperr.InvalidArgument, err.Error(), err))
	}
	p, err := h.svc.VerifyForUser(c.Request().Context(), userID, body.ListingID, dr, body.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Create handles POST /v1/admin/coupons.
func (h *CouponHandler) Create(c echo.Context) error {
	var body coupon.CreateInput
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	cp, err := h.svc.Create(c.Request().Context(), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, cp)
}

// List handles GET /v1/admin/coupons?status=&search=&page=&limit=.
func (h *CouponHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	res, err := h.svc.List(c.Request().Context(), model.CouponFilter{
		Status: model.CouponStatus(c.QueryParam("status")),
		Search: c.QueryParam("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /v1/admin/coupons/:id.
func (h *CouponHandler) Get(c echo.Context) error {
	cp, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cp)
}

// Update handles PATCH /v1/admin/coupons/:id.
func (h *CouponHandler) Update(c echo.Context) error {
	var body coupon.UpdateInput
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	cp, err := h.svc.Update(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cp)
}

type couponStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PATCH /v1/admin/coupons/:id/status.
func (h *CouponHandler) UpdateStatus(c echo.Context) error {
	var body couponStatusRequest
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	cp, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("id"), model.CouponStatus(body.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cp)
}

type assignCouponRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// Assign handles PATCH /v1/admin/coupons/:id/assign.
func (h *CouponHandler) Assign(c echo.Context) error {
	var body assignCouponRequest
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	cp, err := h.svc.Assign(c.Request().Context(), c.Param("id"), body.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cp)
}

// Unassign handles PATCH /v1/admin/coupons/:id/unassign.
func (h *CouponHandler) Unassign(c echo.Context) error {
	cp, err := h.svc.Unassign(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, cp)
}

// Delete handles DELETE /v1/admin/coupons/:id. The coupon is soft deleted.
func (h *CouponHandler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
