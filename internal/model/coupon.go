package model

import (
	"strings"
	"time"
)

// CouponStatus is the redeemability state of a coupon.
type CouponStatus string

const (
	CouponActive    CouponStatus = "ACTIVE"
	CouponInactive  CouponStatus = "INACTIVE"
	CouponExpired   CouponStatus = "EXPIRED"
	CouponExhausted CouponStatus = "EXHAUSTED"
)

// Valid reports whether s is one of the known statuses.
func (s CouponStatus) Valid() bool {
	switch s {
	case CouponActive, CouponInactive, CouponExpired, CouponExhausted:
		return true
	}
	return false
}

// Coupon is a monetary voucher with a draining balance. Amount is the face
// value and RemainingAmount what is left to spend, both in kobo, with
// 0 <= RemainingAmount <= Amount.
type Coupon struct {
	ID              string       `json:"id"`
	Code            string       `json:"code"`
	Description     string       `json:"description"`
	Amount          int64        `json:"amount"`
	RemainingAmount int64        `json:"remaining_amount"`
	Status          CouponStatus `json:"status"`
	ExpiresAt       *time.Time   `json:"expires_at,omitempty"`
	AssignedTo      *string      `json:"assigned_to,omitempty"`
	DeletedAt       *time.Time   `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Used returns the portion of the face value already spent.
func (c Coupon) Used() int64 { return c.Amount - c.RemainingAmount }

// Expired reports whether the coupon's expiry is before now.
func (c Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// StatusForRemaining returns the status a coupon should carry once its
// balance becomes remaining.
func (c Coupon) StatusForRemaining(remaining int64) CouponStatus {
	if remaining <= 0 {
		return CouponExhausted
	}
	if c.Status == CouponExhausted {
		return CouponActive
	}
	return c.Status
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponFilter selects coupons for the admin listing.
type CouponFilter struct {
	Status CouponStatus
	Search string
	Page   int
	Limit  int
}

// Normalize clamps paging to sane values.
func (f CouponFilter) Normalize() CouponFilter {
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f
}

// Offset returns the row offset for the current page.
func (f CouponFilter) Offset() int { return (f.Page - 1) * f.Limit }
