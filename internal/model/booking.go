package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingBooked    BookingStatus = "BOOKED"
	BookingCheckedIn BookingStatus = "CHECKED_IN"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is a guest's confirmed stay at a listing. It is created once by
// a successful settlement. TotalAmount is the price before the coupon
// discount; both amounts are in kobo.
//
// For a given listing no two non-cancelled bookings overlap.
type Booking struct {
	ID             string        `json:"id"`                   // bookings.id
	ListingID      string        `json:"listing_id"`           // bookings.listing_id
	UserID         string        `json:"user_id"`              // bookings.user_id
	PaymentID      *string       `json:"payment_id,omitempty"` // bookings.payment_id (nullable)
	CouponID       *string       `json:"coupon_id,omitempty"`  // bookings.coupon_id (nullable)
	StartDate      time.Time     `json:"start_date"`           // bookings.start_date
	EndDate        time.Time     `json:"end_date"`             // bookings.end_date
	TotalAmount    int64         `json:"total_amount"`         // bookings.total_amount
	CouponDiscount int64         `json:"coupon_discount"`      // bookings.coupon_discount
	IsCancelled    bool          `json:"is_cancelled"`         // bookings.is_cancelled
	IsPaidOut      bool          `json:"is_paid_out"`          // bookings.is_paid_out
	Status         BookingStatus `json:"status"`               // bookings.status
	CreatedAt      time.Time     `json:"created_at"`           // bookings.created_at
	UpdatedAt      time.Time     `json:"updated_at"`           // bookings.updated_at
}

// Range returns the booked interval.
func (b Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// Blocking reports whether the booking still occupies its dates.
func (b Booking) Blocking() bool {
	return !b.IsCancelled && b.Status != BookingCancelled
}
