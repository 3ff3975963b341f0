// Package queue defines the domain events exchanged over RabbitMQ together
// with the publisher and the audit log consumer.
package queue

const (
	BookingSettledQueue = "booking.settled"
	PayoutUpdatedQueue  = "payout.updated"
)

// BookingSettledEvent is published once a settlement transaction commits.
// Amounts are in kobo.
type BookingSettledEvent struct {
	BookingID        string  `json:"booking_id"`
	ListingID        string  `json:"listing_id"`
	UserID           string  `json:"user_id"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	TotalAmount      int64   `json:"total_amount"`
	CouponDiscount   int64   `json:"coupon_discount"`
	AmountPaid       int64   `json:"amount_paid"`
	PaymentReference *string `json:"payment_reference,omitempty"`
	CouponCode       *string `json:"coupon_code,omitempty"`
	SettledAt        string  `json:"settled_at"`
}

// PayoutUpdatedEvent is published whenever a payout row is created or its
// state changes, from the admin API or from a provider webhook.
type PayoutUpdatedEvent struct {
	PayoutID     string  `json:"payout_id"`
	UserID       string  `json:"user_id"`
	ListingID    *string `json:"listing_id,omitempty"`
	Amount       int64   `json:"amount"`
	Status       string  `json:"status"`
	Reference    string  `json:"reference"`
	TransferCode string  `json:"transfer_code"`
	Source       string  `json:"source"`
	UpdatedAt    string  `json:"updated_at"`
}
