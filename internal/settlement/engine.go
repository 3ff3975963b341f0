// Package settlement turns a guest's request into a confirmed booking. It
// prices the stay, applies an optional coupon, verifies the payment for
// whatever the coupon does not cover and writes the payment, the booking
// and the coupon debit in one transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/coupon"
	"github.com/iliyamo/rental-settlement/internal/lock"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/queue"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// Store is the persistence a settlement needs. InListingTx must run fn in
// a transaction that holds an exclusive lock on the listing row.
type Store interface {
	GetListing(ctx context.Context, id string) (model.Listing, error)
	HasOverlap(ctx context.Context, listingID string, r model.DateRange) (bool, error)
	PaymentReferenceUsed(ctx context.Context, ref string) (bool, error)
	InListingTx(ctx context.Context, listingID string, fn func(repository.SettlementTx) error) error
}

// CouponLedger validates a code and later debits it inside the booking
// transaction.
type CouponLedger interface {
	Validate(ctx context.Context, code, requesterID string, amount int64) (coupon.Quote, error)
	Commit(ctx context.Context, tx coupon.TxStore, q coupon.Quote) error
}

// PaymentVerifier confirms a charge of exactly the expected amount.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, reference string, expected int64) (paystack.Transaction, error)
}

// Locker is an advisory cross-process lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Publisher receives booking.settled events.
type Publisher interface {
	PublishBookingSettled(ctx context.Context, ev queue.BookingSettledEvent) error
}

// Request is a settlement request. Dates are YYYY-MM-DD or RFC 3339.
// At least one of PaymentReference and CouponCode must be set.
type Request struct {
	ListingID        string
	Start            string
	End              string
	PaymentReference *string
	CouponCode       *string
	RequesterID      string
}

// Engine settles bookings. It is safe for concurrent use.
type Engine struct {
	store   Store
	coupons CouponLedger
	gateway PaymentVerifier
	locker  Locker
	pub     Publisher
	lockTTL time.Duration
	now     func() time.Time
	log     *logrus.Entry
}

// NewEngine wires an Engine. locker and pub may be nil; without a locker
// only the database row lock serializes settlements.
func NewEngine(store Store, coupons CouponLedger, gateway PaymentVerifier, locker Locker, pub Publisher, lockTTL time.Duration) *Engine {
	if store == nil || coupons == nil || gateway == nil {
		panic("settlement: nil dependency")
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Engine{
		store:   store,
		coupons: coupons,
		gateway: gateway,
		locker:  locker,
		pub:     pub,
		lockTTL: lockTTL,
		now:     time.Now,
		log:     logrus.WithField("component", "settlement"),
	}
}

var errOverlap = apperr.New(apperr.Conflict, "apartment already booked for selected dates")

// Settle creates a booking for req or fails without leaving any writes
// behind. A payment is only recorded if the booking is.
func (e *Engine) Settle(ctx context.Context, req Request) (model.Booking, error) {
	dr, err := model.ParseDateRange(req.Start, req.End)
	if err != nil {
		return model.Booking{}, apperr.Wrap(apperr.InvalidArgument, err.Error(), err)
	}
	ref := trimmed(req.PaymentReference)
	code := trimmed(req.CouponCode)
	if ref == "" && code == "" {
		return model.Booking{}, apperr.New(apperr.InvalidArgument, "a payment reference or coupon code is required")
	}

	listing, err := e.store.GetListing(ctx, req.ListingID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, apperr.New(apperr.NotFound, "apartment not found")
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("load listing: %w", err)
	}
	if !listing.Published {
		return model.Booking{}, apperr.New(apperr.InvalidState, "apartment not available")
	}

	total := listing.PriceFor(dr)

	var quote *coupon.Quote
	if code != "" {
		q, err := e.coupons.Validate(ctx, code, req.RequesterID, total)
		if err != nil {
			return model.Booking{}, err
		}
		quote = &q
	}
	var discount int64
	if quote != nil {
		discount = quote.Discount
	}
	outstanding := max(total-discount, 0)

	release, err := e.acquire(ctx, listing.ID)
	if err != nil {
		return model.Booking{}, err
	}
	defer release()

	overlap, err := e.store.HasOverlap(ctx, listing.ID, dr)
	if err != nil {
		return model.Booking{}, fmt.Errorf("check overlap: %w", err)
	}
	if overlap {
		return model.Booking{}, errOverlap
	}

	var payment *model.Payment
	if outstanding > 0 {
		if ref == "" {
			return model.Booking{}, apperr.New(apperr.InvalidArgument, "payment reference is required for the outstanding amount")
		}
		used, err := e.store.PaymentReferenceUsed(ctx, ref)
		if err != nil {
			return model.Booking{}, fmt.Errorf("check payment reference: %w", err)
		}
		if used {
			return model.Booking{}, apperr.New(apperr.Conflict, "payment reference already used")
		}
		tx, err := e.gateway.VerifyPayment(ctx, ref, outstanding)
		if err != nil {
			return model.Booking{}, err
		}
		payment = newPayment(ref, tx)
	}

	booking := model.Booking{
		ID:             uuid.NewString(),
		ListingID:      listing.ID,
		UserID:         req.RequesterID,
		StartDate:      dr.Start,
		EndDate:        dr.End,
		TotalAmount:    total,
		CouponDiscount: discount,
		Status:         model.BookingBooked,
	}
	if quote != nil {
		id := quote.Coupon.ID
		booking.CouponID = &id
	}

	err = e.store.InListingTx(ctx, listing.ID, func(tx repository.SettlementTx) error {
		overlap, err := tx.HasOverlap(ctx, listing.ID, dr)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlap {
			return errOverlap
		}
		if payment != nil {
			if err := tx.InsertPayment(ctx, payment); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return apperr.New(apperr.Conflict, "payment reference already used")
				}
				return fmt.Errorf("insert payment: %w", err)
			}
			booking.PaymentID = &payment.ID
		}
		if err := tx.InsertBooking(ctx, &booking); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if quote != nil {
			if err := e.coupons.Commit(ctx, tx, *quote); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return model.Booking{}, apperr.New(apperr.NotFound, "apartment not found")
	}
	if err != nil {
		return model.Booking{}, err
	}

	e.log.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"listing_id":  booking.ListingID,
		"user_id":     booking.UserID,
		"total":       total,
		"discount":    discount,
		"outstanding": outstanding,
	}).Info("booking settled")
	e.publish(ctx, booking, payment, quote, outstanding)
	return booking, nil
}

func (e *Engine) acquire(ctx context.Context, listingID string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	release, err := e.locker.Acquire(ctx, "settle:listing:"+listingID, e.lockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, apperr.New(apperr.Conflict, "another booking for this apartment is in progress")
	}
	if err != nil {
		return nil, fmt.Errorf("acquire listing lock: %w", err)
	}
	return release, nil
}

func (e *Engine) publish(ctx context.Context, b model.Booking, p *model.Payment, q *coupon.Quote, paid int64) {
	if e.pub == nil {
		return
	}
	ev := queue.BookingSettledEvent{
		BookingID:      b.ID,
		ListingID:      b.ListingID,
		UserID:         b.UserID,
		StartDate:      b.StartDate.Format(time.RFC3339),
		EndDate:        b.EndDate.Format(time.RFC3339),
		TotalAmount:    b.TotalAmount,
		CouponDiscount: b.CouponDiscount,
		AmountPaid:     paid,
		SettledAt:      e.now().UTC().Format(time.RFC3339),
	}
	if p != nil {
		ref := p.TransactionRef
		ev.PaymentReference = &ref
	}
	if q != nil {
		code := q.Coupon.Code
		ev.CouponCode = &code
	}
	if err := e.pub.PublishBookingSettled(ctx, ev); err != nil {
		e.log.WithError(err).WithField("booking_id", b.ID).Warn("failed to publish booking.settled")
	}
}

func newPayment(ref string, tx paystack.Transaction) *model.Payment {
	currency := strings.ToUpper(tx.Currency)
	if currency == "" {
		currency = model.CurrencyNGN
	}
	return &model.Payment{
		ID:             uuid.NewString(),
		TransactionRef: ref,
		Amount:         tx.Amount,
		Channel:        tx.Channel,
		Status:         strings.ToLower(tx.Status),
		Type:           model.PaymentTypeIncoming,
		Currency:       currency,
		Metadata:       tx.Raw,
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
