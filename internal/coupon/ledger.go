// Package coupon implements the coupon ledger: validation of a code
// against a booking amount, the in-transaction debit of the balance, and
// the administrative operations on coupons.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// Store is the coupon persistence used outside of a settlement.
type Store interface {
	GetByCode(ctx context.Context, code string) (model.Coupon, error)
	GetByID(ctx context.Context, id string) (model.Coupon, error)
	SetStatus(ctx context.Context, id string, status model.CouponStatus) error
	Create(ctx context.Context, c *model.Coupon) error
	// Modify applies fn to a live coupon under its row lock and persists
	// the result unless fn fails.
	Modify(ctx context.Context, id string, fn func(c *model.Coupon) error) (model.Coupon, error)
	List(ctx context.Context, f model.CouponFilter) ([]model.Coupon, int, error)
}

// TxStore is the coupon persistence available inside a settlement
// transaction.
type TxStore interface {
	GetCouponForUpdate(ctx context.Context, id string) (model.Coupon, error)
	SetCouponBalance(ctx context.Context, id string, remaining int64, status model.CouponStatus) error
}

// Quote is the result of a successful validation. Nothing is persisted
// until Commit runs inside the booking transaction.
type Quote struct {
	Coupon         model.Coupon `json:"coupon"`
	Discount       int64        `json:"discount"`
	RemainingAfter int64        `json:"remaining_after"`
}

// Ledger validates and debits coupon balances.
type Ledger struct {
	store Store
	now   func() time.Time
	log   *logrus.Entry
}

// NewLedger returns a Ledger over store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		log:   logrus.WithField("component", "coupon-ledger"),
	}
}

// Validate checks that code can be redeemed by requesterID against a
// booking worth amount and computes the discount. It does not debit the
// coupon. The only writes it may perform are status corrections: an
// active coupon past its expiry is flipped to EXPIRED, and one with no
// balance left to EXHAUSTED, before the call fails.
func (l *Ledger) Validate(ctx context.Context, code, requesterID string, amount int64) (Quote, error) {
	c, err := l.store.GetByCode(ctx, model.NormalizeCode(code))
	if errors.Is(err, repository.ErrNotFound) {
		return Quote{}, apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return Quote{}, fmt.Errorf("load coupon: %w", err)
	}

	if c.DeletedAt != nil {
		return Quote{}, apperr.New(apperr.NotFound, "coupon is no longer available")
	}
	switch c.Status {
	case model.CouponInactive:
		return Quote{}, apperr.New(apperr.InvalidState, "coupon is inactive")
	case model.CouponExhausted:
		return Quote{}, apperr.New(apperr.InvalidState, "coupon has been exhausted")
	case model.CouponExpired:
		return Quote{}, apperr.New(apperr.InvalidState, "coupon has expired")
	}

	if c.Expired(l.now()) {
		l.flip(ctx, c, model.CouponExpired)
		return Quote{}, apperr.New(apperr.InvalidState, "coupon has expired")
	}
	if c.AssignedTo != nil && *c.AssignedTo != requesterID {
		return Quote{}, apperr.New(apperr.Forbidden, "coupon is not assigned to this user")
	}
	if c.RemainingAmount <= 0 {
		l.flip(ctx, c, model.CouponExhausted)
		return Quote{}, apperr.New(apperr.InvalidState, "coupon has been exhausted")
	}
	if amount <= 0 {
		return Quote{}, apperr.New(apperr.InvalidArgument, "invalid booking amount for coupon use")
	}

	discount := min(c.RemainingAmount, amount)
	return Quote{Coupon: c, Discount: discount, RemainingAfter: c.RemainingAmount - discount}, nil
}

// flip persists a lazily discovered status. A failure here is logged and
// does not change the outcome of validation.
func (l *Ledger) flip(ctx context.Context, c model.Coupon, status model.CouponStatus) {
	if err := l.store.SetStatus(ctx, c.ID, status); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{"coupon_id": c.ID, "status": status}).
			Warn("failed to persist coupon status")
	}
}

// Commit debits the coupon inside the caller's transaction. The row is
// re-read under a lock; if its balance moved since Validate the commit is
// refused so the caller can restart with a fresh quote.
func (l *Ledger) Commit(ctx context.Context, tx TxStore, q Quote) error {
	current, err := tx.GetCouponForUpdate(ctx, q.Coupon.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return fmt.Errorf("lock coupon: %w", err)
	}
	if current.DeletedAt != nil || current.Status == model.CouponInactive || current.Status == model.CouponExpired {
		return apperr.New(apperr.InvalidState, "coupon is no longer available")
	}
	if current.RemainingAmount != q.Coupon.RemainingAmount {
		return apperr.New(apperr.Conflict, "coupon balance changed, please retry")
	}
	if q.RemainingAfter < 0 || q.RemainingAfter > current.RemainingAmount {
		return apperr.New(apperr.Internal, "invalid coupon debit")
	}
	status := current.StatusForRemaining(q.RemainingAfter)
	if err := tx.SetCouponBalance(ctx, current.ID, q.RemainingAfter, status); err != nil {
		return fmt.Errorf("debit coupon: %w", err)
	}
	return nil
}
