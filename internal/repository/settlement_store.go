package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// SettlementTx is the set of writes a settlement performs inside its
// single transaction. Everything done through one SettlementTx commits or
// rolls back together.
type SettlementTx interface {
	HasOverlap(ctx context.Context, listingID string, r model.DateRange) (bool, error)
	GetCouponForUpdate(ctx context.Context, id string) (model.Coupon, error)
	SetCouponBalance(ctx context.Context, id string, remaining int64, status model.CouponStatus) error
	InsertPayment(ctx context.Context, p *model.Payment) error
	InsertBooking(ctx context.Context, b *model.Booking) error
}

// SettlementStore groups the repositories used while settling a booking
// and owns the transaction boundary.
type SettlementStore struct {
	db       *sql.DB
	Listings *ListingRepo
	Bookings *BookingRepo
	Payments *PaymentRepo
	Coupons  *CouponRepo
}

// NewSettlementStore wires the settlement repositories over db.
func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{
		db:       db,
		Listings: NewListingRepo(db),
		Bookings: NewBookingRepo(db),
		Payments: NewPaymentRepo(db),
		Coupons:  NewCouponRepo(db),
	}
}

// GetListing returns the listing or ErrNotFound.
func (s *SettlementStore) GetListing(ctx context.Context, id string) (model.Listing, error) {
	return s.Listings.GetListing(ctx, id)
}

// HasOverlap is the lock free overlap pre-check.
func (s *SettlementStore) HasOverlap(ctx context.Context, listingID string, r model.DateRange) (bool, error) {
	return s.Bookings.HasOverlap(ctx, listingID, r)
}

// PaymentReferenceUsed reports whether ref already backs a payment.
func (s *SettlementStore) PaymentReferenceUsed(ctx context.Context, ref string) (bool, error) {
	return s.Payments.ReferenceExists(ctx, ref)
}

// InListingTx begins a transaction, locks the listing row with
// SELECT ... FOR UPDATE and runs fn. Concurrent settlements for the same
// listing wait on that lock, so the overlap check and the insert done in
// fn are serialized per listing. The transaction commits when fn returns
// nil and rolls back otherwise.
func (s *SettlementStore) InListingTx(ctx context.Context, listingID string, fn func(SettlementTx) error) error {
	return withTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sql.Tx) error {
		if _, err := s.Listings.LockTx(ctx, tx, listingID); err != nil {
			return err
		}
		return fn(&settlementTx{tx: tx, store: s})
	})
}

type settlementTx struct {
	tx    *sql.Tx
	store *SettlementStore
}

func (t *settlementTx) HasOverlap(ctx context.Context, listingID string, r model.DateRange) (bool, error) {
	return t.store.Bookings.HasOverlapTx(ctx, t.tx, listingID, r)
}

func (t *settlementTx) GetCouponForUpdate(ctx context.Context, id string) (model.Coupon, error) {
	return t.store.Coupons.GetByIDForUpdateTx(ctx, t.tx, id)
}

func (t *settlementTx) SetCouponBalance(ctx context.Context, id string, remaining int64, status model.CouponStatus) error {
	return t.store.Coupons.SetBalanceTx(ctx, t.tx, id, remaining, status)
}

func (t *settlementTx) InsertPayment(ctx context.Context, p *model.Payment) error {
	return t.store.Payments.CreateTx(ctx, t.tx, p)
}

func (t *settlementTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.store.Bookings.CreateTx(ctx, t.tx, b)
}
