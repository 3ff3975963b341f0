package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// BookingRepo provides persistence for bookings. All timestamp fields are
// stored in UTC. Bookings are only inserted here; status transitions
// (check-in, completion, cancellation) belong to the stay management side.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// overlapQuery matches any blocking booking whose [start, end) intersects
// the candidate range. Touching boundaries do not match.
const overlapQuery = `SELECT EXISTS (
    SELECT 1 FROM bookings
    WHERE listing_id = ?
      AND is_cancelled = 0
      AND status <> 'CANCELLED'
      AND start_date < ?
      AND end_date > ?
)`

// HasOverlap reports whether a non-cancelled booking for the listing
// overlaps r. It reads without locks and is only a pre-check; the
// authoritative check is HasOverlapTx under the listing lock.
func (r *BookingRepo) HasOverlap(ctx context.Context, listingID string, dr model.DateRange) (bool, error) {
	return hasOverlap(ctx, r.db, listingID, dr)
}

// HasOverlapTx is HasOverlap inside the caller's transaction.
func (r *BookingRepo) HasOverlapTx(ctx context.Context, tx *sql.Tx, listingID string, dr model.DateRange) (bool, error) {
	return hasOverlap(ctx, tx, listingID, dr)
}

func hasOverlap(ctx context.Context, q querier, listingID string, dr model.DateRange) (bool, error) {
	var exists bool
	if err := q.QueryRowContext(ctx, overlapQuery, listingID, dr.End, dr.Start).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateTx inserts a booking within the scope of an existing transaction
// and reads the row back to populate timestamps. The caller must commit or
// rollback the transaction.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings
        (id, listing_id, user_id, payment_id, coupon_id, start_date, end_date,
         total_amount, coupon_discount, is_cancelled, is_paid_out, status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		b.ID, b.ListingID, b.UserID, nullString(b.PaymentID), nullString(b.CouponID),
		b.StartDate, b.EndDate, b.TotalAmount, b.CouponDiscount, b.IsCancelled, b.IsPaidOut, string(b.Status),
	); err != nil {
		return mapInsertErr(err)
	}
	got, err := getBooking(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	*b = got
	return nil
}

// GetByID returns a booking by id or ErrNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id string) (model.Booking, error) {
	return getBooking(ctx, r.db, id)
}

func getBooking(ctx context.Context, q querier, id string) (model.Booking, error) {
	const sel = `SELECT id, listing_id, user_id, payment_id, coupon_id, start_date, end_date,
        total_amount, coupon_discount, is_cancelled, is_paid_out, status, created_at, updated_at
        FROM bookings WHERE id = ?`
	var (
		b         model.Booking
		paymentID sql.NullString
		couponID  sql.NullString
		status    string
	)
	err := q.QueryRowContext(ctx, sel, id).Scan(
		&b.ID, &b.ListingID, &b.UserID, &paymentID, &couponID, &b.StartDate, &b.EndDate,
		&b.TotalAmount, &b.CouponDiscount, &b.IsCancelled, &b.IsPaidOut, &status, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	b.PaymentID = stringPtr(paymentID)
	b.CouponID = stringPtr(couponID)
	b.Status = model.BookingStatus(status)
	return b, nil
}
