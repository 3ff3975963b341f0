package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// CouponRepo provides data access to the coupons table. Codes are stored
// normalized (trimmed, upper case) so lookups compare exactly. Soft
// deleted coupons keep their row and code; GetByCode still returns them
// so callers can tell "deleted" apart from "never existed".
type CouponRepo struct {
	db *sql.DB
}

// NewCouponRepo returns a new CouponRepo bound to the given database.
func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{db: db} }

const couponColumns = `id, code, description, amount, remaining_amount, status, expires_at,
    assigned_to, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(s rowScanner) (model.Coupon, error) {
	var (
		c          model.Coupon
		status     string
		expiresAt  sql.NullTime
		assignedTo sql.NullString
		deletedAt  sql.NullTime
	)
	err := s.Scan(&c.ID, &c.Code, &c.Description, &c.Amount, &c.RemainingAmount, &status,
		&expiresAt, &assignedTo, &deletedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Coupon{}, ErrNotFound
	}
	if err != nil {
		return model.Coupon{}, err
	}
	c.Status = model.CouponStatus(status)
	c.ExpiresAt = timePtr(expiresAt)
	c.AssignedTo = stringPtr(assignedTo)
	c.DeletedAt = timePtr(deletedAt)
	return c, nil
}

// GetByCode returns the coupon with the normalized code, including soft
// deleted rows.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (model.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = ?`, model.NormalizeCode(code))
	return scanCoupon(row)
}

// GetByID returns a live (not soft deleted) coupon by id.
func (r *CouponRepo) GetByID(ctx context.Context, id string) (model.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = ? AND deleted_at IS NULL`, id)
	return scanCoupon(row)
}

// GetByIDForUpdateTx reads the coupon and locks its row until tx ends.
// Concurrent settlements redeeming the same coupon queue up here.
func (r *CouponRepo) GetByIDForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (model.Coupon, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = ? FOR UPDATE`, id)
	return scanCoupon(row)
}

// SetBalanceTx writes a new remaining amount and status inside tx.
func (r *CouponRepo) SetBalanceTx(ctx context.Context, tx *sql.Tx, id string, remaining int64, status model.CouponStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons SET remaining_amount = ?, status = ? WHERE id = ?`, remaining, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetStatus changes the status of a coupon outside any settlement.
func (r *CouponRepo) SetStatus(ctx context.Context, id string, status model.CouponStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE coupons SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Create inserts a coupon. A code already in use yields ErrDuplicate.
func (r *CouponRepo) Create(ctx context.Context, c *model.Coupon) error {
	const q = `INSERT INTO coupons (id, code, description, amount, remaining_amount, status, expires_at, assigned_to)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, c.ID, c.Code, c.Description, c.Amount, c.RemainingAmount,
		string(c.Status), nullTime(c.ExpiresAt), nullString(c.AssignedTo)); err != nil {
		return mapInsertErr(err)
	}
	got, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = got
	return nil
}

// Modify runs an admin read-modify-write on a live coupon. The row is
// read with SELECT ... FOR UPDATE inside a transaction, passed to fn, and
// written back only if fn returns nil. A settlement debiting the same
// coupon waits on the row lock, so fn never works from a stale balance.
func (r *CouponRepo) Modify(ctx context.Context, id string, fn func(c *model.Coupon) error) (model.Coupon, error) {
	var c model.Coupon
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var err error
		c, err = r.GetByIDForUpdateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.DeletedAt != nil {
			return ErrNotFound
		}
		if err := fn(&c); err != nil {
			return err
		}
		const q = `UPDATE coupons SET description = ?, amount = ?, remaining_amount = ?, status = ?,
        expires_at = ?, assigned_to = ?, deleted_at = ? WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, c.Description, c.Amount, c.RemainingAmount, string(c.Status),
			nullTime(c.ExpiresAt), nullString(c.AssignedTo), nullTime(c.DeletedAt), c.ID)
		if err != nil {
			return err
		}
		return requireAffected(res)
	})
	if err != nil {
		return model.Coupon{}, err
	}
	if c.DeletedAt != nil {
		return c, nil
	}
	return r.GetByID(ctx, c.ID)
}

// List returns one page of live coupons matching f together with the total
// number of matches.
func (r *CouponRepo) List(ctx context.Context, f model.CouponFilter) ([]model.Coupon, int, error) {
	f = f.Normalize()
	where := []string{"deleted_at IS NULL"}
	args := []any{}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(code LIKE ? OR description LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM coupons WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + couponColumns + ` FROM coupons WHERE ` + cond + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]model.Coupon, 0, f.Limit)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// requireAffected turns an UPDATE that matched nothing into ErrNotFound.
// The DSN sets clientFoundRows so unchanged rows still count as matched.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
