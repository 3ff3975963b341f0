package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// PayoutRepo stores outgoing transfers. transfer_code and reference are
// unique so a webhook redelivered concurrently cannot create a second row
// for the same transfer.
type PayoutRepo struct {
	db *sql.DB
}

// NewPayoutRepo returns a new PayoutRepo bound to the given database.
func NewPayoutRepo(db *sql.DB) *PayoutRepo { return &PayoutRepo{db: db} }

const payoutColumns = `id, user_id, listing_id, amount, currency, reference, transfer_code,
    provider_reference, status, metadata, created_at, updated_at`

func scanPayout(s rowScanner) (model.Payout, error) {
	var (
		p            model.Payout
		listingID    sql.NullString
		reference    sql.NullString
		transferCode sql.NullString
		providerRef  sql.NullString
		meta         []byte
	)
	err := s.Scan(&p.ID, &p.UserID, &listingID, &p.Amount, &p.Currency, &reference, &transferCode,
		&providerRef, &p.Status, &meta, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payout{}, ErrNotFound
	}
	if err != nil {
		return model.Payout{}, err
	}
	p.ListingID = stringPtr(listingID)
	p.Reference = stringPtr(reference)
	p.TransferCode = stringPtr(transferCode)
	p.ProviderReference = stringPtr(providerRef)
	p.Metadata = meta
	return p, nil
}

func metadataArg(m []byte) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

// CreatePayout inserts p. A transfer code or reference that already exists
// yields ErrDuplicate.
func (r *PayoutRepo) CreatePayout(ctx context.Context, p *model.Payout) error {
	const q = `INSERT INTO payouts
        (id, user_id, listing_id, amount, currency, reference, transfer_code, provider_reference, status, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q, p.ID, p.UserID, nullString(p.ListingID), p.Amount, p.Currency,
		nullString(p.Reference), nullString(p.TransferCode), nullString(p.ProviderReference), p.Status,
		metadataArg(p.Metadata)); err != nil {
		return mapInsertErr(err)
	}
	got, err := r.getByID(ctx, p.ID)
	if err != nil {
		return err
	}
	*p = got
	return nil
}

// FindPayoutByTransfer returns the payout matching either the transfer
// code or the reference. Empty keys are ignored; with both empty it
// returns ErrNotFound.
func (r *PayoutRepo) FindPayoutByTransfer(ctx context.Context, transferCode, reference string) (model.Payout, error) {
	var (
		conds []string
		args  []any
	)
	if transferCode != "" {
		conds = append(conds, "transfer_code = ?")
		args = append(args, transferCode)
	}
	if reference != "" {
		conds = append(conds, "reference = ?")
		args = append(args, reference)
	}
	if len(conds) == 0 {
		return model.Payout{}, ErrNotFound
	}
	q := `SELECT ` + payoutColumns + ` FROM payouts WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY created_at LIMIT 1`
	return scanPayout(r.db.QueryRowContext(ctx, q, args...))
}

// ModifyPayout locks the payout row with SELECT ... FOR UPDATE, hands it
// to fn and writes the mutable columns back when fn reports a change.
// Concurrent deliveries for the same transfer queue on the row lock, so fn
// always sees the latest committed status.
func (r *PayoutRepo) ModifyPayout(ctx context.Context, id string, fn func(p *model.Payout) bool) (model.Payout, error) {
	var out model.Payout
	err := withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		p, err := scanPayout(tx.QueryRowContext(ctx,
			`SELECT `+payoutColumns+` FROM payouts WHERE id = ? FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if !fn(&p) {
			out = p
			return nil
		}
		const q = `UPDATE payouts SET amount = ?, reference = ?, transfer_code = ?, provider_reference = ?,
        status = ?, metadata = ? WHERE id = ?`
		res, err := tx.ExecContext(ctx, q, p.Amount, nullString(p.Reference), nullString(p.TransferCode),
			nullString(p.ProviderReference), p.Status, metadataArg(p.Metadata), p.ID)
		if err != nil {
			return mapInsertErr(err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// ListPayouts returns the payout history for f, newest first, with the
// title of the related listing when there is one.
func (r *PayoutRepo) ListPayouts(ctx context.Context, f model.PayoutFilter) ([]model.PayoutSummary, error) {
	q := `SELECT p.id, p.amount, p.status, p.reference, p.transfer_code, p.created_at, p.listing_id, l.title
        FROM payouts p
        LEFT JOIN listings l ON l.id = p.listing_id
        WHERE p.user_id = ?`
	args := []any{f.UserID}
	if f.ListingID != nil {
		q += ` AND p.listing_id = ?`
		args = append(args, *f.ListingID)
	}
	q += ` ORDER BY p.created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PayoutSummary{}
	for rows.Next() {
		var (
			s                               model.PayoutSummary
			reference, code, listing, title sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Amount, &s.Status, &reference, &code, &s.CreatedAt, &listing, &title); err != nil {
			return nil, err
		}
		s.Reference = stringPtr(reference)
		s.TransferCode = stringPtr(code)
		s.ListingID = stringPtr(listing)
		s.ListingTitle = stringPtr(title)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PayoutRepo) getByID(ctx context.Context, id string) (model.Payout, error) {
	return scanPayout(r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id))
}
