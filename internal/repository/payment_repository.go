package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// PaymentRepo stores verified incoming payments.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts a payment inside tx. A reused transaction reference
// violates the unique key and yields ErrDuplicate.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (id, transaction_ref, amount, channel, status, type, currency, metadata)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var meta any
	if len(p.Metadata) > 0 {
		meta = []byte(p.Metadata)
	}
	if _, err := tx.ExecContext(ctx, q,
		p.ID, p.TransactionRef, p.Amount, p.Channel, p.Status, p.Type, p.Currency, meta,
	); err != nil {
		return mapInsertErr(err)
	}
	return tx.QueryRowContext(ctx, `SELECT created_at FROM payments WHERE id = ?`, p.ID).Scan(&p.CreatedAt)
}

// ReferenceExists reports whether a payment with the given provider
// reference has already been recorded.
func (r *PaymentRepo) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_ref = ?)`, ref).Scan(&exists)
	return exists, err
}
