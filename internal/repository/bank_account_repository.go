package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/rental-settlement/internal/model"
)

// BankAccountRepo stores hosts' payout destinations. Account numbers are
// unique across users; at most one account per user is the default.
type BankAccountRepo struct {
	db *sql.DB
}

// NewBankAccountRepo returns a new BankAccountRepo bound to the given database.
func NewBankAccountRepo(db *sql.DB) *BankAccountRepo { return &BankAccountRepo{db: db} }

const bankAccountColumns = `id, user_id, bank_name, bank_code, account_name, account_number,
    recipient_code, is_default, created_at, updated_at`

func scanBankAccount(s rowScanner) (model.BankAccount, error) {
	var a model.BankAccount
	err := s.Scan(&a.ID, &a.UserID, &a.BankName, &a.BankCode, &a.AccountName, &a.AccountNumber,
		&a.RecipientCode, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BankAccount{}, ErrNotFound
	}
	return a, err
}

// ListBankAccounts returns the user's accounts, default first, then newest.
func (r *BankAccountRepo) ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE user_id = ? ORDER BY is_default DESC, created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BankAccount
	for rows.Next() {
		a, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetDefaultBankAccount returns the user's default account or ErrNotFound.
func (r *BankAccountRepo) GetDefaultBankAccount(ctx context.Context, userID string) (model.BankAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE user_id = ? AND is_default = 1 LIMIT 1`, userID)
	return scanBankAccount(row)
}

// GetBankAccountByRecipientCode finds the account registered with the
// provider under code.
func (r *BankAccountRepo) GetBankAccountByRecipientCode(ctx context.Context, code string) (model.BankAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE recipient_code = ? LIMIT 1`, code)
	return scanBankAccount(row)
}

// SaveBankAccount inserts or updates the account identified by its account
// number. When makeDefault is set, every other account of the user loses
// its default flag in the same transaction. An account number that belongs
// to another user yields ErrConflict. On return a holds the stored row.
func (r *BankAccountRepo) SaveBankAccount(ctx context.Context, a *model.BankAccount, makeDefault bool) error {
	return withTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var existingID, ownerID string
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id FROM bank_accounts WHERE account_number = ? FOR UPDATE`, a.AccountNumber,
		).Scan(&existingID, &ownerID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			existingID = ""
		case err != nil:
			return err
		case ownerID != a.UserID:
			return ErrConflict
		}

		if makeDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bank_accounts SET is_default = 0 WHERE user_id = ?`, a.UserID); err != nil {
				return err
			}
			a.IsDefault = true
		}

		if existingID == "" {
			const ins = `INSERT INTO bank_accounts
                (id, user_id, bank_name, bank_code, account_name, account_number, recipient_code, is_default)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
			if _, err := tx.ExecContext(ctx, ins, a.ID, a.UserID, a.BankName, a.BankCode, a.AccountName,
				a.AccountNumber, a.RecipientCode, a.IsDefault); err != nil {
				return mapInsertErr(err)
			}
		} else {
			a.ID = existingID
			const upd = `UPDATE bank_accounts SET bank_name = ?, bank_code = ?, account_name = ?,
                recipient_code = ?, is_default = ? WHERE id = ?`
			if _, err := tx.ExecContext(ctx, upd, a.BankName, a.BankCode, a.AccountName,
				a.RecipientCode, a.IsDefault, a.ID); err != nil {
				return err
			}
		}

		got, err := scanBankAccount(tx.QueryRowContext(ctx,
			`SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = ?`, a.ID))
		if err != nil {
			return err
		}
		*a = got
		return nil
	})
}
