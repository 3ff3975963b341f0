package model

import "time"

// BankAccount is a host's payout destination. RecipientCode is issued by
// the payment provider when the account is registered and is required to
// send transfers.
type BankAccount struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	BankName      string    `json:"bank_name"`
	BankCode      string    `json:"bank_code"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	RecipientCode string    `json:"recipient_code"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
