package model

import (
	"encoding/json"
	"time"
)

// Payout statuses used locally. Providers may report other values, which
// are stored as given.
const (
	PayoutPending  = "pending"
	PayoutSuccess  = "success"
	PayoutFailed   = "failed"
	PayoutReversed = "reversed"
)

// IsTerminalPayoutStatus reports whether status is final.
func IsTerminalPayoutStatus(status string) bool {
	switch status {
	case PayoutSuccess, PayoutFailed, PayoutReversed:
		return true
	}
	return false
}

// Payout is a transfer of funds to a host's bank account. TransferCode and
// Reference are the provider keys used to correlate webhook events.
type Payout struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	ListingID         *string         `json:"listing_id,omitempty"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency"`
	Reference         *string         `json:"reference,omitempty"`
	TransferCode      *string         `json:"transfer_code,omitempty"`
	ProviderReference *string         `json:"provider_reference,omitempty"`
	Status            string          `json:"status"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PayoutFilter selects payout history.
type PayoutFilter struct {
	UserID    string
	ListingID *string
}

// PayoutSummary is a payout history row with its listing title.
type PayoutSummary struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	Reference    *string   `json:"reference,omitempty"`
	TransferCode *string   `json:"transfer_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ListingID    *string   `json:"listing_id,omitempty"`
	ListingTitle *string   `json:"listing_title,omitempty"`
}
