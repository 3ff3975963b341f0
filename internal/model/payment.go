package model

import (
	"encoding/json"
	"time"
)

const (
	PaymentTypeIncoming = "INCOMING"
	CurrencyNGN         = "NGN"
)

// Payment is a verified incoming charge backing a booking. Metadata holds
// the provider's verification payload verbatim for audit.
type Payment struct {
	ID             string          `json:"id"`              // payments.id
	TransactionRef string          `json:"transaction_ref"` // payments.transaction_ref (unique)
	Amount         int64           `json:"amount"`          // payments.amount, kobo
	Channel        string          `json:"channel"`         // payments.channel
	Status         string          `json:"status"`          // payments.status
	Type           string          `json:"type"`            // payments.type
	Currency       string          `json:"currency"`        // payments.currency
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
