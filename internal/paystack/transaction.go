package paystack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/iliyamo/rental-settlement/internal/apperr"
)

// Transaction is the subset of a verified charge settlement relies on.
// Raw keeps the provider's data object verbatim for the payment audit
// trail.
type Transaction struct {
	ID        int64           `json:"id"`
	Status    string          `json:"status"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Channel   string          `json:"channel"`
	PaidAt    string          `json:"paid_at"`
	Raw       json.RawMessage `json:"-"`
}

// VerifyTransaction fetches the state of a charge by its reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (Transaction, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return Transaction{}, apperr.New(apperr.InvalidArgument, "payment reference is required")
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(ref), nil, &raw, "transaction not found"); err != nil {
		return Transaction{}, err
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return Transaction{}, apperr.Wrap(apperr.Internal, "malformed payment gateway response", err)
	}
	tx.Raw = raw
	if tx.Reference == "" {
		tx.Reference = ref
	}
	return tx, nil
}

// VerifyPayment verifies reference and checks that it is a successful
// charge of exactly expected kobo. Anything short of that fails; a
// payment is never partially accepted.
func (c *Client) VerifyPayment(ctx context.Context, reference string, expected int64) (Transaction, error) {
	tx, err := c.VerifyTransaction(ctx, reference)
	if err != nil {
		return Transaction{}, err
	}
	if err := CheckPayment(tx, expected); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// CheckPayment applies the acceptance rules to a verified transaction.
func CheckPayment(tx Transaction, expected int64) error {
	if !strings.EqualFold(tx.Status, "success") {
		return apperr.New(apperr.Forbidden, "transaction was not successful")
	}
	if tx.Amount != expected {
		return apperr.New(apperr.Forbidden, "amount paid does not match outstanding amount")
	}
	return nil
}
