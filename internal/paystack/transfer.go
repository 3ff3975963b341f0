package paystack

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/iliyamo/rental-settlement/internal/apperr"
)

// Bank is an entry of the provider's bank list.
type Bank struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code"`
	Slug     string `json:"slug"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

// ListBanks returns the NGN banks transfers can be sent to.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	var banks []Bank
	if err := c.do(ctx, http.MethodGet, "/bank?currency="+Currency, nil, &banks, "bank list not found"); err != nil {
		return nil, err
	}
	return banks, nil
}

// ResolvedAccount is the account holder the provider found for a number.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int64  `json:"bank_id"`
}

// ResolveAccount looks up the holder of accountNumber at bankCode.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (ResolvedAccount, error) {
	q := url.Values{}
	q.Set("account_number", strings.TrimSpace(accountNumber))
	q.Set("bank_code", strings.TrimSpace(bankCode))
	var out ResolvedAccount
	if err := c.do(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &out, "unable to resolve account number"); err != nil {
		return ResolvedAccount{}, err
	}
	return out, nil
}

// RecipientRequest registers a bank account as a transfer destination.
type RecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

// CreateRecipient registers the account and returns its recipient code.
func (c *Client) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	req := RecipientRequest{
		Type:          "nuban",
		Name:          name,
		AccountNumber: accountNumber,
		BankCode:      bankCode,
		Currency:      Currency,
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", req, &out, "transfer recipient endpoint not found"); err != nil {
		return "", err
	}
	if out.RecipientCode == "" {
		return "", apperr.New(apperr.Internal, "missing recipient code from payment gateway response")
	}
	return out.RecipientCode, nil
}

// TransferRequest is a payout from the balance to a recipient. Amount is
// in kobo.
type TransferRequest struct {
	Source    string         `json:"source"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Recipient string         `json:"recipient"`
	Reason    string         `json:"reason,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Transfer is the provider's acknowledgement of a transfer.
type Transfer struct {
	ID           int64  `json:"id"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	TransferCode string `json:"transfer_code"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// InitiateTransfer sends money to a recipient. The amount must be a
// positive number of kobo; nothing is sent otherwise.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	if req.Amount <= 0 {
		return Transfer{}, apperr.New(apperr.InvalidArgument, "amount must be greater than zero")
	}
	if req.Recipient == "" {
		return Transfer{}, apperr.New(apperr.InvalidArgument, "transfer recipient is required")
	}
	if req.Source == "" {
		req.Source = "balance"
	}
	if req.Currency == "" {
		req.Currency = Currency
	}
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/transfer", req, &out, "transfer endpoint not found"); err != nil {
		return Transfer{}, err
	}
	return out, nil
}
