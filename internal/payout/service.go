// Package payout manages host bank accounts, sends payouts through the
// payment gateway and reconciles their final state from webhooks.
package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/queue"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// Gateway is the slice of the payment provider payouts use.
type Gateway interface {
	ListBanks(ctx context.Context) ([]paystack.Bank, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (paystack.ResolvedAccount, error)
	CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error)
	InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (paystack.Transfer, error)
}

// BankAccounts stores payout destinations.
type BankAccounts interface {
	ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error)
	GetDefaultBankAccount(ctx context.Context, userID string) (model.BankAccount, error)
	GetBankAccountByRecipientCode(ctx context.Context, code string) (model.BankAccount, error)
	SaveBankAccount(ctx context.Context, a *model.BankAccount, makeDefault bool) error
}

// Payouts stores payout records.
type Payouts interface {
	CreatePayout(ctx context.Context, p *model.Payout) error
	FindPayoutByTransfer(ctx context.Context, transferCode, reference string) (model.Payout, error)
	// ModifyPayout applies fn to the payout under its row lock and writes
	// it back when fn reports a change.
	ModifyPayout(ctx context.Context, id string, fn func(p *model.Payout) bool) (model.Payout, error)
	ListPayouts(ctx context.Context, f model.PayoutFilter) ([]model.PayoutSummary, error)
}

// Listings resolves listing ownership.
type Listings interface {
	GetListing(ctx context.Context, id string) (model.Listing, error)
}

// Users checks that a user exists.
type Users interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Publisher receives payout.updated events.
type Publisher interface {
	PublishPayoutUpdated(ctx context.Context, ev queue.PayoutUpdatedEvent) error
}

// Service implements bank account management, payout initiation and
// webhook reconciliation.
type Service struct {
	gw       Gateway
	accounts BankAccounts
	payouts  Payouts
	listings Listings
	users    Users
	pub      Publisher
	secret   string
	validate *validator.Validate
	now      func() time.Time
	log      *logrus.Entry
}

// NewService wires a Service. secret verifies webhook signatures. pub may
// be nil.
func NewService(gw Gateway, accounts BankAccounts, payouts Payouts, listings Listings, users Users, pub Publisher, secret string) *Service {
	if gw == nil || accounts == nil || payouts == nil || listings == nil || users == nil {
		panic("payout: nil dependency")
	}
	return &Service{
		gw:       gw,
		accounts: accounts,
		payouts:  payouts,
		listings: listings,
		users:    users,
		pub:      pub,
		secret:   secret,
		validate: newValidator(),
		now:      time.Now,
		log:      logrus.WithField("component", "payout"),
	}
}

// ListBanks returns the banks transfers can be sent to.
func (s *Service) ListBanks(ctx context.Context) ([]paystack.Bank, error) {
	return s.gw.ListBanks(ctx)
}

// ResolveAccountInput identifies an account at a bank.
type ResolveAccountInput struct {
	AccountNumber string `json:"account_number" validate:"required,numeric,len=10"`
	BankCode      string `json:"bank_code" validate:"required"`
}

// ResolveAccount returns the holder of the account.
func (s *Service) ResolveAccount(ctx context.Context, in ResolveAccountInput) (paystack.ResolvedAccount, error) {
	if err := s.validate.Struct(in); err != nil {
		return paystack.ResolvedAccount{}, apperr.Wrap(apperr.InvalidArgument, "a 10 digit account number and a bank code are required", err)
	}
	return s.gw.ResolveAccount(ctx, in.AccountNumber, in.BankCode)
}

// SaveBankAccountInput registers a payout destination. MakeDefault nil
// means default only if the user has no account yet.
type SaveBankAccountInput struct {
	BankCode      string `json:"bank_code" validate:"required"`
	BankName      string `json:"bank_name" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,numeric,len=10"`
	AccountName   string `json:"account_name"`
	MakeDefault   *bool  `json:"make_default"`
}

// VerifyAndSaveBankAccount resolves the account with the provider,
// registers it as a transfer recipient and stores it for userID.
func (s *Service) VerifyAndSaveBankAccount(ctx context.Context, userID string, in SaveBankAccountInput) (model.BankAccount, error) {
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.BankCode = strings.TrimSpace(in.BankCode)
	if err := s.validate.Struct(in); err != nil {
		return model.BankAccount{}, apperr.Wrap(apperr.InvalidArgument, "bank code, bank name and a 10 digit account number are required", err)
	}

	resolved, err := s.gw.ResolveAccount(ctx, in.AccountNumber, in.BankCode)
	if err != nil {
		return model.BankAccount{}, err
	}
	name := strings.TrimSpace(resolved.AccountName)
	if name == "" {
		name = strings.TrimSpace(in.AccountName)
	}
	if name == "" {
		return model.BankAccount{}, apperr.New(apperr.InvalidArgument, "unable to determine account name")
	}

	recipient, err := s.gw.CreateRecipient(ctx, name, in.AccountNumber, in.BankCode)
	if err != nil {
		return model.BankAccount{}, err
	}

	existing, err := s.accounts.ListBankAccounts(ctx, userID)
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("list bank accounts: %w", err)
	}
	makeDefault := len(existing) == 0
	for _, a := range existing {
		if a.AccountNumber == in.AccountNumber && a.IsDefault {
			makeDefault = true
		}
	}
	if in.MakeDefault != nil {
		makeDefault = *in.MakeDefault
	}

	acct := model.BankAccount{
		ID:            uuid.NewString(),
		UserID:        userID,
		BankName:      strings.TrimSpace(in.BankName),
		BankCode:      in.BankCode,
		AccountName:   name,
		AccountNumber: in.AccountNumber,
		RecipientCode: recipient,
	}
	if err := s.accounts.SaveBankAccount(ctx, &acct, makeDefault); err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrDuplicate) {
			return model.BankAccount{}, apperr.New(apperr.Conflict, "account number is registered to another user")
		}
		return model.BankAccount{}, fmt.Errorf("save bank account: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "bank_account_id": acct.ID, "default": acct.IsDefault}).
		Info("bank account saved")
	return acct, nil
}

// ListBankAccounts returns userID's accounts, default first.
func (s *Service) ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error) {
	out, err := s.accounts.ListBankAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bank accounts: %w", err)
	}
	return out, nil
}

// InitiatePayoutInput describes a payout to a host. Amount is in kobo.
type InitiatePayoutInput struct {
	UserID    string  `json:"user_id" validate:"required"`
	ListingID *string `json:"listing_id"`
	Amount    int64   `json:"amount"`
	Narration string  `json:"narration" validate:"max=100"`
}

// InitiatePayout sends Amount to the user's default bank account and
// records the transfer. adminID is kept in the transfer metadata.
func (s *Service) InitiatePayout(ctx context.Context, adminID string, in InitiatePayoutInput) (model.Payout, error) {
	if err := s.validate.Struct(in); err != nil {
		return model.Payout{}, apperr.Wrap(apperr.InvalidArgument, invalidMessage(err), err)
	}
	ok, err := s.users.UserExists(ctx, in.UserID)
	if err != nil {
		return model.Payout{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return model.Payout{}, apperr.New(apperr.NotFound, "user not found")
	}

	var listingID *string
	if in.ListingID != nil && strings.TrimSpace(*in.ListingID) != "" {
		id := strings.TrimSpace(*in.ListingID)
		l, err := s.listings.GetListing(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return model.Payout{}, apperr.New(apperr.NotFound, "apartment not found")
		}
		if err != nil {
			return model.Payout{}, fmt.Errorf("load listing: %w", err)
		}
		if l.OwnerID != in.UserID {
			return model.Payout{}, apperr.New(apperr.InvalidArgument, "apartment is not owned by the selected user")
		}
		listingID = &id
	}

	acct, err := s.accounts.GetDefaultBankAccount(ctx, in.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Payout{}, apperr.New(apperr.InvalidArgument, "user has no default bank account")
	}
	if err != nil {
		return model.Payout{}, fmt.Errorf("load default bank account: %w", err)
	}
	if acct.RecipientCode == "" {
		return model.Payout{}, apperr.New(apperr.InvalidArgument, "default bank account has no transfer recipient")
	}
	if in.Amount <= 0 {
		return model.Payout{}, apperr.New(apperr.InvalidArgument, "amount must be greater than zero")
	}

	reason := strings.TrimSpace(in.Narration)
	if reason == "" {
		who := acct.AccountName
		if who == "" {
			who = acct.AccountNumber
		}
		reason = "Payout to " + who
	}
	meta := map[string]any{
		"userId":        in.UserID,
		"bankAccountId": acct.ID,
		"initiatedBy":   adminID,
	}
	if listingID != nil {
		meta["listingId"] = *listingID
	}

	transfer, err := s.gw.InitiateTransfer(ctx, paystack.TransferRequest{
		Amount:    in.Amount,
		Recipient: acct.RecipientCode,
		Reason:    reason,
		Reference: uuid.NewString(),
		Metadata:  meta,
	})
	if err != nil {
		return model.Payout{}, err
	}

	raw, err := json.Marshal(transfer)
	if err != nil {
		return model.Payout{}, fmt.Errorf("encode transfer: %w", err)
	}
	status := strings.ToLower(transfer.Status)
	if status == "" {
		status = model.PayoutPending
	}
	p := model.Payout{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		ListingID:    listingID,
		Amount:       in.Amount,
		Currency:     model.CurrencyNGN,
		Reference:    nonEmpty(transfer.Reference),
		TransferCode: nonEmpty(transfer.TransferCode),
		Status:       status,
		Metadata:     raw,
	}
	if transfer.ID != 0 {
		p.ProviderReference = nonEmpty(fmt.Sprint(transfer.ID))
	}
	if err := s.payouts.CreatePayout(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.recordedPayout(ctx, transfer)
		}
		return model.Payout{}, fmt.Errorf("record payout: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"payout_id":     p.ID,
		"user_id":       p.UserID,
		"amount":        p.Amount,
		"transfer_code": transfer.TransferCode,
		"initiated_by":  adminID,
	}).Info("payout initiated")
	s.publish(ctx, p, "admin")
	return p, nil
}

// recordedPayout returns the row a webhook stored for transfer before
// InitiatePayout could insert its own.
func (s *Service) recordedPayout(ctx context.Context, transfer paystack.Transfer) (model.Payout, error) {
	p, err := s.payouts.FindPayoutByTransfer(ctx, transfer.TransferCode, transfer.Reference)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Payout{}, apperr.New(apperr.Conflict, "payout already recorded for this transfer")
	}
	if err != nil {
		return model.Payout{}, fmt.Errorf("load recorded payout: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"payout_id":     p.ID,
		"transfer_code": transfer.TransferCode,
	}).Info("payout already recorded by webhook")
	return p, nil
}

// History lists payouts, newest first.
func (s *Service) History(ctx context.Context, f model.PayoutFilter) ([]model.PayoutSummary, error) {
	if f.UserID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "user_id is required")
	}
	out, err := s.payouts.ListPayouts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, p model.Payout, source string) {
	if s.pub == nil {
		return
	}
	ev := queue.PayoutUpdatedEvent{
		PayoutID:  p.ID,
		UserID:    p.UserID,
		ListingID: p.ListingID,
		Amount:    p.Amount,
		Status:    p.Status,
		Source:    source,
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if p.Reference != nil {
		ev.Reference = *p.Reference
	}
	if p.TransferCode != nil {
		ev.TransferCode = *p.TransferCode
	}
	if err := s.pub.PublishPayoutUpdated(ctx, ev); err != nil {
		s.log.WithError(err).WithField("payout_id", p.ID).Warn("failed to publish payout.updated")
	}
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
