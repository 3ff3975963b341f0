package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/payout"
)

// PayoutService is the bank account and payout surface used over HTTP.
type PayoutService interface {
	ListBanks(ctx context.Context) ([]paystack.Bank, error)
	ResolveAccount(ctx context.Context, in payout.ResolveAccountInput) (paystack.ResolvedAccount, error)
	VerifyAndSaveBankAccount(ctx context.Context, userID string, in payout.SaveBankAccountInput) (model.BankAccount, error)
	ListBankAccounts(ctx context.Context, userID string) ([]model.BankAccount, error)
	InitiatePayout(ctx context.Context, adminID string, in payout.InitiatePayoutInput) (model.Payout, error)
	History(ctx context.Context, f model.PayoutFilter) ([]model.PayoutSummary, error)
}

// PaymentHandler serves bank lookups, saved accounts and payouts.
type PaymentHandler struct {
	svc PayoutService
}

func NewPaymentHandler(svc PayoutService) *PaymentHandler {
	if svc == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{svc: svc}
}

// ListBanks handles GET /v1/payments/banks.
func (h *PaymentHandler) ListBanks(c echo.Context) error {
	banks, err := h.svc.ListBanks(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, banks)
}

// ResolveAccount handles POST /v1/payments/resolve-account.
func (h *PaymentHandler) ResolveAccount(c echo.Context) error {
	var body payout.ResolveAccountInput
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	acct, err := h.svc.ResolveAccount(c.Request().Context(), body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, acct)
}

// SaveBankAccount handles POST /v1/payments/bank-accounts.
func (h *PaymentHandler) SaveBankAccount(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body payout.SaveBankAccountInput
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	acct, err := h.svc.VerifyAndSaveBankAccount(c.Request().Context(), userID, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, acct)
}

// ListBankAccounts handles GET /v1/payments/bank-accounts for the caller.
func (h *PaymentHandler) ListBankAccounts(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	return h.listAccounts(c, userID)
}

// UserBankAccounts handles GET /v1/admin/payouts/users/:id/bank-accounts.
func (h *PaymentHandler) UserBankAccounts(c echo.Context) error {
	return h.listAccounts(c, c.Param("id"))
}

func (h *PaymentHandler) listAccounts(c echo.Context, userID string) error {
	accts, err := h.svc.ListBankAccounts(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, accts)
}

// MyPayouts handles GET /v1/payouts?listing_id=.
func (h *PaymentHandler) MyPayouts(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	return h.history(c, userID)
}

// Payouts handles GET /v1/admin/payouts?user_id=&listing_id=.
func (h *PaymentHandler) Payouts(c echo.Context) error {
	return h.history(c, strings.TrimSpace(c.QueryParam("user_id")))
}

func (h *PaymentHandler) history(c echo.Context, userID string) error {
	f := model.PayoutFilter{UserID: userID}
	if v := strings.TrimSpace(c.QueryParam("listing_id")); v != "" {
		f.ListingID = &v
	}
	rows, err := h.svc.History(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// InitiatePayout handles POST /v1/admin/payouts.
func (h *PaymentHandler) InitiatePayout(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body payout.InitiatePayoutInput
	if err := bindValid(c, &body); err != nil {
		return respondError(c, err)
	}
	p, err := h.svc.InitiatePayout(c.Request().Context(), adminID, body)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}
