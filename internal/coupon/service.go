package coupon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// Users checks that a user exists before a coupon is assigned to them.
type Users interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Listings prices a stay for VerifyForUser.
type Listings interface {
	GetListing(ctx context.Context, id string) (model.Listing, error)
}

// Service exposes the administrative coupon operations and the guest
// facing verification preview.
type Service struct {
	store    Store
	ledger   *Ledger
	users    Users
	listings Listings
}

// NewService wires a Service. All dependencies must be non-nil.
func NewService(store Store, ledger *Ledger, users Users, listings Listings) *Service {
	if store == nil || ledger == nil || users == nil || listings == nil {
		panic("nil dependency passed to coupon.NewService")
	}
	return &Service{store: store, ledger: ledger, users: users, listings: listings}
}

// CreateInput is the payload of an admin coupon creation.
type CreateInput struct {
	Code        string     `json:"code" validate:"required,max=64"`
	Description string     `json:"description" validate:"max=255"`
	Amount      int64      `json:"amount" validate:"required,gt=0"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AssignedTo  *string    `json:"assigned_to"`
}

// Create adds a new active coupon with a full balance.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Coupon, error) {
	code := model.NormalizeCode(in.Code)
	if code == "" {
		return model.Coupon{}, apperr.New(apperr.InvalidArgument, "coupon code is required")
	}
	if in.Amount <= 0 {
		return model.Coupon{}, apperr.New(apperr.InvalidArgument, "coupon amount must be greater than zero")
	}
	if _, err := s.store.GetByCode(ctx, code); err == nil {
		return model.Coupon{}, apperr.New(apperr.Conflict, "coupon code already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Coupon{}, fmt.Errorf("check coupon code: %w", err)
	}
	if in.AssignedTo != nil {
		if err := s.requireUser(ctx, *in.AssignedTo, "assigned user not found"); err != nil {
			return model.Coupon{}, err
		}
	}

	c := model.Coupon{
		ID:              uuid.NewString(),
		Code:            code,
		Description:     strings.TrimSpace(in.Description),
		Amount:          in.Amount,
		RemainingAmount: in.Amount,
		Status:          model.CouponActive,
		ExpiresAt:       utcPtr(in.ExpiresAt),
		AssignedTo:      in.AssignedTo,
	}
	if err := s.store.Create(ctx, &c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Coupon{}, apperr.New(apperr.Conflict, "coupon code already exists")
		}
		return model.Coupon{}, fmt.Errorf("create coupon: %w", err)
	}
	return c, nil
}

// Page is one page of coupons.
type Page struct {
	Data  []model.Coupon `json:"data"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// List returns coupons matching f.
func (s *Service) List(ctx context.Context, f model.CouponFilter) (Page, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, apperr.New(apperr.InvalidArgument, "invalid coupon status")
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list coupons: %w", err)
	}
	return Page{Data: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Get returns a live coupon.
func (s *Service) Get(ctx context.Context, id string) (model.Coupon, error) {
	c, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Coupon{}, apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return model.Coupon{}, fmt.Errorf("load coupon: %w", err)
	}
	return c, nil
}

// UpdateInput is a partial update. Nil fields are left unchanged; an
// explicit ClearExpiry removes the expiry date.
type UpdateInput struct {
	Amount      *int64     `json:"amount" validate:"omitempty,gt=0"`
	Description *string    `json:"description" validate:"omitempty,max=255"`
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
}

// Update changes a coupon's face value, description or expiry. The face
// value can never drop below what has already been spent; the remaining
// balance is recomputed from the new face value.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (model.Coupon, error) {
	return s.modify(ctx, id, "update coupon", func(c *model.Coupon) error {
		if in.Amount != nil {
			used := c.Used()
			if *in.Amount < used {
				return apperr.New(apperr.InvalidArgument, "new amount cannot be less than the amount already used")
			}
			remaining := *in.Amount - used
			c.Status = c.StatusForRemaining(remaining)
			c.Amount = *in.Amount
			c.RemainingAmount = remaining
		}
		if in.Description != nil {
			c.Description = strings.TrimSpace(*in.Description)
		}
		if in.ClearExpiry {
			c.ExpiresAt = nil
		} else if in.ExpiresAt != nil {
			c.ExpiresAt = utcPtr(in.ExpiresAt)
		}
		return nil
	})
}

// UpdateStatus sets the status directly.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.CouponStatus) (model.Coupon, error) {
	if !status.Valid() {
		return model.Coupon{}, apperr.New(apperr.InvalidArgument, "invalid coupon status")
	}
	return s.modify(ctx, id, "update coupon status", func(c *model.Coupon) error {
		c.Status = status
		return nil
	})
}

// Assign restricts the coupon to a single user.
func (s *Service) Assign(ctx context.Context, id, userID string) (model.Coupon, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return model.Coupon{}, err
	}
	if err := s.requireUser(ctx, userID, "user not found"); err != nil {
		return model.Coupon{}, err
	}
	return s.modify(ctx, id, "assign coupon", func(c *model.Coupon) error {
		c.AssignedTo = &userID
		return nil
	})
}

// Unassign makes the coupon redeemable by anyone again.
func (s *Service) Unassign(ctx context.Context, id string) (model.Coupon, error) {
	return s.modify(ctx, id, "unassign coupon", func(c *model.Coupon) error {
		c.AssignedTo = nil
		return nil
	})
}

// Delete soft deletes the coupon. Past bookings keep their reference.
func (s *Service) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.modify(ctx, id, "delete coupon", func(c *model.Coupon) error {
		c.DeletedAt = &now
		return nil
	})
	return err
}

// modify runs fn against the freshly locked coupon so admin edits never
// write back a balance a concurrent settlement has already debited.
func (s *Service) modify(ctx context.Context, id, op string, fn func(c *model.Coupon) error) (model.Coupon, error) {
	c, err := s.store.Modify(ctx, id, fn)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Coupon{}, apperr.New(apperr.NotFound, "coupon not found")
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return model.Coupon{}, err
	}
	if err != nil {
		return model.Coupon{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Preview is what a guest sees before booking with a coupon.
type Preview struct {
	Coupon                  model.Coupon `json:"coupon"`
	Discount                int64        `json:"discount"`
	TotalAmount             int64        `json:"total_amount"`
	PayableAmount           int64        `json:"payable_amount"`
	RemainingAmountAfterUse int64        `json:"remaining_amount_after_use"`
}

// VerifyForUser prices the stay the same way settlement does and runs the
// ledger validation against it without reserving anything.
func (s *Service) VerifyForUser(ctx context.Context, userID, listingID string, dr model.DateRange, code string) (Preview, error) {
	l, err := s.listings.GetListing(ctx, listingID)
	if errors.Is(err, repository.ErrNotFound) {
		return Preview{}, apperr.New(apperr.NotFound, "apartment not found")
	}
	if err != nil {
		return Preview{}, fmt.Errorf("load listing: %w", err)
	}
	total := l.PriceFor(dr)
	q, err := s.ledger.Validate(ctx, code, userID, total)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Coupon:                  q.Coupon,
		Discount:                q.Discount,
		TotalAmount:             total,
		PayableAmount:           max(total-q.Discount, 0),
		RemainingAmountAfterUse: q.RemainingAfter,
	}, nil
}

func (s *Service) requireUser(ctx context.Context, id, msg string) error {
	ok, err := s.users.UserExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return apperr.New(apperr.NotFound, msg)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
