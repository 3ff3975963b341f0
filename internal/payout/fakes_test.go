package payout

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/queue"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

const testSecret = "sk_test_webhook"

type fakeGateway struct {
	resolved   map[string]string // account number -> name
	transfers  []paystack.TransferRequest
	transferTo paystack.Transfer
}

func (g *fakeGateway) ListBanks(context.Context) ([]paystack.Bank, error) {
	return []paystack.Bank{{ID: 1, Name: "GTBank", Code: "058"}}, nil
}

func (g *fakeGateway) ResolveAccount(_ context.Context, number, code string) (paystack.ResolvedAccount, error) {
	name, ok := g.resolved[number]
	if !ok {
		return paystack.ResolvedAccount{}, apperr.New(apperr.GatewayFailure, "unable to resolve account number")
	}
	return paystack.ResolvedAccount{AccountNumber: number, AccountName: name}, nil
}

func (g *fakeGateway) CreateRecipient(_ context.Context, name, number, code string) (string, error) {
	return "RCP_" + number, nil
}

func (g *fakeGateway) InitiateTransfer(_ context.Context, req paystack.TransferRequest) (paystack.Transfer, error) {
	g.transfers = append(g.transfers, req)
	t := g.transferTo
	if t.Reference == "" {
		t.Reference = req.Reference
	}
	return t, nil
}

type memStore struct {
	mu       sync.Mutex
	users    map[string]bool
	listings map[string]model.Listing
	accounts []model.BankAccount
	payouts  []model.Payout
	updates  int
	// when set, the next CreatePayout stores insertInstead and reports a
	// duplicate, as if a concurrent delivery had won the insert
	insertInstead *model.Payout
	// afterFind runs once, right after the next FindPayoutByTransfer
	// returns its unlocked read
	afterFind func()
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]bool{"host-1": true, "host-2": true, "admin-1": true},
		listings: map[string]model.Listing{
			"listing-1": {ID: "listing-1", OwnerID: "host-1", Title: "Lekki loft", BasePrice: 100, Published: true},
		},
	}
}

func (s *memStore) UserExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *memStore) GetListing(_ context.Context, id string) (model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return model.Listing{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *memStore) ListBankAccounts(_ context.Context, userID string) ([]model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.BankAccount{}
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) GetDefaultBankAccount(_ context.Context, userID string) (model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.UserID == userID && a.IsDefault {
			return a, nil
		}
	}
	return model.BankAccount{}, repository.ErrNotFound
}

func (s *memStore) GetBankAccountByRecipientCode(_ context.Context, code string) (model.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.RecipientCode == code {
			return a, nil
		}
	}
	return model.BankAccount{}, repository.ErrNotFound
}

func (s *memStore) SaveBankAccount(_ context.Context, a *model.BankAccount, makeDefault bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, e := range s.accounts {
		if e.AccountNumber == a.AccountNumber {
			if e.UserID != a.UserID {
				return repository.ErrConflict
			}
			idx = i
		}
	}
	if makeDefault {
		for i := range s.accounts {
			if s.accounts[i].UserID == a.UserID {
				s.accounts[i].IsDefault = false
			}
		}
	}
	a.IsDefault = makeDefault
	now := time.Now().Add(time.Duration(len(s.accounts)) * time.Second)
	if idx >= 0 {
		a.ID = s.accounts[idx].ID
		a.CreatedAt = s.accounts[idx].CreatedAt
		a.UpdatedAt = now
		s.accounts[idx] = *a
		return nil
	}
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts = append(s.accounts, *a)
	return nil
}

func (s *memStore) CreatePayout(_ context.Context, p *model.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertInstead != nil {
		s.payouts = append(s.payouts, *s.insertInstead)
		s.insertInstead = nil
		return repository.ErrDuplicate
	}
	for _, e := range s.payouts {
		if sameKey(e.TransferCode, p.TransferCode) || sameKey(e.Reference, p.Reference) {
			return repository.ErrDuplicate
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.payouts = append(s.payouts, *p)
	return nil
}

func sameKey(a, b *string) bool { return a != nil && b != nil && *a == *b }

func (s *memStore) FindPayoutByTransfer(_ context.Context, code, ref string) (model.Payout, error) {
	p, err := s.findPayout(code, ref)
	if hook := s.takeAfterFind(); hook != nil {
		hook()
	}
	return p, err
}

func (s *memStore) findPayout(code, ref string) (model.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payouts {
		if (code != "" && p.TransferCode != nil && *p.TransferCode == code) ||
			(ref != "" && p.Reference != nil && *p.Reference == ref) {
			return p, nil
		}
	}
	return model.Payout{}, repository.ErrNotFound
}

func (s *memStore) takeAfterFind() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook := s.afterFind
	s.afterFind = nil
	return hook
}

// ModifyPayout holds the store lock across fn, standing in for the row
// lock the MySQL store takes.
func (s *memStore) ModifyPayout(_ context.Context, id string, fn func(p *model.Payout) bool) (model.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.payouts {
		if s.payouts[i].ID != id {
			continue
		}
		p := s.payouts[i]
		if fn(&p) {
			s.payouts[i] = p
			s.updates++
		}
		return p, nil
	}
	return model.Payout{}, repository.ErrNotFound
}

func (s *memStore) ListPayouts(_ context.Context, f model.PayoutFilter) ([]model.PayoutSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.PayoutSummary{}
	for i := len(s.payouts) - 1; i >= 0; i-- {
		p := s.payouts[i]
		if p.UserID != f.UserID || (f.ListingID != nil && (p.ListingID == nil || *p.ListingID != *f.ListingID)) {
			continue
		}
		out = append(out, model.PayoutSummary{ID: p.ID, Amount: p.Amount, Status: p.Status, ListingID: p.ListingID})
	}
	return out, nil
}

func (s *memStore) payout(i int) model.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payouts[i]
}

func (s *memStore) payoutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payouts)
}

type recordingPublisher struct {
	events []queue.PayoutUpdatedEvent
}

func (p *recordingPublisher) PublishPayoutUpdated(_ context.Context, ev queue.PayoutUpdatedEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newTestService() (*Service, *memStore, *fakeGateway, *recordingPublisher) {
	store := newMemStore()
	gw := &fakeGateway{
		resolved:   map[string]string{"0123456789": "ADA OBI", "9876543210": "ADA OBI", "5555555555": ""},
		transferTo: paystack.Transfer{ID: 77, Status: "pending", TransferCode: "TRF_1"},
	}
	pub := &recordingPublisher{}
	return NewService(gw, store, store, store, store, pub, testSecret), store, gw, pub
}
