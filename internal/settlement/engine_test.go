package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/rental-settlement/internal/apperr"
	"github.com/iliyamo/rental-settlement/internal/coupon"
	"github.com/iliyamo/rental-settlement/internal/lock"
	"github.com/iliyamo/rental-settlement/internal/model"
	"github.com/iliyamo/rental-settlement/internal/paystack"
	"github.com/iliyamo/rental-settlement/internal/queue"
	"github.com/iliyamo/rental-settlement/internal/repository"
)

// fakeStore keeps committed state in maps. InListingTx serializes per
// listing and stages writes so a failing fn leaves nothing behind.
type fakeStore struct {
	mu       sync.Mutex
	listings map[string]model.Listing
	bookings []model.Booking
	payments map[string]model.Payment
	coupons  map[string]model.Coupon
	locks    map[string]*sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings: map[string]model.Listing{
			"listing-1": {ID: "listing-1", OwnerID: "host-1", BasePrice: 100, Published: true},
			"draft":     {ID: "draft", OwnerID: "host-1", BasePrice: 100},
		},
		payments: map[string]model.Payment{},
		coupons:  map[string]model.Coupon{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (s *fakeStore) GetListing(_ context.Context, id string) (model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return model.Listing{}, repository.ErrNotFound
	}
	return l, nil
}

func overlaps(bookings []model.Booking, listingID string, r model.DateRange) bool {
	for _, b := range bookings {
		if b.ListingID == listingID && b.Blocking() && b.Range().Overlaps(r) {
			return true
		}
	}
	return false
}

func (s *fakeStore) HasOverlap(_ context.Context, listingID string, r model.DateRange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return overlaps(s.bookings, listingID, r), nil
}

func (s *fakeStore) PaymentReferenceUsed(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.payments[ref]
	return ok, nil
}

func (s *fakeStore) InListingTx(ctx context.Context, listingID string, fn func(repository.SettlementTx) error) error {
	s.mu.Lock()
	if _, ok := s.listings[listingID]; !ok {
		s.mu.Unlock()
		return repository.ErrNotFound
	}
	l, ok := s.locks[listingID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[listingID] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	tx := &fakeTx{store: s, coupons: map[string]model.Coupon{}}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.payments {
		if _, dup := s.payments[p.TransactionRef]; dup {
			return repository.ErrDuplicate
		}
	}
	for _, p := range tx.payments {
		s.payments[p.TransactionRef] = p
	}
	s.bookings = append(s.bookings, tx.bookings...)
	for id, c := range tx.coupons {
		s.coupons[id] = c
	}
	return nil
}

// coupon.Store for the real ledger.

func (s *fakeStore) GetByCode(_ context.Context, code string) (model.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.Code == code {
			return c, nil
		}
	}
	return model.Coupon{}, repository.ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id string) (model.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	if !ok {
		return model.Coupon{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status model.CouponStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coupons[id]
	c.Status = status
	s.coupons[id] = c
	return nil
}

func (s *fakeStore) Create(context.Context, *model.Coupon) error { return nil }
func (s *fakeStore) Modify(context.Context, string, func(*model.Coupon) error) (model.Coupon, error) {
	return model.Coupon{}, nil
}
func (s *fakeStore) List(context.Context, model.CouponFilter) ([]model.Coupon, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) coupon(id string) model.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[id]
}

func (s *fakeStore) counts() (bookings, payments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings), len(s.payments)
}

type fakeTx struct {
	store    *fakeStore
	payments []model.Payment
	bookings []model.Booking
	coupons  map[string]model.Coupon
}

func (t *fakeTx) HasOverlap(_ context.Context, listingID string, r model.DateRange) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return overlaps(t.store.bookings, listingID, r) || overlaps(t.bookings, listingID, r), nil
}

func (t *fakeTx) GetCouponForUpdate(_ context.Context, id string) (model.Coupon, error) {
	if c, ok := t.coupons[id]; ok {
		return c, nil
	}
	return t.store.GetByID(context.Background(), id)
}

func (t *fakeTx) SetCouponBalance(_ context.Context, id string, remaining int64, status model.CouponStatus) error {
	c, err := t.GetCouponForUpdate(context.Background(), id)
	if err != nil {
		return err
	}
	c.RemainingAmount = remaining
	c.Status = status
	t.coupons[id] = c
	return nil
}

func (t *fakeTx) InsertPayment(_ context.Context, p *model.Payment) error {
	if used, _ := t.store.PaymentReferenceUsed(context.Background(), p.TransactionRef); used {
		return repository.ErrDuplicate
	}
	t.payments = append(t.payments, *p)
	return nil
}

func (t *fakeTx) InsertBooking(_ context.Context, b *model.Booking) error {
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	t.bookings = append(t.bookings, *b)
	return nil
}

// fakeGateway knows a fixed set of successful charges.
type fakeGateway struct {
	mu       sync.Mutex
	charges  map[string]int64
	calls    int
	err      error
	onVerify func()
}

func (g *fakeGateway) VerifyPayment(_ context.Context, ref string, expected int64) (paystack.Transaction, error) {
	g.mu.Lock()
	g.calls++
	hook := g.onVerify
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if g.err != nil {
		return paystack.Transaction{}, g.err
	}
	amount, ok := g.charges[ref]
	if !ok {
		return paystack.Transaction{}, apperr.New(apperr.GatewayFailure, "transaction not found")
	}
	tx := paystack.Transaction{Reference: ref, Status: "success", Amount: amount, Channel: "card", Currency: "NGN"}
	if err := paystack.CheckPayment(tx, expected); err != nil {
		return paystack.Transaction{}, err
	}
	return tx, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.BookingSettledEvent
}

func (p *recordingPublisher) PublishBookingSettled(_ context.Context, ev queue.BookingSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, lock.ErrLocked
}

func strPtr(s string) *string { return &s }

func activeCoupon(id, code string, remaining int64) model.Coupon {
	return model.Coupon{ID: id, Code: code, Amount: 500, RemainingAmount: remaining, Status: model.CouponActive}
}

func newTestEngine(store *fakeStore, gw *fakeGateway, pub *recordingPublisher) *Engine {
	var p Publisher
	if pub != nil {
		p = pub
	}
	return NewEngine(store, coupon.NewLedger(store), gw, nil, p, time.Second)
}

func request(ref, code *string) Request {
	return Request{
		ListingID:        "listing-1",
		Start:            "2025-06-01",
		End:              "2025-06-04",
		PaymentReference: ref,
		CouponCode:       code,
		RequesterID:      "guest-1",
	}
}

func TestSettleWithPaymentOnly(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{charges: map[string]int64{"ref-300": 300}}
	pub := &recordingPublisher{}
	eng := newTestEngine(store, gw, pub)

	b, err := eng.Settle(context.Background(), request(strPtr("ref-300"), nil))
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.TotalAmount)
	assert.Equal(t, int64(0), b.CouponDiscount)
	assert.Equal(t, model.BookingBooked, b.Status)
	require.NotNil(t, b.PaymentID)
	assert.Nil(t, b.CouponID)

	bookings, payments := store.counts()
	assert.Equal(t, 1, bookings)
	assert.Equal(t, 1, payments)
	assert.Equal(t, int64(300), store.payments["ref-300"].Amount)
	assert.Equal(t, model.PaymentTypeIncoming, store.payments["ref-300"].Type)

	require.Len(t, pub.events, 1)
	assert.Equal(t, b.ID, pub.events[0].BookingID)
	assert.Equal(t, int64(300), pub.events[0].AmountPaid)
}

func TestSettleWithPartialCoupon(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "HALF", 50)
	gw := &fakeGateway{charges: map[string]int64{"ref-250": 250}}
	eng := newTestEngine(store, gw, nil)

	b, err := eng.Settle(context.Background(), request(strPtr("ref-250"), strPtr("half")))
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.TotalAmount)
	assert.Equal(t, int64(50), b.CouponDiscount)
	require.NotNil(t, b.CouponID)
	assert.Equal(t, "c1", *b.CouponID)

	c := store.coupon("c1")
	assert.Equal(t, int64(0), c.RemainingAmount)
	assert.Equal(t, model.CouponExhausted, c.Status)
}

func TestSettleFullyCoveredByCoupon(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "BIG", 500)
	gw := &fakeGateway{charges: map[string]int64{}}
	eng := newTestEngine(store, gw, nil)

	b, err := eng.Settle(context.Background(), request(nil, strPtr("BIG")))
	require.NoError(t, err)
	assert.Equal(t, int64(300), b.CouponDiscount)
	assert.Nil(t, b.PaymentID)
	assert.Equal(t, 0, gw.callCount())

	c := store.coupon("c1")
	assert.Equal(t, int64(200), c.RemainingAmount)
	assert.Equal(t, model.CouponActive, c.Status)
}

func TestSettleIgnoresReferenceWhenNothingOutstanding(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "BIG", 500)
	gw := &fakeGateway{charges: map[string]int64{}}
	eng := newTestEngine(store, gw, nil)

	b, err := eng.Settle(context.Background(), request(strPtr("unused-ref"), strPtr("BIG")))
	require.NoError(t, err)
	assert.Nil(t, b.PaymentID)
	assert.Equal(t, 0, gw.callCount())
	_, payments := store.counts()
	assert.Equal(t, 0, payments)
}

func TestSettleConcurrentOverlapOnlyOneWins(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{charges: map[string]int64{"ref-a": 300, "ref-b": 300}}
	eng := newTestEngine(store, gw, nil)

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, 2)
	for i, ref := range []string{"ref-a", "ref-b"} {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			<-start
			_, errs[i] = eng.Settle(context.Background(), request(strPtr(ref), nil))
		}(i, ref)
	}
	close(start)
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.Conflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	bookings, payments := store.counts()
	assert.Equal(t, 1, bookings)
	assert.Equal(t, 1, payments)
}

func TestSettleAdjacentStaysDoNotConflict(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{charges: map[string]int64{"ref-a": 300, "ref-b": 200}}
	eng := newTestEngine(store, gw, nil)

	_, err := eng.Settle(context.Background(), request(strPtr("ref-a"), nil))
	require.NoError(t, err)

	next := request(strPtr("ref-b"), nil)
	next.Start, next.End = "2025-06-04", "2025-06-06"
	_, err = eng.Settle(context.Background(), next)
	require.NoError(t, err)

	overlapping := request(strPtr("ref-c"), nil)
	overlapping.Start, overlapping.End = "2025-06-03", "2025-06-05"
	_, err = eng.Settle(context.Background(), overlapping)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, "apartment already booked for selected dates", apperr.Message(err))
}

func TestSettleRollsBackWhenCouponMovesMidway(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "HALF", 50)
	gw := &fakeGateway{charges: map[string]int64{"ref-250": 250}}
	// another redemption lands between validation and the transaction
	gw.onVerify = func() {
		store.mu.Lock()
		c := store.coupons["c1"]
		c.RemainingAmount = 10
		store.coupons["c1"] = c
		store.mu.Unlock()
	}
	eng := newTestEngine(store, gw, nil)

	_, err := eng.Settle(context.Background(), request(strPtr("ref-250"), strPtr("HALF")))
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, "coupon balance changed, please retry", apperr.Message(err))

	bookings, payments := store.counts()
	assert.Equal(t, 0, bookings)
	assert.Equal(t, 0, payments)
	assert.Equal(t, int64(10), store.coupon("c1").RemainingAmount)
}

func TestSettleValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		kind   apperr.Kind
		msg    string
	}{
		{"bad date", func(r *Request) { r.Start = "June 1" }, apperr.InvalidArgument, "invalid booking dates supplied"},
		{"end before start", func(r *Request) { r.End = "2025-05-30" }, apperr.InvalidArgument, "end date must be after start date"},
		{"same day", func(r *Request) { r.End = r.Start }, apperr.InvalidArgument, "end date must be after start date"},
		{"nothing to pay with", func(r *Request) { r.PaymentReference = nil; r.CouponCode = nil }, apperr.InvalidArgument, "a payment reference or coupon code is required"},
		{"blank reference", func(r *Request) { r.PaymentReference = strPtr("  ") }, apperr.InvalidArgument, "a payment reference or coupon code is required"},
		{"missing listing", func(r *Request) { r.ListingID = "nope" }, apperr.NotFound, "apartment not found"},
		{"unpublished listing", func(r *Request) { r.ListingID = "draft" }, apperr.InvalidState, "apartment not available"},
		{"unknown coupon", func(r *Request) { r.CouponCode = strPtr("NOPE") }, apperr.NotFound, "coupon not found"},
		{"amount mismatch", func(r *Request) { r.PaymentReference = strPtr("ref-299") }, apperr.Forbidden, "amount paid does not match outstanding amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			gw := &fakeGateway{charges: map[string]int64{"ref-300": 300, "ref-299": 299}}
			eng := newTestEngine(store, gw, nil)

			req := request(strPtr("ref-300"), nil)
			tt.mutate(&req)
			_, err := eng.Settle(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.msg, apperr.Message(err))

			bookings, payments := store.counts()
			assert.Zero(t, bookings)
			assert.Zero(t, payments)
		})
	}
}

func TestSettleCouponShortfallNeedsReference(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "HALF", 50)
	eng := newTestEngine(store, &fakeGateway{}, nil)

	_, err := eng.Settle(context.Background(), request(nil, strPtr("HALF")))
	assert.Equal(t, apperr.InvalidArgument, apperr.KindOf(err))
	assert.Equal(t, "payment reference is required for the outstanding amount", apperr.Message(err))
	assert.Equal(t, int64(50), store.coupon("c1").RemainingAmount)
}

func TestSettleGatewayFailureWritesNothing(t *testing.T) {
	store := newFakeStore()
	store.coupons["c1"] = activeCoupon("c1", "HALF", 50)
	gw := &fakeGateway{err: apperr.New(apperr.GatewayFailure, "payment gateway unavailable")}
	eng := newTestEngine(store, gw, nil)

	_, err := eng.Settle(context.Background(), request(strPtr("ref-250"), strPtr("HALF")))
	assert.Equal(t, apperr.GatewayFailure, apperr.KindOf(err))
	bookings, payments := store.counts()
	assert.Zero(t, bookings)
	assert.Zero(t, payments)
	assert.Equal(t, int64(50), store.coupon("c1").RemainingAmount)
}

func TestSettleRejectsReusedReference(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{charges: map[string]int64{"ref-300": 300}}
	eng := newTestEngine(store, gw, nil)

	_, err := eng.Settle(context.Background(), request(strPtr("ref-300"), nil))
	require.NoError(t, err)

	later := request(strPtr("ref-300"), nil)
	later.Start, later.End = "2025-07-01", "2025-07-04"
	_, err = eng.Settle(context.Background(), later)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, "payment reference already used", apperr.Message(err))
	assert.Equal(t, 1, gw.callCount())
}

func TestSettleLockHeldElsewhere(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{charges: map[string]int64{"ref-300": 300}}
	eng := NewEngine(store, coupon.NewLedger(store), gw, heldLocker{}, nil, time.Second)

	_, err := eng.Settle(context.Background(), request(strPtr("ref-300"), nil))
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.Equal(t, "another booking for this apartment is in progress", apperr.Message(err))
	assert.Equal(t, 0, gw.callCount())
}
