package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// fakeSaleStore locks per sale, mirroring the row-lock semantics of the
// real store.
type fakeSaleStore struct {
	mu       sync.Mutex
	locks    map[uuid.UUID]*sync.Mutex
	sales    map[uuid.UUID]domain.Sale
	byAuc    map[uuid.UUID]uuid.UUID
	attempts map[uuid.UUID]GatewayAttempt
	resolved map[uuid.UUID]bool
}

func newFakeSaleStore() *fakeSaleStore {
	return &fakeSaleStore{
		locks:    make(map[uuid.UUID]*sync.Mutex),
		sales:    make(map[uuid.UUID]domain.Sale),
		byAuc:    make(map[uuid.UUID]uuid.UUID),
		attempts: make(map[uuid.UUID]GatewayAttempt),
		resolved: make(map[uuid.UUID]bool),
	}
}

func (s *fakeSaleStore) saleLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *fakeSaleStore) CreateSale(ctx context.Context, sale domain.Sale, evt domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAuc[sale.AuctionID]; ok {
		return domain.ErrConflict
	}
	s.sales[sale.ID] = sale
	s.byAuc[sale.AuctionID] = sale.ID
	return nil
}

func (s *fakeSaleStore) Sale(ctx context.Context, id uuid.UUID) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return sale, nil
}

func (s *fakeSaleStore) SaleByAuction(ctx context.Context, auctionID uuid.UUID) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAuc[auctionID]
	if !ok {
		return domain.Sale{}, domain.ErrNotFound
	}
	return s.sales[id], nil
}

func (s *fakeSaleStore) WithSaleLock(ctx context.Context, id uuid.UUID, fn func(sale domain.Sale) (domain.Sale, *domain.Event, error)) error {
	l := s.saleLock(id)
	l.Lock()
	defer l.Unlock()

	sale, err := s.Sale(ctx, id)
	if err != nil {
		return err
	}
	next, _, err := fn(sale)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sales[id] = next
	s.mu.Unlock()
	return nil
}

func (s *fakeSaleStore) RecordGatewayAttempt(ctx context.Context, att GatewayAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.SaleID == att.SaleID && existing.Operation == att.Operation {
			return domain.ErrConflict
		}
	}
	s.attempts[att.ID] = att
	return nil
}

func (s *fakeSaleStore) UnresolvedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]GatewayAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GatewayAttempt
	for id, att := range s.attempts {
		if !s.resolved[id] && !att.CreatedAt.After(olderThan) {
			out = append(out, att)
		}
	}
	return out, nil
}

func (s *fakeSaleStore) ResolveGatewayAttempt(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[id] = true
	return nil
}

type fakeAuctions struct {
	auctions map[uuid.UUID]domain.Auction
	winning  map[uuid.UUID]*domain.Bid
}

func (f *fakeAuctions) Auction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	a, ok := f.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAuctions) WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error) {
	return f.winning[auctionID], nil
}

type fakeGateway struct {
	mu          sync.Mutex
	chargeOut   string
	confirmed   map[string]bool
	confirmErr  error
	payoutErr   error
	payoutCalls int
	reverseErr  error
	reverses    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{chargeOut: OutcomeSucceeded, confirmed: make(map[string]bool)}
}

func (g *fakeGateway) Charge(ctx context.Context, amount decimal.Decimal, method, reference string) (GatewayResult, error) {
	return GatewayResult{TransactionRef: "txn-" + reference, Outcome: g.chargeOut}, nil
}

func (g *fakeGateway) ConfirmTransfer(ctx context.Context, reference string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return false, g.confirmErr
	}
	return g.confirmed[reference], nil
}

func (g *fakeGateway) Payout(ctx context.Context, sellerRef string, amount decimal.Decimal, reference string) (GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payoutCalls++
	if g.payoutErr != nil {
		return GatewayResult{}, g.payoutErr
	}
	return GatewayResult{TransactionRef: "txn-" + reference, Outcome: OutcomeSucceeded}, nil
}

func (g *fakeGateway) Reverse(ctx context.Context, buyerRef string, amount decimal.Decimal, reference string) (GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reverses++
	if g.reverseErr != nil {
		return GatewayResult{}, g.reverseErr
	}
	return GatewayResult{TransactionRef: "txn-" + reference, Outcome: OutcomeSucceeded}, nil
}

func testTerms() Terms {
	return Terms{
		CommissionRate: decimal.NewFromFloat(0.05),
		VATRate:        decimal.NewFromFloat(0.15),
		ServiceFees:    []domain.FeeItem{{Label: "platform_fee", Amount: decimal.NewFromInt(500)}},
	}
}

func newTestEngine(store *fakeSaleStore, auctions *fakeAuctions, gw Gateway) *Engine {
	return NewEngine(store, auctions, gw, nil, observability.NewLogger(), testTerms())
}

func completedAuction(winning decimal.Decimal) (*fakeAuctions, uuid.UUID) {
	a := domain.NewAuction(uuid.New(), uuid.New(), uuid.New(), false, decimal.NewFromInt(50000), decimal.NewFromInt(500))
	a.Status = domain.AuctionCompleted
	bid := domain.NewBid(a.ID, uuid.New(), winning)
	return &fakeAuctions{
		auctions: map[uuid.UUID]domain.Auction{a.ID: a},
		winning:  map[uuid.UUID]*domain.Bid{a.ID: &bid},
	}, a.ID
}

func mustCreateSale(t *testing.T, e *Engine, auctionID uuid.UUID) domain.Sale {
	t.Helper()
	sale, err := e.CreateForAuction(context.Background(), auctionID)
	if err != nil {
		t.Fatal(err)
	}
	if sale == nil {
		t.Fatal("expected a sale")
	}
	return *sale
}

func TestCreateForAuction(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	e := newTestEngine(store, auctions, newFakeGateway())
	ctx := context.Background()

	sale := mustCreateSale(t, e, auctionID)
	if !sale.CarPrice.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("car price: got %s", sale.CarPrice)
	}
	if sale.Phase1.Status != domain.Phase1Pending || sale.Phase2.Release != domain.ReleasePending {
		t.Fatalf("new sale not pending: %+v", sale)
	}
	if sale.VerificationCode == "" {
		t.Fatal("missing verification code")
	}

	// Second creation returns the existing sale, not a duplicate.
	again, err := e.CreateForAuction(ctx, auctionID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != sale.ID {
		t.Fatalf("expected existing sale %s, got %s", sale.ID, again.ID)
	}
}

func TestCreateForAuctionWithoutWinner(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(1))
	auctions.winning[auctionID] = nil
	e := newTestEngine(store, auctions, newFakeGateway())

	sale, err := e.CreateForAuction(context.Background(), auctionID)
	if err != nil {
		t.Fatal(err)
	}
	if sale != nil {
		t.Fatalf("no-bid auction must not settle, got %+v", sale)
	}
}

func TestCreateForAuctionRequiresCompleted(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(1))
	a := auctions.auctions[auctionID]
	a.Status = domain.AuctionLive
	auctions.auctions[auctionID] = a
	e := newTestEngine(store, auctions, newFakeGateway())

	_, err := e.CreateForAuction(context.Background(), auctionID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPhase1Recording(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	e := newTestEngine(store, auctions, newFakeGateway())
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)

	if err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-1", OutcomeSucceeded); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase1.Status != domain.Phase1Paid {
		t.Fatalf("expected PAID, got %s", got.Phase1.Status)
	}

	// Gateway retry with the same reference is absorbed.
	if err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-1", OutcomeSucceeded); err != nil {
		t.Fatalf("replay: %v", err)
	}

	// A different reference after settlement is a hard error.
	err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-2", OutcomeSucceeded)
	if !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestPhase1FailedOutcome(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	e := newTestEngine(store, auctions, newFakeGateway())
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)

	if err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-1", OutcomeFailed); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase1.Status != domain.Phase1Failed {
		t.Fatalf("expected FAILED, got %s", got.Phase1.Status)
	}
	if got.OverallStatus() != "awaiting payment" {
		t.Fatalf("unexpected overall status %q", got.OverallStatus())
	}
}

func TestVerifyEscrowGating(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)

	// Escrow cannot be verified before the service fees clear.
	err := e.VerifyEscrowTransfer(ctx, sale.ID)
	if !errors.Is(err, domain.ErrPhase1NotComplete) {
		t.Fatalf("expected ErrPhase1NotComplete, got %v", err)
	}

	if err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-1", OutcomeSucceeded); err != nil {
		t.Fatal(err)
	}

	// The gateway has not seen the transfer yet.
	err = e.VerifyEscrowTransfer(ctx, sale.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	gw.mu.Lock()
	gw.confirmed[sale.VerificationCode] = true
	gw.mu.Unlock()

	if err := e.VerifyEscrowTransfer(ctx, sale.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Status != domain.Phase2Verified {
		t.Fatalf("expected VERIFIED, got %s", got.Phase2.Status)
	}
	if got.OverallStatus() != "funds secured in escrow" {
		t.Fatalf("unexpected overall status %q", got.OverallStatus())
	}

	if err := e.VerifyEscrowTransfer(ctx, sale.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Sale(ctx, sale.ID)
	if got.Phase2.Status != domain.Phase2Paid {
		t.Fatalf("expected PAID, got %s", got.Phase2.Status)
	}

	err = e.VerifyEscrowTransfer(ctx, sale.ID)
	if !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal after PAID, got %v", err)
	}
}

func escrowedSale(t *testing.T, store *fakeSaleStore, e *Engine, gw *fakeGateway, auctionID uuid.UUID) domain.Sale {
	t.Helper()
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)
	if err := e.RecordPhase1Payment(ctx, sale.ID, "card", "txn-1", OutcomeSucceeded); err != nil {
		t.Fatal(err)
	}
	gw.mu.Lock()
	gw.confirmed[sale.VerificationCode] = true
	gw.mu.Unlock()
	for i := 0; i < 2; i++ {
		if err := e.VerifyEscrowTransfer(ctx, sale.ID); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := store.Sale(ctx, sale.ID)
	return got
}

func TestReleaseRequiresEscrowPaid(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	e := newTestEngine(store, auctions, newFakeGateway())
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)

	err := e.ReleaseFunds(ctx, sale.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReleaseFunds(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := escrowedSale(t, store, e, gw, auctionID)

	if err := e.ReleaseFunds(ctx, sale.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleaseReleased {
		t.Fatalf("expected RELEASED, got %s", got.Phase2.Release)
	}
	if got.OverallStatus() != "completed, funds released" {
		t.Fatalf("unexpected overall status %q", got.OverallStatus())
	}
	if gw.payoutCalls != 1 {
		t.Fatalf("expected 1 payout call, got %d", gw.payoutCalls)
	}

	// Released and refunded are mutually exclusive forever.
	if err := e.ReleaseFunds(ctx, sale.ID); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("second release: expected ErrAlreadyTerminal, got %v", err)
	}
	if err := e.RefundBuyer(ctx, sale.ID); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("refund after release: expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestConcurrentReleaseExactlyOnce(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	sale := escrowedSale(t, store, e, gw, auctionID)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.ReleaseFunds(context.Background(), sale.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one success, got %d", succeeded)
	}
	if gw.payoutCalls != 1 {
		t.Fatalf("expected exactly one payout call, got %d", gw.payoutCalls)
	}
}

func TestRefundBuyer(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := escrowedSale(t, store, e, gw, auctionID)

	if err := e.RefundBuyer(ctx, sale.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleaseRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.Phase2.Release)
	}
	if err := e.ReleaseFunds(ctx, sale.ID); !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("release after refund: expected ErrAlreadyTerminal, got %v", err)
	}
	if gw.reverses != 1 {
		t.Fatalf("expected 1 reverse call, got %d", gw.reverses)
	}
}

func TestRefundBeforeEscrow(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	e := newTestEngine(store, auctions, newFakeGateway())
	ctx := context.Background()
	sale := mustCreateSale(t, e, auctionID)

	err := e.RefundBuyer(ctx, sale.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPayoutFailureKeepsPending(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := escrowedSale(t, store, e, gw, auctionID)

	gw.mu.Lock()
	gw.payoutErr = errors.New("gateway timeout")
	gw.mu.Unlock()

	err := e.ReleaseFunds(ctx, sale.ID)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if !domain.Retryable(err) {
		t.Fatal("gateway failure must be retryable")
	}
	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleasePending {
		t.Fatalf("release must stay PENDING, got %s", got.Phase2.Release)
	}

	// The attempt trail exists for the reconciler.
	attempts, _ := store.UnresolvedAttempts(ctx, time.Now().Add(time.Minute), 10)
	if len(attempts) != 1 || attempts[0].Operation != "payout" {
		t.Fatalf("expected one payout attempt, got %+v", attempts)
	}

	// Once the gateway recovers a retry completes with the same reference.
	gw.mu.Lock()
	gw.payoutErr = nil
	gw.mu.Unlock()
	if err := e.ReleaseFunds(ctx, sale.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleaseReleased {
		t.Fatalf("expected RELEASED after retry, got %s", got.Phase2.Release)
	}
}

func TestReconcilerFinalizesOrphanedPayout(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := escrowedSale(t, store, e, gw, auctionID)

	// Simulate a crash after the payout landed externally but before the
	// local state write: the attempt row exists, the sale is still PENDING.
	reference := sale.VerificationCode + ":payout"
	att := GatewayAttempt{
		ID:        uuid.New(),
		SaleID:    sale.ID,
		Operation: "payout",
		Reference: reference,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.RecordGatewayAttempt(ctx, att); err != nil {
		t.Fatal(err)
	}
	gw.mu.Lock()
	gw.confirmed[reference] = true
	gw.mu.Unlock()

	r := NewReconciler(e, store, gw, observability.NewLogger(), 5*time.Minute)
	if err := r.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleaseReleased {
		t.Fatalf("expected RELEASED after reconcile, got %s", got.Phase2.Release)
	}
	if !store.resolved[att.ID] {
		t.Fatal("attempt should be resolved")
	}

	// Re-sweeping is a no-op.
	if err := r.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestReconcilerDropsUnlandedAttempt(t *testing.T) {
	store := newFakeSaleStore()
	auctions, auctionID := completedAuction(decimal.NewFromInt(300000))
	gw := newFakeGateway()
	e := newTestEngine(store, auctions, gw)
	ctx := context.Background()
	sale := escrowedSale(t, store, e, gw, auctionID)

	att := GatewayAttempt{
		ID:        uuid.New(),
		SaleID:    sale.ID,
		Operation: "refund",
		Reference: sale.VerificationCode + ":refund",
		CreatedAt: time.Now().Add(-time.Hour),
	}
	if err := store.RecordGatewayAttempt(ctx, att); err != nil {
		t.Fatal(err)
	}

	r := NewReconciler(e, store, gw, observability.NewLogger(), 5*time.Minute)
	if err := r.Sweep(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Sale(ctx, sale.ID)
	if got.Phase2.Release != domain.ReleasePending {
		t.Fatalf("unlanded attempt must not change state, got %s", got.Phase2.Release)
	}
	if !store.resolved[att.ID] {
		t.Fatal("unlanded attempt should still be resolved")
	}
}
