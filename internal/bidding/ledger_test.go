package bidding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// memStore serializes PlaceBid with a mutex, the same guarantee the real
// store gives with a row lock.
type memStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]domain.Auction
	bids     map[uuid.UUID][]domain.Bid
}

func newMemStore() *memStore {
	return &memStore{
		auctions: make(map[uuid.UUID]domain.Auction),
		bids:     make(map[uuid.UUID][]domain.Bid),
	}
}

func (s *memStore) PlaceBid(ctx context.Context, auctionID uuid.UUID, decide func(a domain.Auction, current *domain.Bid) (domain.Bid, domain.Event, error)) (domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return domain.Bid{}, domain.ErrNotFound
	}
	current := s.winning(auctionID)

	bid, _, err := decide(a, current)
	if err != nil {
		return domain.Bid{}, err
	}
	s.bids[auctionID] = append(s.bids[auctionID], bid)
	a.CurrentPrice = bid.Amount
	s.auctions[auctionID] = a
	return bid, nil
}

func (s *memStore) winning(auctionID uuid.UUID) *domain.Bid {
	var best *domain.Bid
	for i := range s.bids[auctionID] {
		b := s.bids[auctionID][i]
		if best == nil || b.Amount.GreaterThan(best.Amount) {
			best = &b
		}
	}
	return best
}

func (s *memStore) WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winning(auctionID), nil
}

func (s *memStore) Bids(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Bid(nil), s.bids[auctionID]...), nil
}

func liveAuction(opening, increment int64) domain.Auction {
	a := domain.NewAuction(uuid.New(), uuid.New(), uuid.New(), false, decimal.NewFromInt(opening), decimal.NewFromInt(increment))
	a.Status = domain.AuctionLive
	return a
}

func TestPlaceBidRequiresLiveAuction(t *testing.T) {
	store := newMemStore()
	a := liveAuction(50000, 500)
	a.Status = domain.AuctionScheduled
	store.auctions[a.ID] = a

	ledger := NewLedger(store, nil, observability.NewLogger())
	_, err := ledger.PlaceBid(context.Background(), a.ID, uuid.New(), decimal.NewFromInt(60000))
	if !errors.Is(err, domain.ErrAuctionNotLive) {
		t.Fatalf("expected ErrAuctionNotLive, got %v", err)
	}
}

func TestPlaceBidFloor(t *testing.T) {
	store := newMemStore()
	a := liveAuction(50000, 500)
	store.auctions[a.ID] = a
	ledger := NewLedger(store, nil, observability.NewLogger())
	ctx := context.Background()

	// First bid must exceed the opening price.
	if _, err := ledger.PlaceBid(ctx, a.ID, uuid.New(), decimal.NewFromInt(50000)); !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("bid at opening price: expected ErrBidTooLow, got %v", err)
	}
	if _, err := ledger.PlaceBid(ctx, a.ID, uuid.New(), decimal.NewFromInt(50500)); err != nil {
		t.Fatalf("first valid bid: %v", err)
	}

	// Next bid must clear winning amount plus the increment.
	if _, err := ledger.PlaceBid(ctx, a.ID, uuid.New(), decimal.NewFromInt(50900)); !errors.Is(err, domain.ErrBidTooLow) {
		t.Fatalf("bid below increment: expected ErrBidTooLow, got %v", err)
	}
	// Exactly one increment over the standing bid is acceptable.
	bid, err := ledger.PlaceBid(ctx, a.ID, uuid.New(), decimal.NewFromInt(51000))
	if err != nil {
		t.Fatalf("second valid bid: %v", err)
	}
	if !bid.Amount.Equal(decimal.NewFromInt(51000)) {
		t.Fatalf("unexpected bid amount %s", bid.Amount)
	}

	winning, err := ledger.WinningBid(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if winning == nil || !winning.Amount.Equal(decimal.NewFromInt(51000)) {
		t.Fatalf("unexpected winning bid %+v", winning)
	}
}

func TestPlaceBidConcurrentSameAmount(t *testing.T) {
	store := newMemStore()
	a := liveAuction(50000, 500)
	store.auctions[a.ID] = a
	ledger := NewLedger(store, nil, observability.NewLogger())

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.PlaceBid(context.Background(), a.ID, uuid.New(), decimal.NewFromInt(50500))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else if !errors.Is(err, domain.ErrBidTooLow) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted bid, got %d", accepted)
	}

	bids, err := ledger.History(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 {
		t.Fatalf("expected 1 recorded bid, got %d", len(bids))
	}
}

func TestHistoryPreservesAcceptanceOrder(t *testing.T) {
	store := newMemStore()
	a := liveAuction(1000, 100)
	store.auctions[a.ID] = a
	ledger := NewLedger(store, nil, observability.NewLogger())
	ctx := context.Background()

	amounts := []int64{1100, 1200, 1500}
	for _, amt := range amounts {
		if _, err := ledger.PlaceBid(ctx, a.ID, uuid.New(), decimal.NewFromInt(amt)); err != nil {
			t.Fatalf("bid %d: %v", amt, err)
		}
	}

	bids, err := ledger.History(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 3 {
		t.Fatalf("expected 3 bids, got %d", len(bids))
	}
	for i, amt := range amounts {
		if !bids[i].Amount.Equal(decimal.NewFromInt(amt)) {
			t.Fatalf("bid %d: expected %d, got %s", i, amt, bids[i].Amount)
		}
	}
}
