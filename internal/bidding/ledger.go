package bidding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// Store serializes bid acceptance per auction: PlaceBid runs the decide
// callback while holding an exclusive lock on the auction, with the auction
// row and current winning bid read under that lock. On a nil callback
// result it persists the bid, updates the auction's current-price
// projection and writes the event, all in the same transaction.
type Store interface {
	PlaceBid(ctx context.Context, auctionID uuid.UUID, decide func(a domain.Auction, current *domain.Bid) (domain.Bid, domain.Event, error)) (domain.Bid, error)
	WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error)
	Bids(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error)
}

type Audit interface {
	LogEvent(ctx context.Context, action string, subjectID uuid.UUID, data map[string]interface{}) error
}

// Ledger owns per-auction bid history and enforces monotonic-increasing
// acceptance.
type Ledger struct {
	store  Store
	audit  Audit
	logger observability.Logger
}

func NewLedger(store Store, audit Audit, logger observability.Logger) *Ledger {
	return &Ledger{store: store, audit: audit, logger: logger}
}

// PlaceBid accepts a bid when the auction is live and the amount clears the
// current winning amount plus the auction's minimum increment (or the
// opening price when no bid exists yet). Acceptance is serialized per
// auction so the comparison always runs against committed state.
func (l *Ledger) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (domain.Bid, error) {
	bid, err := l.store.PlaceBid(ctx, auctionID, func(a domain.Auction, current *domain.Bid) (domain.Bid, domain.Event, error) {
		if err := domain.ValidateBid(a, current, amount); err != nil {
			return domain.Bid{}, domain.Event{}, err
		}
		b := domain.NewBid(auctionID, bidderID, amount)
		evt := domain.NewEvent("bid.placed", "auction", auctionID, map[string]interface{}{
			"bid_id":     b.ID,
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     amount.String(),
		})
		return b, evt, nil
	})
	if err != nil {
		observability.BidsRejected.Inc()
		return domain.Bid{}, err
	}

	observability.BidsAccepted.Inc()
	if l.audit != nil {
		if aerr := l.audit.LogEvent(ctx, "bid.placed", bid.ID, map[string]interface{}{
			"auction_id": auctionID,
			"bidder_id":  bidderID,
			"amount":     amount.String(),
		}); aerr != nil {
			l.logger.WithField("auction_id", auctionID.String()).Error("audit log failed", aerr)
		}
	}
	return bid, nil
}

// WinningBid returns the highest recorded bid, or nil when the auction
// never received one.
func (l *Ledger) WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error) {
	return l.store.WinningBid(ctx, auctionID)
}

// History returns the accepted bids in acceptance order.
func (l *Ledger) History(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	return l.store.Bids(ctx, auctionID)
}
