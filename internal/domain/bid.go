package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is an immutable record of an accepted bid. Amounts on one auction
// strictly increase in acceptance order.
type Bid struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
	PlacedAt  time.Time
}

func NewBid(auctionID, bidderID uuid.UUID, amount decimal.Decimal) Bid {
	return Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		PlacedAt:  time.Now().UTC(),
	}
}

// ValidateBid decides whether amount is acceptable against a fully committed
// prior state: the auction row and its current winning bid, both read under
// the same lock that serializes bid acceptance.
func ValidateBid(a Auction, current *Bid, amount decimal.Decimal) error {
	if a.Status != AuctionLive {
		return ErrAuctionNotLive
	}
	if current != nil {
		// At least one full increment over the standing bid.
		if amount.Cmp(current.Amount.Add(a.MinIncrement)) < 0 {
			return ErrBidTooLow
		}
		return nil
	}
	// The first bid must exceed the opening price.
	if amount.Cmp(a.OpeningPrice) <= 0 {
		return ErrBidTooLow
	}
	return nil
}
