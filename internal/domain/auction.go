package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionScheduled AuctionStatus = "SCHEDULED"
	AuctionLive      AuctionStatus = "LIVE"
	AuctionEnded     AuctionStatus = "ENDED"
	AuctionCompleted AuctionStatus = "COMPLETED"
	AuctionCancelled AuctionStatus = "CANCELLED"
	AuctionFailed    AuctionStatus = "FAILED"
)

func (s AuctionStatus) Terminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled || s == AuctionFailed
}

// Auction is a single vehicle lot inside a session.
//
// Invariant: ApprovedForLive implies Status == LIVE implies
// ControlRoomApproved.
type Auction struct {
	ID                  uuid.UUID
	SessionID           uuid.UUID
	VehicleID           uuid.UUID
	SellerID            uuid.UUID
	PartnerSeller       bool
	Status              AuctionStatus
	OpeningPrice        decimal.Decimal
	MinIncrement        decimal.Decimal
	CurrentPrice        decimal.Decimal
	ControlRoomApproved bool
	ApprovedForLive     bool
}

func NewAuction(sessionID, vehicleID, sellerID uuid.UUID, partner bool, openingPrice, minIncrement decimal.Decimal) Auction {
	return Auction{
		ID:            uuid.New(),
		SessionID:     sessionID,
		VehicleID:     vehicleID,
		SellerID:      sellerID,
		PartnerSeller: partner,
		Status:        AuctionScheduled,
		OpeningPrice:  openingPrice,
		MinIncrement:  minIncrement,
		CurrentPrice:  decimal.Zero,
	}
}

// CheckTransition validates an auction status change against the current
// persisted state. The caller still performs the write as a compare-and-set
// against the status this check was made with.
func (a Auction) CheckTransition(to AuctionStatus) error {
	switch to {
	case AuctionLive:
		if a.Status != AuctionScheduled {
			return ErrInvalidTransition
		}
		if !a.ControlRoomApproved {
			return ErrNotApproved
		}
	case AuctionEnded:
		if a.Status != AuctionLive {
			return ErrInvalidTransition
		}
	case AuctionCompleted:
		if a.Status != AuctionEnded {
			return ErrInvalidTransition
		}
	case AuctionCancelled, AuctionFailed:
		if a.Status.Terminal() {
			return ErrInvalidTransition
		}
	default:
		return ErrInvalidTransition
	}
	return nil
}

// CheckStreamApproval validates flipping the "streaming now" flag. Turning
// it on requires a live, control-room-approved auction; turning it off only
// requires the auction to be live.
func (a Auction) CheckStreamApproval(approve bool) error {
	if a.Status != AuctionLive {
		return ErrStreamNotEligible
	}
	if approve && !a.ControlRoomApproved {
		return ErrStreamNotEligible
	}
	return nil
}

// CheckOpeningPriceChange validates an opening price write. The price is
// frozen once the auction leaves SCHEDULED.
func (a Auction) CheckOpeningPriceChange() error {
	if a.Status != AuctionScheduled {
		return ErrAuctionLocked
	}
	return nil
}
