package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Phase1Status string

const (
	Phase1Pending Phase1Status = "PENDING"
	Phase1Paid    Phase1Status = "PAID"
	Phase1Failed  Phase1Status = "FAILED"
)

func (s Phase1Status) Terminal() bool {
	return s == Phase1Paid || s == Phase1Failed
}

type Phase2Status string

const (
	Phase2Pending  Phase2Status = "PENDING"
	Phase2Verified Phase2Status = "VERIFIED"
	Phase2Paid     Phase2Status = "PAID"
)

type ReleaseStatus string

const (
	ReleasePending  ReleaseStatus = "PENDING"
	ReleaseReleased ReleaseStatus = "RELEASED"
	ReleaseRefunded ReleaseStatus = "REFUNDED"
)

func (s ReleaseStatus) Terminal() bool {
	return s == ReleaseReleased || s == ReleaseRefunded
}

// FeeItem is one itemized charge or deduction shown on the settlement
// statement.
type FeeItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

func SumFeeItems(items []FeeItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}

type Phase1State struct {
	Status         Phase1Status
	Gateway        string
	TransactionRef string
}

type Phase2State struct {
	Status  Phase2Status
	Release ReleaseStatus
}

// Sale is the settlement record created exactly once when an auction
// completes with a winning bid. All rate and price fields are snapshots
// taken at creation time; every later computation reads only from them so
// re-running the breakdown is always reproducible.
type Sale struct {
	ID               uuid.UUID
	AuctionID        uuid.UUID
	VerificationCode string
	CarPrice         decimal.Decimal
	SellerID         uuid.UUID
	BuyerID          uuid.UUID
	PartnerSeller    bool
	CommissionRate   decimal.Decimal
	VATRate          decimal.Decimal
	PartnerIncentive decimal.Decimal
	ServiceFees      []FeeItem
	Deductions       []FeeItem
	Phase1           Phase1State
	Phase2           Phase2State
	CreatedAt        time.Time
}

// SaleTerms carries the platform-level snapshot inputs for a new Sale.
type SaleTerms struct {
	CommissionRate   decimal.Decimal
	VATRate          decimal.Decimal
	PartnerIncentive decimal.Decimal
	ServiceFees      []FeeItem
	Deductions       []FeeItem
}

// NewSale snapshots the auction outcome and platform terms into a Sale.
// The winning bid amount becomes the immutable car price.
func NewSale(a Auction, winning Bid, terms SaleTerms) Sale {
	incentive := decimal.Zero
	if !a.PartnerSeller {
		incentive = terms.PartnerIncentive
	}
	return Sale{
		ID:               uuid.New(),
		AuctionID:        a.ID,
		VerificationCode: NewVerificationCode(),
		CarPrice:         winning.Amount,
		SellerID:         a.SellerID,
		BuyerID:          winning.BidderID,
		PartnerSeller:    a.PartnerSeller,
		CommissionRate:   terms.CommissionRate,
		VATRate:          terms.VATRate,
		PartnerIncentive: incentive,
		ServiceFees:      terms.ServiceFees,
		Deductions:       terms.Deductions,
		Phase1:           Phase1State{Status: Phase1Pending},
		Phase2:           Phase2State{Status: Phase2Pending, Release: ReleasePending},
		CreatedAt:        time.Now().UTC(),
	}
}

// NewVerificationCode returns the opaque human-facing escrow reference.
func NewVerificationCode() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return strings.ToUpper(uuid.NewString()[:10])
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// OverallStatus derives the display status from the phase fields; first
// match wins.
func (s Sale) OverallStatus() string {
	switch {
	case s.Phase2.Release == ReleaseReleased:
		return "completed, funds released"
	case s.Phase2.Status == Phase2Verified || s.Phase2.Status == Phase2Paid:
		return "funds secured in escrow"
	case s.Phase1.Status == Phase1Paid:
		return "fees paid, awaiting escrow"
	default:
		return "awaiting payment"
	}
}
