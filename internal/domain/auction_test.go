package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func testAuction(status AuctionStatus, approved bool) Auction {
	a := NewAuction(uuid.New(), uuid.New(), uuid.New(), false, decimal.NewFromInt(50000), decimal.NewFromInt(500))
	a.Status = status
	a.ControlRoomApproved = approved
	return a
}

func TestAuctionCheckTransition(t *testing.T) {
	cases := []struct {
		name     string
		status   AuctionStatus
		approved bool
		to       AuctionStatus
		want     error
	}{
		{"scheduled to live without approval", AuctionScheduled, false, AuctionLive, ErrNotApproved},
		{"scheduled to live with approval", AuctionScheduled, true, AuctionLive, nil},
		{"live to live", AuctionLive, true, AuctionLive, ErrInvalidTransition},
		{"live to ended", AuctionLive, true, AuctionEnded, nil},
		{"scheduled to ended", AuctionScheduled, true, AuctionEnded, ErrInvalidTransition},
		{"ended to completed", AuctionEnded, true, AuctionCompleted, nil},
		{"live to completed", AuctionLive, true, AuctionCompleted, ErrInvalidTransition},
		{"scheduled to cancelled", AuctionScheduled, false, AuctionCancelled, nil},
		{"live to failed", AuctionLive, true, AuctionFailed, nil},
		{"completed to cancelled", AuctionCompleted, true, AuctionCancelled, ErrInvalidTransition},
		{"cancelled to failed", AuctionCancelled, false, AuctionFailed, ErrInvalidTransition},
		{"ended to scheduled", AuctionEnded, true, AuctionScheduled, ErrInvalidTransition},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := testAuction(c.status, c.approved)
			err := a.CheckTransition(c.to)
			if !errors.Is(err, c.want) {
				t.Errorf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestAuctionStreamApproval(t *testing.T) {
	a := testAuction(AuctionScheduled, true)
	if err := a.CheckStreamApproval(true); !errors.Is(err, ErrStreamNotEligible) {
		t.Errorf("scheduled auction: got %v, want ErrStreamNotEligible", err)
	}

	a = testAuction(AuctionLive, false)
	if err := a.CheckStreamApproval(true); !errors.Is(err, ErrStreamNotEligible) {
		t.Errorf("unapproved live auction: got %v, want ErrStreamNotEligible", err)
	}

	a = testAuction(AuctionLive, true)
	if err := a.CheckStreamApproval(true); err != nil {
		t.Errorf("approved live auction: got %v, want nil", err)
	}

	// Turning streaming off never requires control room approval.
	a = testAuction(AuctionLive, false)
	if err := a.CheckStreamApproval(false); err != nil {
		t.Errorf("disable on live auction: got %v, want nil", err)
	}
}

func TestAuctionOpeningPriceLock(t *testing.T) {
	a := testAuction(AuctionScheduled, false)
	if err := a.CheckOpeningPriceChange(); err != nil {
		t.Errorf("scheduled: got %v, want nil", err)
	}
	for _, status := range []AuctionStatus{AuctionLive, AuctionEnded, AuctionCompleted, AuctionCancelled, AuctionFailed} {
		a.Status = status
		if err := a.CheckOpeningPriceChange(); !errors.Is(err, ErrAuctionLocked) {
			t.Errorf("%s: got %v, want ErrAuctionLocked", status, err)
		}
	}
}

func TestSessionCheckTransition(t *testing.T) {
	cases := []struct {
		from SessionStatus
		to   SessionStatus
		want error
	}{
		{SessionScheduled, SessionActive, nil},
		{SessionActive, SessionActive, ErrInvalidTransition},
		{SessionActive, SessionCompleted, nil},
		{SessionScheduled, SessionCompleted, ErrInvalidTransition},
		{SessionScheduled, SessionCancelled, nil},
		{SessionActive, SessionCancelled, nil},
		{SessionCompleted, SessionCancelled, ErrInvalidTransition},
		{SessionCancelled, SessionActive, ErrInvalidTransition},
	}

	for _, c := range cases {
		s := NewSession("evening batch", time.Now())
		s.Status = c.from
		if err := s.CheckTransition(c.to); !errors.Is(err, c.want) {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, err, c.want)
		}
	}
}

func TestValidateBid(t *testing.T) {
	a := testAuction(AuctionLive, true)

	if err := ValidateBid(a, nil, decimal.NewFromInt(50000)); !errors.Is(err, ErrBidTooLow) {
		t.Errorf("bid equal to opening price: got %v, want ErrBidTooLow", err)
	}
	if err := ValidateBid(a, nil, decimal.NewFromInt(50500)); err != nil {
		t.Errorf("first bid above opening: got %v, want nil", err)
	}

	current := NewBid(a.ID, uuid.New(), decimal.NewFromInt(50500))
	if err := ValidateBid(a, &current, decimal.NewFromInt(50000)); !errors.Is(err, ErrBidTooLow) {
		t.Errorf("bid below current: got %v, want ErrBidTooLow", err)
	}
	if err := ValidateBid(a, &current, decimal.NewFromInt(50900)); !errors.Is(err, ErrBidTooLow) {
		t.Errorf("bid short of a full increment: got %v, want ErrBidTooLow", err)
	}
	if err := ValidateBid(a, &current, decimal.NewFromInt(51000)); err != nil {
		t.Errorf("bid of exactly one increment: got %v, want nil", err)
	}

	a.Status = AuctionScheduled
	if err := ValidateBid(a, nil, decimal.NewFromInt(60000)); !errors.Is(err, ErrAuctionNotLive) {
		t.Errorf("bid on scheduled auction: got %v, want ErrAuctionNotLive", err)
	}
}
