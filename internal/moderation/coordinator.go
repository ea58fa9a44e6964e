package moderation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// Registry is the slice of the auction registry the coordinator fans out
// over.
type Registry interface {
	TransitionAuction(ctx context.Context, id uuid.UUID, to domain.AuctionStatus) error
	SetControlRoomApproval(ctx context.Context, id uuid.UUID, approved bool) error
	SetOpeningPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
}

// Result reports one item of a bulk operation. Bulk operations are never
// atomic across the batch: each item succeeds or fails on its own.
type Result struct {
	AuctionID uuid.UUID `json:"auction_id"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

// PriceOverride is one opening-price correction in a bulk override.
type PriceOverride struct {
	AuctionID uuid.UUID       `json:"auction_id"`
	Price     decimal.Decimal `json:"price"`
}

// Coordinator is the operator-facing bulk façade over the registry.
type Coordinator struct {
	registry Registry
	logger   observability.Logger
}

func NewCoordinator(registry Registry, logger observability.Logger) *Coordinator {
	return &Coordinator{registry: registry, logger: logger}
}

// BulkTransition applies the transition to every auction independently and
// reports per-item outcomes in input order. One invalid transition never
// blocks the valid ones.
func (c *Coordinator) BulkTransition(ctx context.Context, ids []uuid.UUID, to domain.AuctionStatus) []Result {
	return c.fanOut(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		return c.registry.TransitionAuction(ctx, id, to)
	})
}

// BulkApproveReject flips control-room approval on every auction
// independently.
func (c *Coordinator) BulkApproveReject(ctx context.Context, ids []uuid.UUID, approve bool) []Result {
	return c.fanOut(ctx, ids, func(ctx context.Context, id uuid.UUID) error {
		return c.registry.SetControlRoomApproval(ctx, id, approve)
	})
}

// BulkOpeningPrice applies opening-price overrides; auctions past the
// scheduled state report AUCTION_LOCKED.
func (c *Coordinator) BulkOpeningPrice(ctx context.Context, overrides []PriceOverride) []Result {
	results := make([]Result, len(overrides))
	var wg sync.WaitGroup
	for i, ov := range overrides {
		wg.Add(1)
		go func(i int, ov PriceOverride) {
			defer wg.Done()
			results[i] = c.resultFor(ov.AuctionID, c.registry.SetOpeningPrice(ctx, ov.AuctionID, ov.Price))
		}(i, ov)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) fanOut(ctx context.Context, ids []uuid.UUID, op func(ctx context.Context, id uuid.UUID) error) []Result {
	results := make([]Result, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			results[i] = c.resultFor(id, op(ctx, id))
		}(i, id)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) resultFor(id uuid.UUID, err error) Result {
	if err != nil {
		c.logger.WithField("auction_id", id.String()).Warn("bulk item failed: " + err.Error())
		return Result{AuctionID: id, OK: false, Error: domain.ErrorKind(err)}
	}
	return Result{AuctionID: id, OK: true}
}
