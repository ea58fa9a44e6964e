package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ameernasser/auctionhouse/internal/domain"
)

// PlaceBid serializes bid acceptance per auction with a row lock on the
// auction: the decide callback always sees a fully committed prior state.
// The accepted bid, the current-price projection and the outbox event are
// committed atomically.
func (r *Repository) PlaceBid(ctx context.Context, auctionID uuid.UUID, decide func(a domain.Auction, current *domain.Bid) (domain.Bid, domain.Event, error)) (domain.Bid, error) {
	var bid domain.Bid
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		a, err := scanAuction(tx.QueryRow(ctx, `
			SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE
		`, auctionID))
		if err != nil {
			return err
		}

		current, err := winningBidTx(ctx, tx, auctionID)
		if err != nil {
			return err
		}

		b, evt, err := decide(a, current)
		if err != nil {
			return err
		}
		bid = b

		_, err = tx.Exec(ctx, `
			INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, b.AuctionID, b.BidderID, b.Amount, b.PlacedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE auctions SET current_price = $2 WHERE id = $1
		`, auctionID, b.Amount)
		if err != nil {
			return err
		}

		return r.insertOutboxTx(ctx, tx, evt)
	})
	if err != nil {
		return domain.Bid{}, err
	}
	return bid, nil
}

func winningBidTx(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*domain.Bid, error) {
	var b domain.Bid
	err := tx.QueryRow(ctx, `
		SELECT id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE auction_id = $1
		ORDER BY amount DESC LIMIT 1
	`, auctionID).Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error) {
	var b domain.Bid
	err := r.pool.QueryRow(ctx, `
		SELECT id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE auction_id = $1
		ORDER BY amount DESC LIMIT 1
	`, auctionID).Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) Bids(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount, placed_at
		FROM bids WHERE auction_id = $1
		ORDER BY placed_at ASC
	`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}
