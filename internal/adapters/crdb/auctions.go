package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
)

const auctionColumns = `id, session_id, vehicle_id, seller_id, partner_seller, status,
	opening_price, min_increment, current_price, control_room_approved, approved_for_live`

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var a domain.Auction
	err := row.Scan(&a.ID, &a.SessionID, &a.VehicleID, &a.SellerID, &a.PartnerSeller, &a.Status,
		&a.OpeningPrice, &a.MinIncrement, &a.CurrentPrice, &a.ControlRoomApproved, &a.ApprovedForLive)
	if err == pgx.ErrNoRows {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

func (r *Repository) CreateAuction(ctx context.Context, a domain.Auction) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO auctions (`+auctionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, a.ID, a.SessionID, a.VehicleID, a.SellerID, a.PartnerSeller, a.Status,
			a.OpeningPrice, a.MinIncrement, a.CurrentPrice, a.ControlRoomApproved, a.ApprovedForLive)
		return err
	})
}

func (r *Repository) Auction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	return scanAuction(r.pool.QueryRow(ctx, `
		SELECT `+auctionColumns+` FROM auctions WHERE id = $1
	`, id))
}

// UpdateAuctionStatus performs a compare-and-set against the expected
// current status. Leaving LIVE clears approved_for_live in the same write:
// streaming cannot outlive the live state.
func (r *Repository) UpdateAuctionStatus(ctx context.Context, id uuid.UUID, from, to domain.AuctionStatus, evt domain.Event) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE auctions
			SET status = $3,
			    approved_for_live = CASE WHEN $3 = 'LIVE' THEN approved_for_live ELSE false END
			WHERE id = $1 AND status = $2
		`, id, from, to)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return r.casFailure(ctx, tx, "auctions", id)
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}

func (r *Repository) SetControlRoomApproval(ctx context.Context, id uuid.UUID, approved bool, evt domain.Event) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		// Revoking approval also stops any ongoing stream: approved_for_live
		// is only ever true while control_room_approved holds.
		result, err := tx.Exec(ctx, `
			UPDATE auctions
			SET control_room_approved = $2,
			    approved_for_live = approved_for_live AND $2
			WHERE id = $1
		`, id, approved)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}

// SetStreamApproval re-checks eligibility atomically with the write:
// turning streaming on requires a live, control-room-approved row at commit
// time, not just at the caller's read.
func (r *Repository) SetStreamApproval(ctx context.Context, id uuid.UUID, approved bool, evt domain.Event) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE auctions SET approved_for_live = $2
			WHERE id = $1 AND status = 'LIVE' AND (NOT $2 OR control_room_approved)
		`, id, approved)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			a, aerr := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
			if aerr != nil {
				return aerr
			}
			if err := a.CheckStreamApproval(approved); err != nil {
				return err
			}
			return domain.ErrConcurrentModification
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}

func (r *Repository) SetOpeningPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, evt domain.Event) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE auctions SET opening_price = $2
			WHERE id = $1 AND status = 'SCHEDULED'
		`, id, price)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			var status string
			err := tx.QueryRow(ctx, `SELECT status FROM auctions WHERE id = $1`, id).Scan(&status)
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}
			return domain.ErrAuctionLocked
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}
