package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/settlement"
)

const saleColumns = `id, auction_id, verification_code, car_price, seller_id, buyer_id,
	partner_seller, commission_rate, vat_rate, partner_incentive,
	service_fees, deductions,
	phase1_status, phase1_gateway, phase1_tx_ref,
	phase2_status, release_status, created_at`

func scanSale(row pgx.Row) (domain.Sale, error) {
	var s domain.Sale
	var fees, deductions []byte
	err := row.Scan(&s.ID, &s.AuctionID, &s.VerificationCode, &s.CarPrice, &s.SellerID, &s.BuyerID,
		&s.PartnerSeller, &s.CommissionRate, &s.VATRate, &s.PartnerIncentive,
		&fees, &deductions,
		&s.Phase1.Status, &s.Phase1.Gateway, &s.Phase1.TransactionRef,
		&s.Phase2.Status, &s.Phase2.Release, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Sale{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(fees, &s.ServiceFees); err != nil {
		return domain.Sale{}, err
	}
	if err := json.Unmarshal(deductions, &s.Deductions); err != nil {
		return domain.Sale{}, err
	}
	return s, nil
}

// CreateSale inserts the sale snapshot and its creation event atomically.
// The unique constraint on auction_id guarantees at most one sale per
// auction; a duplicate insert surfaces as domain.ErrConflict.
func (r *Repository) CreateSale(ctx context.Context, s domain.Sale, evt domain.Event) error {
	fees, err := json.Marshal(feeItems(s.ServiceFees))
	if err != nil {
		return err
	}
	deductions, err := json.Marshal(feeItems(s.Deductions))
	if err != nil {
		return err
	}
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sales (`+saleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`, s.ID, s.AuctionID, s.VerificationCode, s.CarPrice, s.SellerID, s.BuyerID,
			s.PartnerSeller, s.CommissionRate, s.VATRate, s.PartnerIncentive,
			fees, deductions,
			s.Phase1.Status, s.Phase1.Gateway, s.Phase1.TransactionRef,
			s.Phase2.Status, s.Phase2.Release, s.CreatedAt)
		if err != nil {
			return err
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}

func (r *Repository) Sale(ctx context.Context, id uuid.UUID) (domain.Sale, error) {
	return scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (r *Repository) SaleByAuction(ctx context.Context, auctionID uuid.UUID) (domain.Sale, error) {
	return scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE auction_id = $1`, auctionID))
}

// WithSaleLock holds a row lock on the sale for the duration of fn,
// including any gateway call fn makes, and persists the returned phase
// fields and event atomically. A concurrent locker blocks until commit and
// then observes the terminal state.
func (r *Repository) WithSaleLock(ctx context.Context, id uuid.UUID, fn func(s domain.Sale) (domain.Sale, *domain.Event, error)) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		s, err := scanSale(tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		out, evt, err := fn(s)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE sales SET
				phase1_status = $2, phase1_gateway = $3, phase1_tx_ref = $4,
				phase2_status = $5, release_status = $6
			WHERE id = $1
		`, id, out.Phase1.Status, out.Phase1.Gateway, out.Phase1.TransactionRef,
			out.Phase2.Status, out.Phase2.Release)
		if err != nil {
			return err
		}
		if evt != nil {
			return r.insertOutboxTx(ctx, tx, *evt)
		}
		return nil
	})
}

func (r *Repository) RecordGatewayAttempt(ctx context.Context, att settlement.GatewayAttempt) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO gateway_attempts (id, sale_id, operation, reference, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sale_id, operation) DO NOTHING
	`, att.ID, att.SaleID, att.Operation, att.Reference, att.CreatedAt)
	return mapPgError(err)
}

func (r *Repository) UnresolvedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]settlement.GatewayAttempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, operation, reference, created_at
		FROM gateway_attempts
		WHERE resolved_at IS NULL AND created_at <= $1
		ORDER BY created_at ASC LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []settlement.GatewayAttempt
	for rows.Next() {
		var att settlement.GatewayAttempt
		if err := rows.Scan(&att.ID, &att.SaleID, &att.Operation, &att.Reference, &att.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, att)
	}
	return attempts, rows.Err()
}

func (r *Repository) ResolveGatewayAttempt(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE gateway_attempts SET resolved_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	return err
}

// feeItems normalizes nil slices to empty ones so the stored JSON is always
// an array.
func feeItems(items []domain.FeeItem) []domain.FeeItem {
	if items == nil {
		return []domain.FeeItem{}
	}
	return items
}
