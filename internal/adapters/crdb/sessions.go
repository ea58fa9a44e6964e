package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ameernasser/auctionhouse/internal/domain"
)

func (r *Repository) CreateSession(ctx context.Context, s domain.AuctionSession) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, name, sale_date, status)
			VALUES ($1, $2, $3, $4)
		`, s.ID, s.Name, s.Date, s.Status)
		return err
	})
}

func (r *Repository) Session(ctx context.Context, id uuid.UUID) (domain.AuctionSession, error) {
	var s domain.AuctionSession
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, sale_date, status
		FROM sessions WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Date, &s.Status)
	if err == pgx.ErrNoRows {
		return domain.AuctionSession{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AuctionSession{}, err
	}
	return s, nil
}

// UpdateSessionStatus performs a compare-and-set on the session status and
// writes the outbox event in the same transaction.
func (r *Repository) UpdateSessionStatus(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus, evt domain.Event) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE sessions SET status = $3 WHERE id = $1 AND status = $2
		`, id, from, to)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return r.casFailure(ctx, tx, "sessions", id)
		}
		return r.insertOutboxTx(ctx, tx, evt)
	})
}

// casFailure distinguishes a missing row from a lost race.
func (r *Repository) casFailure(ctx context.Context, tx pgx.Tx, table string, id uuid.UUID) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrConcurrentModification
}
