package settlement

import (
	"context"
	"time"

	"github.com/ameernasser/auctionhouse/internal/observability"
)

// Reconciler sweeps unresolved gateway attempts: money movements that were
// initiated but never acknowledged locally, usually because the process
// died between the external call and the state write. For each attempt it
// asks the gateway whether the transfer landed, keyed by the attempt's
// idempotent reference, and finalizes the sale through the same locked path
// the engine uses.
type Reconciler struct {
	engine  *Engine
	store   Store
	gateway Gateway
	logger  observability.Logger
	minAge  time.Duration
}

func NewReconciler(engine *Engine, store Store, gateway Gateway, logger observability.Logger, minAge time.Duration) *Reconciler {
	return &Reconciler{engine: engine, store: store, gateway: gateway, logger: logger, minAge: minAge}
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", err)
			}
		}
	}
}

// Sweep processes one batch of unresolved attempts.
func (r *Reconciler) Sweep(ctx context.Context) error {
	attempts, err := r.store.UnresolvedAttempts(ctx, time.Now().Add(-r.minAge), 50)
	if err != nil {
		return err
	}
	for _, att := range attempts {
		if err := r.reconcile(ctx, att); err != nil {
			r.logger.WithField("sale_id", att.SaleID.String()).Error("reconcile attempt failed", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, att GatewayAttempt) error {
	landed, err := r.gateway.ConfirmTransfer(ctx, att.Reference)
	if err != nil {
		// Gateway unreachable; the attempt stays unresolved and the next
		// sweep retries.
		return err
	}
	if !landed {
		// The external call never took effect. The sale is still PENDING
		// and the operator retry path is safe; drop the attempt.
		return r.store.ResolveGatewayAttempt(ctx, att.ID)
	}
	if err := r.engine.finalizeFromAttempt(ctx, att); err != nil {
		return err
	}
	observability.AttemptsReconciled.Inc()
	return nil
}
