package settlement

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// GatewayAttempt records an intent to move money externally. The row is
// written before the gateway call so a crash between the external effect
// and the local state write leaves a trail the reconciler can finish from.
type GatewayAttempt struct {
	ID        uuid.UUID
	SaleID    uuid.UUID
	Operation string // "payout" or "refund"
	Reference string
	CreatedAt time.Time
}

// Store is the persistence port for sales. WithSaleLock runs fn while
// holding an exclusive per-sale lock and persists the returned sale state
// and event atomically; the lock spans the whole check-and-set, including
// any gateway call made inside fn.
type Store interface {
	CreateSale(ctx context.Context, s domain.Sale, evt domain.Event) error
	Sale(ctx context.Context, id uuid.UUID) (domain.Sale, error)
	SaleByAuction(ctx context.Context, auctionID uuid.UUID) (domain.Sale, error)
	WithSaleLock(ctx context.Context, id uuid.UUID, fn func(s domain.Sale) (domain.Sale, *domain.Event, error)) error

	RecordGatewayAttempt(ctx context.Context, att GatewayAttempt) error
	UnresolvedAttempts(ctx context.Context, olderThan time.Time, limit int) ([]GatewayAttempt, error)
	ResolveGatewayAttempt(ctx context.Context, id uuid.UUID) error
}

// AuctionSource is the read-only view of the auction side the engine needs
// when turning a completed auction into a sale.
type AuctionSource interface {
	Auction(ctx context.Context, id uuid.UUID) (domain.Auction, error)
	WinningBid(ctx context.Context, auctionID uuid.UUID) (*domain.Bid, error)
}

type Audit interface {
	LogEvent(ctx context.Context, action string, subjectID uuid.UUID, data map[string]interface{}) error
}

// Terms are the platform-level settlement parameters snapshotted into every
// new sale.
type Terms struct {
	CommissionRate   decimal.Decimal
	VATRate          decimal.Decimal
	PartnerIncentive decimal.Decimal
	ServiceFees      []domain.FeeItem
}

// Engine drives a Sale through fee payment, escrow and a terminal payout
// outcome.
type Engine struct {
	store    Store
	auctions AuctionSource
	gateway  Gateway
	audit    Audit
	logger   observability.Logger
	terms    Terms
}

func NewEngine(store Store, auctions AuctionSource, gateway Gateway, audit Audit, logger observability.Logger, terms Terms) *Engine {
	return &Engine{
		store:    store,
		auctions: auctions,
		gateway:  gateway,
		audit:    audit,
		logger:   logger,
		terms:    terms,
	}
}

// CreateForAuction creates the sale for a completed auction with a winning
// bid. Idempotent: a second call returns the existing sale. An auction that
// completed without bids yields no sale and no error.
func (e *Engine) CreateForAuction(ctx context.Context, auctionID uuid.UUID) (*domain.Sale, error) {
	a, err := e.auctions.Auction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AuctionCompleted {
		return nil, domain.ErrInvalidTransition
	}
	win, err := e.auctions.WinningBid(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if win == nil {
		return nil, nil
	}

	sale := domain.NewSale(a, *win, domain.SaleTerms{
		CommissionRate:   e.terms.CommissionRate,
		VATRate:          e.terms.VATRate,
		PartnerIncentive: e.terms.PartnerIncentive,
		ServiceFees:      e.terms.ServiceFees,
	})
	evt := domain.NewEvent("sale.created", "sale", sale.ID, map[string]interface{}{
		"sale_id":           sale.ID,
		"auction_id":        auctionID,
		"car_price":         sale.CarPrice.String(),
		"verification_code": sale.VerificationCode,
	})
	if err := e.store.CreateSale(ctx, sale, evt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, gerr := e.store.SaleByAuction(ctx, auctionID)
			if gerr != nil {
				return nil, gerr
			}
			return &existing, nil
		}
		return nil, err
	}
	e.auditLog(ctx, "sale.created", sale.ID, map[string]interface{}{"auction_id": auctionID})
	return &sale, nil
}

func (e *Engine) Sale(ctx context.Context, id uuid.UUID) (domain.Sale, error) {
	return e.store.Sale(ctx, id)
}

// Breakdown recomputes the settlement statement from the stored snapshot.
func (e *Engine) Breakdown(ctx context.Context, id uuid.UUID) (domain.Breakdown, error) {
	s, err := e.store.Sale(ctx, id)
	if err != nil {
		return domain.Breakdown{}, err
	}
	return domain.ComputeBreakdown(s), nil
}

// ChargeServiceFees initiates the phase-1 service-fee charge and records
// its outcome. The charge reference is derived from the verification code
// so gateway retries are idempotent.
func (e *Engine) ChargeServiceFees(ctx context.Context, saleID uuid.UUID, method string) error {
	s, err := e.store.Sale(ctx, saleID)
	if err != nil {
		return err
	}
	if s.Phase1.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	total := domain.SumFeeItems(s.ServiceFees)
	res, err := e.gateway.Charge(ctx, total, method, s.VerificationCode+":fees")
	if err != nil {
		return errors.Mark(err, domain.ErrGatewayUnavailable)
	}
	return e.RecordPhase1Payment(ctx, saleID, method, res.TransactionRef, res.Outcome)
}

// RecordPhase1Payment records the gateway's verdict on the service-fee
// charge. Replaying the same transaction reference is a no-op; a different
// reference arriving after a terminal state is rejected so a sale can never
// be credited twice.
func (e *Engine) RecordPhase1Payment(ctx context.Context, saleID uuid.UUID, gateway, transactionRef, outcome string) error {
	err := e.store.WithSaleLock(ctx, saleID, func(s domain.Sale) (domain.Sale, *domain.Event, error) {
		if s.Phase1.Status.Terminal() {
			if s.Phase1.TransactionRef == transactionRef {
				return s, nil, nil
			}
			return s, nil, domain.ErrAlreadyTerminal
		}
		status := domain.Phase1Failed
		eventType := "settlement.phase1_failed"
		if outcome == OutcomeSucceeded {
			status = domain.Phase1Paid
			eventType = "settlement.phase1_paid"
		}
		s.Phase1 = domain.Phase1State{Status: status, Gateway: gateway, TransactionRef: transactionRef}
		evt := domain.NewEvent(eventType, "sale", s.ID, map[string]interface{}{
			"sale_id":         s.ID,
			"gateway":         gateway,
			"transaction_ref": transactionRef,
		})
		return s, &evt, nil
	})
	if err != nil {
		return err
	}
	e.auditLog(ctx, "settlement.phase1_recorded", saleID, map[string]interface{}{
		"transaction_ref": transactionRef,
		"outcome":         outcome,
	})
	return nil
}

// VerifyEscrowTransfer confirms with the gateway that the vehicle-price
// transfer landed and advances phase 2 one step: PENDING to VERIFIED, then
// VERIFIED to PAID. Service fees must have cleared first.
func (e *Engine) VerifyEscrowTransfer(ctx context.Context, saleID uuid.UUID) error {
	err := e.store.WithSaleLock(ctx, saleID, func(s domain.Sale) (domain.Sale, *domain.Event, error) {
		if s.Phase2.Release.Terminal() {
			return s, nil, domain.ErrAlreadyTerminal
		}
		if s.Phase1.Status != domain.Phase1Paid {
			return s, nil, domain.ErrPhase1NotComplete
		}
		if s.Phase2.Status == domain.Phase2Paid {
			return s, nil, domain.ErrAlreadyTerminal
		}

		ok, gerr := e.gateway.ConfirmTransfer(ctx, s.VerificationCode)
		if gerr != nil {
			return s, nil, errors.Mark(gerr, domain.ErrGatewayUnavailable)
		}
		if !ok {
			return s, nil, domain.ErrConflict
		}

		next := domain.Phase2Verified
		eventType := "settlement.escrow_verified"
		if s.Phase2.Status == domain.Phase2Verified {
			next = domain.Phase2Paid
			eventType = "settlement.escrow_paid"
		}
		s.Phase2.Status = next
		evt := domain.NewEvent(eventType, "sale", s.ID, map[string]interface{}{
			"sale_id":           s.ID,
			"verification_code": s.VerificationCode,
			"phase2_status":     next,
		})
		return s, &evt, nil
	})
	if err != nil {
		return err
	}
	e.auditLog(ctx, "settlement.escrow_verified", saleID, nil)
	return nil
}

// ReleaseFunds pays the seller and moves release_status to RELEASED.
// Exactly one concurrent caller succeeds; the loser observes
// ErrAlreadyTerminal. The per-sale lock spans the payout call, and the
// attempt row written beforehand lets the reconciler finish the job if the
// process dies after the payout but before the state write.
func (e *Engine) ReleaseFunds(ctx context.Context, saleID uuid.UUID) error {
	return e.terminate(ctx, saleID, "payout")
}

// RefundBuyer reverses the escrowed amount to the buyer and moves
// release_status to REFUNDED. Mutually exclusive with ReleaseFunds on the
// same sale through the shared PENDING precondition and lock.
func (e *Engine) RefundBuyer(ctx context.Context, saleID uuid.UUID) error {
	return e.terminate(ctx, saleID, "refund")
}

func (e *Engine) terminate(ctx context.Context, saleID uuid.UUID, op string) error {
	err := e.store.WithSaleLock(ctx, saleID, func(s domain.Sale) (domain.Sale, *domain.Event, error) {
		next, err := e.executeTerminal(ctx, s, op)
		if err != nil {
			return s, nil, err
		}
		evt := terminalEvent(next, op)
		return next, &evt, nil
	})
	if err != nil {
		return err
	}
	if op == "payout" {
		observability.FundsReleased.Inc()
	} else {
		observability.BuyersRefunded.Inc()
	}
	e.auditLog(ctx, "settlement."+op, saleID, nil)
	return nil
}

// executeTerminal checks preconditions, records the attempt and performs
// the external money movement. Called with the sale lock held.
func (e *Engine) executeTerminal(ctx context.Context, s domain.Sale, op string) (domain.Sale, error) {
	if s.Phase2.Release.Terminal() {
		return s, domain.ErrAlreadyTerminal
	}
	if op == "payout" && s.Phase2.Status != domain.Phase2Paid {
		return s, domain.ErrInvalidTransition
	}
	if op == "refund" && s.Phase2.Status == domain.Phase2Pending {
		return s, domain.ErrInvalidTransition
	}

	// Deterministic per-sale reference: retries after a crash hit the
	// gateway with the same reference and are deduplicated there.
	reference := s.VerificationCode + ":" + op
	att := GatewayAttempt{
		ID:        uuid.New(),
		SaleID:    s.ID,
		Operation: op,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.RecordGatewayAttempt(ctx, att); err != nil && !errors.Is(err, domain.ErrConflict) {
		return s, err
	}

	var res GatewayResult
	var err error
	if op == "payout" {
		amount := domain.ComputeBreakdown(s).NetPayout
		res, err = e.gateway.Payout(ctx, s.SellerID.String(), amount, reference)
	} else {
		res, err = e.gateway.Reverse(ctx, s.BuyerID.String(), s.CarPrice, reference)
	}
	if err != nil {
		// State stays PENDING; the operation is safe to retry and the
		// reconciler will pick up the attempt if the money already moved.
		return s, errors.Mark(err, domain.ErrGatewayUnavailable)
	}
	if res.Outcome != OutcomeSucceeded {
		return s, errors.Mark(errors.Newf("gateway %s returned %s", op, res.Outcome), domain.ErrGatewayUnavailable)
	}

	if op == "payout" {
		s.Phase2.Release = domain.ReleaseReleased
	} else {
		s.Phase2.Release = domain.ReleaseRefunded
	}
	return s, nil
}

// finalizeFromAttempt applies the terminal transition for an attempt whose
// external effect was confirmed after the fact. Idempotent: an attempt
// whose sale is already terminal resolves cleanly.
func (e *Engine) finalizeFromAttempt(ctx context.Context, att GatewayAttempt) error {
	err := e.store.WithSaleLock(ctx, att.SaleID, func(s domain.Sale) (domain.Sale, *domain.Event, error) {
		if s.Phase2.Release.Terminal() {
			return s, nil, nil
		}
		if att.Operation == "payout" {
			s.Phase2.Release = domain.ReleaseReleased
		} else {
			s.Phase2.Release = domain.ReleaseRefunded
		}
		evt := terminalEvent(s, att.Operation)
		return s, &evt, nil
	})
	if err != nil {
		return err
	}
	return e.store.ResolveGatewayAttempt(ctx, att.ID)
}

func terminalEvent(s domain.Sale, op string) domain.Event {
	eventType := "settlement.released"
	if op == "refund" {
		eventType = "settlement.refunded"
	}
	return domain.NewEvent(eventType, "sale", s.ID, map[string]interface{}{
		"sale_id":        s.ID,
		"release_status": s.Phase2.Release,
	})
}

func (e *Engine) auditLog(ctx context.Context, action string, subjectID uuid.UUID, data map[string]interface{}) {
	if e.audit == nil {
		return
	}
	if err := e.audit.LogEvent(ctx, action, subjectID, data); err != nil {
		e.logger.WithField("action", action).Error("audit log failed", err)
	}
}
