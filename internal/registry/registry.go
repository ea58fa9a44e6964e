package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/observability"
)

// Store is the persistence port for sessions and auctions. Status writes
// are compare-and-set against the expected current value and persist the
// event in the same transaction; a lost race surfaces as
// domain.ErrConcurrentModification.
type Store interface {
	CreateSession(ctx context.Context, s domain.AuctionSession) error
	Session(ctx context.Context, id uuid.UUID) (domain.AuctionSession, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, from, to domain.SessionStatus, evt domain.Event) error

	CreateAuction(ctx context.Context, a domain.Auction) error
	Auction(ctx context.Context, id uuid.UUID) (domain.Auction, error)
	UpdateAuctionStatus(ctx context.Context, id uuid.UUID, from, to domain.AuctionStatus, evt domain.Event) error
	SetControlRoomApproval(ctx context.Context, id uuid.UUID, approved bool, evt domain.Event) error
	SetStreamApproval(ctx context.Context, id uuid.UUID, approved bool, evt domain.Event) error
	SetOpeningPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal, evt domain.Event) error
}

// Catalog is the vehicle read model consulted when listing an auction.
type Catalog interface {
	VehicleExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Audit is the fire-and-forget audit sink; failures are logged, never
// propagated.
type Audit interface {
	LogEvent(ctx context.Context, action string, subjectID uuid.UUID, data map[string]interface{}) error
}

// Registry is the authoritative state machine for sessions and auctions.
type Registry struct {
	store         Store
	catalog       Catalog
	audit         Audit
	logger        observability.Logger
	enforceWindow bool
	now           func() time.Time
}

func New(store Store, catalog Catalog, audit Audit, logger observability.Logger, enforceWindow bool) *Registry {
	return &Registry{
		store:         store,
		catalog:       catalog,
		audit:         audit,
		logger:        logger,
		enforceWindow: enforceWindow,
		now:           time.Now,
	}
}

func (r *Registry) CreateSession(ctx context.Context, name string, date time.Time) (domain.AuctionSession, error) {
	s := domain.NewSession(name, date)
	if err := r.store.CreateSession(ctx, s); err != nil {
		return domain.AuctionSession{}, err
	}
	r.auditLog(ctx, "session.created", s.ID, map[string]interface{}{"name": s.Name, "date": s.Date.Format(time.RFC3339)})
	return s, nil
}

func (r *Registry) Session(ctx context.Context, id uuid.UUID) (domain.AuctionSession, error) {
	return r.store.Session(ctx, id)
}

// SessionWindow annotates a session with the market window active at the
// given instant. Display only; it never gates anything by itself.
func (r *Registry) SessionWindow() domain.MarketWindow {
	return domain.ClassifyWindow(r.now())
}

func (r *Registry) TransitionSession(ctx context.Context, id uuid.UUID, to domain.SessionStatus) error {
	s, err := r.store.Session(ctx, id)
	if err != nil {
		return err
	}
	if err := s.CheckTransition(to); err != nil {
		return err
	}
	evt := domain.NewEvent("session."+statusEvent(string(to)), "session", id, map[string]interface{}{
		"session_id": id,
		"from":       s.Status,
		"to":         to,
	})
	if err := r.store.UpdateSessionStatus(ctx, id, s.Status, to, evt); err != nil {
		return err
	}
	r.auditLog(ctx, evt.Type, id, map[string]interface{}{"from": s.Status, "to": to})
	return nil
}

// ListAuction registers a vehicle lot under a session. The vehicle must
// exist in the catalog.
func (r *Registry) ListAuction(ctx context.Context, sessionID, vehicleID, sellerID uuid.UUID, partner bool, openingPrice, minIncrement decimal.Decimal) (domain.Auction, error) {
	if _, err := r.store.Session(ctx, sessionID); err != nil {
		return domain.Auction{}, err
	}
	ok, err := r.catalog.VehicleExists(ctx, vehicleID)
	if err != nil {
		return domain.Auction{}, err
	}
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}

	a := domain.NewAuction(sessionID, vehicleID, sellerID, partner, openingPrice, minIncrement)
	if err := r.store.CreateAuction(ctx, a); err != nil {
		return domain.Auction{}, err
	}
	r.auditLog(ctx, "auction.listed", a.ID, map[string]interface{}{
		"session_id":    sessionID,
		"vehicle_id":    vehicleID,
		"opening_price": openingPrice.String(),
	})
	return a, nil
}

func (r *Registry) Auction(ctx context.Context, id uuid.UUID) (domain.Auction, error) {
	return r.store.Auction(ctx, id)
}

// TransitionAuction moves an auction to the target status. The precondition
// is validated against the fetched state and the write is a compare-and-set
// against that same state, so a concurrent moderator's transition is never
// silently merged.
func (r *Registry) TransitionAuction(ctx context.Context, id uuid.UUID, to domain.AuctionStatus) error {
	a, err := r.store.Auction(ctx, id)
	if err != nil {
		return err
	}
	if err := a.CheckTransition(to); err != nil {
		return err
	}
	if to == domain.AuctionLive && r.enforceWindow {
		if w := domain.ClassifyWindow(r.now()); !w.Trading {
			return domain.ErrInvalidTransition
		}
	}
	evt := domain.NewEvent("auction."+statusEvent(string(to)), "auction", id, map[string]interface{}{
		"auction_id": id,
		"from":       a.Status,
		"to":         to,
	})
	if err := r.store.UpdateAuctionStatus(ctx, id, a.Status, to, evt); err != nil {
		return err
	}
	r.auditLog(ctx, evt.Type, id, map[string]interface{}{"from": a.Status, "to": to})
	return nil
}

func (r *Registry) SetControlRoomApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	if _, err := r.store.Auction(ctx, id); err != nil {
		return err
	}
	evt := domain.NewEvent("auction.control_room_approval", "auction", id, map[string]interface{}{
		"auction_id": id,
		"approved":   approved,
	})
	if err := r.store.SetControlRoomApproval(ctx, id, approved, evt); err != nil {
		return err
	}
	r.auditLog(ctx, evt.Type, id, map[string]interface{}{"approved": approved})
	return nil
}

// SetStreamApproval flips the "streaming now" flag. Turning it on requires
// a live, control-room-approved auction; the store re-checks both
// conditions atomically with the write.
func (r *Registry) SetStreamApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	a, err := r.store.Auction(ctx, id)
	if err != nil {
		return err
	}
	if err := a.CheckStreamApproval(approved); err != nil {
		return err
	}
	evt := domain.NewEvent("auction.stream_approval", "auction", id, map[string]interface{}{
		"auction_id": id,
		"approved":   approved,
	})
	if err := r.store.SetStreamApproval(ctx, id, approved, evt); err != nil {
		return err
	}
	r.auditLog(ctx, evt.Type, id, map[string]interface{}{"approved": approved})
	return nil
}

// SetOpeningPrice rewrites the opening price while the auction is still
// scheduled; any later write fails with domain.ErrAuctionLocked.
func (r *Registry) SetOpeningPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error {
	a, err := r.store.Auction(ctx, id)
	if err != nil {
		return err
	}
	if err := a.CheckOpeningPriceChange(); err != nil {
		return err
	}
	evt := domain.NewEvent("auction.opening_price_changed", "auction", id, map[string]interface{}{
		"auction_id": id,
		"price":      price.String(),
	})
	if err := r.store.SetOpeningPrice(ctx, id, price, evt); err != nil {
		return err
	}
	r.auditLog(ctx, evt.Type, id, map[string]interface{}{"price": price.String()})
	return nil
}

func (r *Registry) auditLog(ctx context.Context, action string, subjectID uuid.UUID, data map[string]interface{}) {
	if r.audit == nil {
		return
	}
	if err := r.audit.LogEvent(ctx, action, subjectID, data); err != nil {
		r.logger.WithField("action", action).Error("audit log failed", err)
	}
}

func statusEvent(status string) string {
	switch status {
	case "ACTIVE":
		return "activated"
	case "LIVE":
		return "went_live"
	case "ENDED":
		return "ended"
	case "COMPLETED":
		return "completed"
	case "CANCELLED":
		return "cancelled"
	case "FAILED":
		return "failed"
	default:
		return "status_changed"
	}
}
