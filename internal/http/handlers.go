package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mongoadapter "github.com/ameernasser/auctionhouse/internal/adapters/mongo"
	redisadapter "github.com/ameernasser/auctionhouse/internal/adapters/redis"
	"github.com/ameernasser/auctionhouse/internal/bidding"
	"github.com/ameernasser/auctionhouse/internal/config"
	"github.com/ameernasser/auctionhouse/internal/domain"
	"github.com/ameernasser/auctionhouse/internal/idempotency"
	"github.com/ameernasser/auctionhouse/internal/moderation"
	"github.com/ameernasser/auctionhouse/internal/registry"
	"github.com/ameernasser/auctionhouse/internal/settlement"
)

type Handlers struct {
	cfg         *config.Config
	registry    *registry.Registry
	ledger      *bidding.Ledger
	engine      *settlement.Engine
	coordinator *moderation.Coordinator
	catalog     *mongoadapter.CatalogRepository
	redis       *redisadapter.Cache
	idemp       *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, reg *registry.Registry, ledger *bidding.Ledger, engine *settlement.Engine, coordinator *moderation.Coordinator, catalog *mongoadapter.CatalogRepository, redisCache *redisadapter.Cache, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:         cfg,
		registry:    reg,
		ledger:      ledger,
		engine:      engine,
		coordinator: coordinator,
		catalog:     catalog,
		redis:       redisCache,
		idemp:       idemp,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeError maps the domain taxonomy onto HTTP: retryable races to 409,
// permanently invalid actions to 422, gateway trouble to 502.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSerializationFailure):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrStreamNotEligible),
		errors.Is(err, domain.ErrAuctionLocked),
		errors.Is(err, domain.ErrAuctionNotLive),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrPhase1NotComplete):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGatewayUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{
		"error":     domain.ErrorKind(err),
		"message":   err.Error(),
		"retryable": domain.Retryable(err),
	})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if replayed := h.replayIdempotent(w, r); replayed {
		return
	}
	var req struct {
		Name string    `json:"name"`
		Date time.Time `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.registry.CreateSession(r.Context(), req.Name, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": s.ID,
		"status":     s.Status,
	})
	h.cacheIdempotent(r, http.StatusCreated, data)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	s, err := h.registry.Session(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	window := h.registry.SessionWindow()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":    s.ID,
		"name":          s.Name,
		"date":          s.Date.Format(time.RFC3339),
		"status":        s.Status,
		"market_window": window.Label,
	})
}

func (h *Handlers) TransitionSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Status domain.SessionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.TransitionSession(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "status": req.Status})
}

func (h *Handlers) ListAuction(w http.ResponseWriter, r *http.Request) {
	if replayed := h.replayIdempotent(w, r); replayed {
		return
	}
	var req struct {
		SessionID     uuid.UUID       `json:"session_id"`
		VehicleID     uuid.UUID       `json:"vehicle_id"`
		SellerID      uuid.UUID       `json:"seller_id"`
		PartnerSeller bool            `json:"partner_seller"`
		OpeningPrice  decimal.Decimal `json:"opening_price"`
		MinIncrement  decimal.Decimal `json:"min_increment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MinIncrement.IsZero() {
		req.MinIncrement = h.cfg.DefaultMinIncrement
	}

	a, err := h.registry.ListAuction(r.Context(), req.SessionID, req.VehicleID, req.SellerID, req.PartnerSeller, req.OpeningPrice, req.MinIncrement)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"auction_id":    a.ID,
		"status":        a.Status,
		"opening_price": a.OpeningPrice,
	})
	h.cacheIdempotent(r, http.StatusCreated, data)
}

func (h *Handlers) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	a, err := h.registry.Auction(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auction_id":            a.ID,
		"session_id":            a.SessionID,
		"vehicle_id":            a.VehicleID,
		"status":                a.Status,
		"opening_price":         a.OpeningPrice,
		"min_increment":         a.MinIncrement,
		"current_price":         a.CurrentPrice,
		"control_room_approved": a.ControlRoomApproved,
		"approved_for_live":     a.ApprovedForLive,
	})
}

// TransitionAuction moves an auction to the requested status. Completing an
// auction is the settlement trigger: when a winning bid exists the sale is
// created before the response goes out.
func (h *Handlers) TransitionAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Status domain.AuctionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.TransitionAuction(r.Context(), id, req.Status); err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"auction_id": id, "status": req.Status}
	if req.Status == domain.AuctionCompleted {
		sale, err := h.engine.CreateForAuction(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if sale != nil {
			resp["sale_id"] = sale.ID
			resp["verification_code"] = sale.VerificationCode
			resp["car_price"] = sale.CarPrice
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) SetApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.SetControlRoomApproval(r.Context(), id, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auction_id": id, "control_room_approved": req.Approved})
}

func (h *Handlers) SetStreamApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.SetStreamApproval(r.Context(), id, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auction_id": id, "approved_for_live": req.Approved})
}

func (h *Handlers) SetOpeningPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.registry.SetOpeningPrice(r.Context(), id, req.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auction_id": id, "opening_price": req.Price})
}

func (h *Handlers) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if replayed := h.replayIdempotent(w, r); replayed {
		return
	}
	var req struct {
		BidderID uuid.UUID       `json:"bidder_id"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bid, err := h.ledger.PlaceBid(r.Context(), id, req.BidderID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"bid_id":     bid.ID,
		"auction_id": bid.AuctionID,
		"amount":     bid.Amount,
		"placed_at":  bid.PlacedAt.Format(time.RFC3339),
	})
	h.cacheIdempotent(r, http.StatusCreated, data)
}

func (h *Handlers) GetBids(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	bids, err := h.ledger.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"auction_id": id, "bids": bids})
}

func (h *Handlers) GetWinningBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	bid, err := h.ledger.WinningBid(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if bid == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"auction_id": id, "winning_bid": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auction_id": id,
		"winning_bid": map[string]interface{}{
			"bid_id":    bid.ID,
			"bidder_id": bid.BidderID,
			"amount":    bid.Amount,
		},
	})
}

func (h *Handlers) GetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	s, err := h.engine.Sale(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sale_id":           s.ID,
		"auction_id":        s.AuctionID,
		"verification_code": s.VerificationCode,
		"car_price":         s.CarPrice,
		"partner_seller":    s.PartnerSeller,
		"phase1_status":     s.Phase1.Status,
		"phase2_status":     s.Phase2.Status,
		"release_status":    s.Phase2.Release,
		"overall_status":    s.OverallStatus(),
	})
}

func (h *Handlers) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	b, err := h.engine.Breakdown(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handlers) ChargeServiceFees(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.ChargeServiceFees(r.Context(), id, req.Method); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sale_id": id})
}

// Phase1Callback is the gateway's verdict on the service-fee charge.
func (h *Handlers) Phase1Callback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SaleID         uuid.UUID `json:"sale_id"`
		Gateway        string    `json:"gateway"`
		TransactionRef string    `json:"transaction_ref"`
		Outcome        string    `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.engine.RecordPhase1Payment(r.Context(), req.SaleID, req.Gateway, req.TransactionRef, req.Outcome); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sale_id": req.SaleID})
}

func (h *Handlers) VerifyEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.engine.VerifyEscrowTransfer(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.engine.Sale(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sale_id": id, "phase2_status": s.Phase2.Status})
}

func (h *Handlers) ReleaseFunds(w http.ResponseWriter, r *http.Request) {
	h.terminateSale(w, r, h.engine.ReleaseFunds, string(domain.ReleaseReleased))
}

func (h *Handlers) RefundBuyer(w http.ResponseWriter, r *http.Request) {
	h.terminateSale(w, r, h.engine.RefundBuyer, string(domain.ReleaseRefunded))
}

// terminateSale guards the release/refund path with a short redis lock so
// a doubled click fails fast with CONFLICT instead of queueing on the row
// lock.
func (h *Handlers) terminateSale(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) error, outcome string) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	ok, err := h.redis.AcquireSaleLock(r.Context(), id.String(), 30*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, domain.ErrConflict)
		return
	}
	defer h.redis.ReleaseSaleLock(r.Context(), id.String())

	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sale_id": id, "release_status": outcome})
}

func (h *Handlers) BulkTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuctionIDs   []uuid.UUID          `json:"auction_ids"`
		TargetStatus domain.AuctionStatus `json:"target_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results := h.coordinator.BulkTransition(r.Context(), req.AuctionIDs, req.TargetStatus)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handlers) BulkApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuctionIDs []uuid.UUID `json:"auction_ids"`
		Approve    bool        `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results := h.coordinator.BulkApproveReject(r.Context(), req.AuctionIDs, req.Approve)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handlers) BulkOpeningPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Overrides []moderation.PriceOverride `json:"overrides"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	results := h.coordinator.BulkOpeningPrice(r.Context(), req.Overrides)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handlers) MarketWindow(w http.ResponseWriter, r *http.Request) {
	window := h.registry.SessionWindow()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":             window.Label,
		"is_trading_window": window.Trading,
	})
}

func (h *Handlers) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var doc mongoadapter.VehicleDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if err := h.catalog.CreateVehicle(r.Context(), doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"vehicle_id": doc.ID})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return false
	}
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil || existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) cacheIdempotent(r *http.Request, status int, data []byte) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return
	}
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
}
