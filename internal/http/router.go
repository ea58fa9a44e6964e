package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ameernasser/auctionhouse/internal/observability"
	"github.com/ameernasser/auctionhouse/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware)
	r.Use(RateLimitMiddleware(rl))
	r.Use(IdempotencyKeyMiddleware)

	r.Post("/v1/sessions", h.CreateSession)
	r.Get("/v1/sessions/{id}", h.GetSession)
	r.Post("/v1/sessions/{id}/status", h.TransitionSession)

	r.Post("/v1/vehicles", h.CreateVehicle)

	r.Post("/v1/auctions", h.ListAuction)
	r.Get("/v1/auctions/{id}", h.GetAuction)
	r.Post("/v1/auctions/{id}/status", h.TransitionAuction)
	r.Post("/v1/auctions/{id}/approval", h.SetApproval)
	r.Post("/v1/auctions/{id}/stream", h.SetStreamApproval)
	r.Put("/v1/auctions/{id}/opening-price", h.SetOpeningPrice)
	r.Post("/v1/auctions/{id}/bids", h.PlaceBid)
	r.Get("/v1/auctions/{id}/bids", h.GetBids)
	r.Get("/v1/auctions/{id}/bids/winning", h.GetWinningBid)

	r.Get("/v1/sales/{id}", h.GetSale)
	r.Get("/v1/sales/{id}/breakdown", h.GetBreakdown)
	r.Post("/v1/sales/{id}/charge-fees", h.ChargeServiceFees)
	r.Post("/v1/sales/{id}/verify-escrow", h.VerifyEscrow)
	r.Post("/v1/sales/{id}/release", h.ReleaseFunds)
	r.Post("/v1/sales/{id}/refund", h.RefundBuyer)
	r.Post("/v1/payments/phase1/callback", h.Phase1Callback)

	r.Post("/v1/moderation/transitions", h.BulkTransition)
	r.Post("/v1/moderation/approvals", h.BulkApproval)
	r.Post("/v1/moderation/opening-prices", h.BulkOpeningPrice)

	r.Get("/v1/market-window", h.MarketWindow)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
