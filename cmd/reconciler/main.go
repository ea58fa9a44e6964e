package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ameernasser/auctionhouse/internal/adapters/crdb"
	gatewayadapter "github.com/ameernasser/auctionhouse/internal/adapters/gateway"
	"github.com/ameernasser/auctionhouse/internal/config"
	"github.com/ameernasser/auctionhouse/internal/observability"
	"github.com/ameernasser/auctionhouse/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	gw := gatewayadapter.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout)

	// Finalizing an attempt only touches the sale row, so the engine runs
	// without an auction source or audit sink here.
	engine := settlement.NewEngine(repo, nil, gw, nil, logger, settlement.Terms{})
	reconciler := settlement.NewReconciler(engine, repo, gw, logger, cfg.ReconcileMinAge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx, cfg.ReconcileInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reconciler")
}
