package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/ameernasser/auctionhouse/internal/adapters/crdb"
	gatewayadapter "github.com/ameernasser/auctionhouse/internal/adapters/gateway"
	mongoadapter "github.com/ameernasser/auctionhouse/internal/adapters/mongo"
	redisadapter "github.com/ameernasser/auctionhouse/internal/adapters/redis"
	"github.com/ameernasser/auctionhouse/internal/bidding"
	"github.com/ameernasser/auctionhouse/internal/config"
	"github.com/ameernasser/auctionhouse/internal/domain"
	httphandler "github.com/ameernasser/auctionhouse/internal/http"
	"github.com/ameernasser/auctionhouse/internal/idempotency"
	"github.com/ameernasser/auctionhouse/internal/moderation"
	"github.com/ameernasser/auctionhouse/internal/observability"
	"github.com/ameernasser/auctionhouse/internal/rateLimit"
	"github.com/ameernasser/auctionhouse/internal/registry"
	"github.com/ameernasser/auctionhouse/internal/settlement"
)

// auctionSource joins the registry's auction reads with the ledger's
// winning-bid read for the settlement engine.
type auctionSource struct {
	*registry.Registry
	*bidding.Ledger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("auctionhouse")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()

	gw := gatewayadapter.NewClient(cfg.GatewayBaseURL, cfg.GatewayTimeout)

	reg := registry.New(repo, catalog, audit, logger, cfg.EnforceTradingWindow)
	ledger := bidding.NewLedger(repo, audit, logger)
	engine := settlement.NewEngine(repo, auctionSource{reg, ledger}, gw, audit, logger, settlement.Terms{
		CommissionRate:   cfg.CommissionRate,
		VATRate:          cfg.VATRate,
		PartnerIncentive: cfg.PartnerIncentive,
		ServiceFees:      []domain.FeeItem{{Label: "platform_fee", Amount: cfg.PlatformFee}},
	})
	coordinator := moderation.NewCoordinator(reg, logger)

	handlers := httphandler.NewHandlers(cfg, reg, ledger, engine, coordinator, catalog, redisCache, idemp)
	router := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gctx.Done():
		}
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("Server exiting")
}
