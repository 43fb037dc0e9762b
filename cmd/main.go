package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/rparedes/callbid/internal/auction/application"
	auctionhttp "github.com/rparedes/callbid/internal/auction/infra/http"
	"github.com/rparedes/callbid/internal/auction/infra/repository/postgres"
	auctionws "github.com/rparedes/callbid/internal/auction/infra/websocket"
	"github.com/rparedes/callbid/internal/scheduler"
	"github.com/rparedes/callbid/internal/shared/cache"
	"github.com/rparedes/callbid/internal/shared/clock"
	"github.com/rparedes/callbid/internal/shared/config"
	"github.com/rparedes/callbid/internal/shared/db"
	"github.com/rparedes/callbid/internal/shared/db/migrations"
	"github.com/rparedes/callbid/internal/shared/httpserver"
	"github.com/rparedes/callbid/internal/shared/logger"
	"github.com/rparedes/callbid/internal/shared/websocket"
)

func main() {
	log := logger.GetLogger()
	defer log.Sync()

	log.Info("starting callbid server")

	cfg := config.Load()

	if err := migrations.Run(cfg); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.GetPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	clk := clock.System{}
	auctions := postgres.NewAuctionStore(pool)
	bids := postgres.NewBidStore(pool)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	engine := application.NewBidEngine(auctions, bids, clk)
	lifecycle := application.NewLifecycleService(auctions, bids, clk)
	board := application.NewBoardService(auctions, cache.NewRedisClient(cfg.RedisURL), cfg.BoardPastTTL, 20)
	svc := application.NewAuctionService(engine, board, auctions, bids, auctionws.NewStateNotifier(hub))

	wsHandler := auctionws.NewAuctionWSHandler(svc, hub)
	go wsHandler.ListenForMessages(ctx)

	sweeper, err := scheduler.NewSweeper(lifecycle, cfg.SweepInterval)
	if err != nil {
		log.Fatal("scheduler init failed", zap.Error(err))
	}
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sweeper.Stop()

	server := httpserver.NewServer()
	auctionhttp.NewHandler(svc, lifecycle).RegisterRoutes(server.App())
	auctionws.RegisterRoutes(ctx, server.App(), hub, wsHandler)

	if err := server.Start(cfg.HTTPAddr); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
}
