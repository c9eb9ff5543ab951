package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tconn93/Day-trader/internal/api"
	"github.com/tconn93/Day-trader/internal/backtest"
	"github.com/tconn93/Day-trader/internal/config"
	"github.com/tconn93/Day-trader/internal/engine"
	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/internal/portfolio"
	"github.com/tconn93/Day-trader/pkg/bus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger := logrus.WithField("component", "main")

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	store, err := ledger.Open(cfg.DataDir)
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	defer store.Close()

	publisher, err := bus.Connect(cfg.NatsURL)
	if err != nil {
		logger.Fatalf("connect event bus: %v", err)
	}
	defer publisher.Close()

	md := marketdata.NewService(
		marketdata.NewClient(cfg.UpstreamMarketURL, cfg.QuoteTimeout),
		cfg.IsDevelopment(),
	)
	defer md.Close()

	book := portfolio.NewBookkeeper(store, publisher)
	eng := engine.New(store, md, book, engine.NewInMemoryRegistry(), cfg.EngineInterval, cfg.DefaultSymbol)
	backtests := backtest.NewManager(backtest.NewEngine(store, md, publisher), 4)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(store, md, book, eng, backtests, cfg.JWTSecret).Handler(),
	}

	go func() {
		logger.Infof("listening on %s (env %s)", server.Addr, cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	eng.Shutdown(ctx)
	logger.Info("shutdown complete")
}
