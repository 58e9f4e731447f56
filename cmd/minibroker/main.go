package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/efreitasn/minibroker/internal/config"
	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/feed"
	"github.com/efreitasn/minibroker/internal/handler"
	"github.com/efreitasn/minibroker/internal/ledger"
	"github.com/efreitasn/minibroker/internal/service"
	"github.com/efreitasn/minibroker/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8000"
		}
		client := http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	// Core state.
	led := ledger.New(logger)
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	symbols := domain.NewSymbolRegistry()
	books := engine.NewBookManager()

	hub := feed.NewHub(cfg.FeedBuffer, logger)
	matcher := engine.NewMatcher(books, led, orderStore, tradeStore, symbols, cfg.SelfTradePolicy, hub, logger)

	// Services.
	userSvc := service.NewUserService(led, symbols, cfg.TopUpAmount, logger)
	orderSvc := service.NewOrderService(matcher)
	marketSvc := service.NewMarketService(tradeStore, matcher, symbols, cfg.VWAPWindow)

	router := handler.NewRouter(userSvc, orderSvc, marketSvc, hub.ServeWS, handler.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		DefaultBookDepth: cfg.BookDepthDefault,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	t, ctx := tomb.WithContext(ctx)

	t.Go(func() error {
		return hub.Run(t)
	})

	t.Go(func() error {
		logger.Info().
			Str("addr", addr).
			Str("self_trade_policy", string(cfg.SelfTradePolicy)).
			Int64("top_up_amount", cfg.TopUpAmount).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// Either a signal or a failed goroutine ends the run.
	<-ctx.Done()
	logger.Info().Msg("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	t.Kill(nil)
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}

	logger.Info().
		Uint64("consistency_alarms", matcher.ConsistencyAlarms()).
		Uint64("feed_dropped", hub.Dropped()).
		Msg("server stopped")
}
