package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"orderbook/src/config"
	"orderbook/src/engine"
	"orderbook/src/handlers"
	"orderbook/src/logger"
	"orderbook/src/metrics"
	"orderbook/src/middleware"
	"orderbook/src/routes"
)

func main() {
	cfg, cfgErr := config.Load()

	logger.Init(cfg.Log)
	defer logger.CloseLogger()
	log := logger.GetLogger()

	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("Failed to load configuration")
	}

	log.Info().Msg("Initializing order book service")

	books := engine.NewRegistry()
	recorder := metrics.NewRecorder(cfg.MetricsMaxLatencies)
	halt := middleware.NewTradingHalt(cfg.TradingHalted, int64(cfg.MaxConcurrentRequests))
	orderHandler := handlers.NewOrderHandler(books, recorder, cfg).WithHaltState(halt)

	app := routes.NewApp(orderHandler, halt, cfg)

	serverError := make(chan error, 1)
	go func() {
		if err := app.Listen(cfg.Addr()); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Strs("endpoints", []string{
			"POST   /api/v1/books/:symbol/orders",
			"DELETE /api/v1/books/:symbol/orders/:owner/:order",
			"DELETE /api/v1/orders/:owner/:order",
			"GET    /api/v1/books/:symbol/orders/:owner/:order",
			"GET    /api/v1/books/:symbol",
			"GET    /api/v1/books/:symbol/top",
			"POST   /api/v1/books/:symbol/flush",
			"GET    /health",
			"GET    /metrics",
			"GET    /metrics/prometheus",
		}).
		Msg("Order book service starting")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("addr", cfg.Addr()).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run .").
			Msg("Server failed to start")
	case <-quit:
		log.Info().Msg("Received shutdown signal, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", cfg.ShutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
		return
	}
	log.Info().Msg("Shutdown complete")
}
