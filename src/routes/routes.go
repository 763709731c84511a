package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"orderbook/src/config"
	"orderbook/src/handlers"
	"orderbook/src/middleware"
)

// NewApp builds the fiber application with every route mounted.
func NewApp(orderHandler *handlers.OrderHandler, halt *middleware.TradingHalt, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		// route params become registry keys and metric labels
		Immutable: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	SetupRoutes(app, orderHandler, halt, cfg)
	return app
}

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, halt *middleware.TradingHalt, cfg config.Config) {
	app.Use(middleware.RequestLogger(cfg.RequestLoggingDisabled))

	api := app.Group("/api/v1")
	admin := app.Group("/admin")

	if !cfg.RateLimit.Disabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		api.Use(rateLimiter.Middleware())
		admin.Use(rateLimiter.Middleware())
	}
	api.Use(halt.Middleware())

	books := api.Group("/books/:symbol")
	books.Get("/", orderHandler.GetOrderBook)
	books.Get("/top", orderHandler.GetTopOfBook)
	books.Post("/flush", orderHandler.FlushOrderBook)
	books.Post("/orders", orderHandler.SubmitOrder)
	books.Get("/orders/:owner/:order", orderHandler.GetOrderStatus)
	books.Delete("/orders/:owner/:order", orderHandler.CancelOrder)

	api.Delete("/orders/:owner/:order", orderHandler.CancelOrderAnywhere)

	admin.Post("/halt", func(c *fiber.Ctx) error {
		halt.SetHalted(true)
		return c.JSON(fiber.Map{"trading_halted": true})
	})
	admin.Post("/resume", func(c *fiber.Ctx) error {
		halt.SetHalted(false)
		return c.JSON(fiber.Map{"trading_halted": false})
	})

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)
	app.Get("/metrics/prometheus", adaptor.HTTPHandler(
		promhttp.HandlerFor(orderHandler.Recorder.Registry, promhttp.HandlerOpts{}),
	))
}
