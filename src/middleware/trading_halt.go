package middleware

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// TradingHalt rejects order entry, cancels and flushes while trading is
// halted. Read-only requests keep working so clients can still see the book.
// With a positive maxConcurrent it also sheds requests beyond that many in flight.
type TradingHalt struct {
	halted        atomic.Bool
	maxConcurrent int64
	inFlight      atomic.Int64
}

func NewTradingHalt(halted bool, maxConcurrent int64) *TradingHalt {
	th := &TradingHalt{maxConcurrent: maxConcurrent}
	if halted {
		th.halted.Store(true)
		log.Warn().Msg("Trading halted - order entry will return 503")
	}
	if maxConcurrent > 0 {
		log.Info().
			Int64("max_concurrent_requests", maxConcurrent).
			Msg("Server overload detection enabled")
	}
	return th
}

func (th *TradingHalt) SetHalted(halted bool) {
	th.halted.Store(halted)
	if halted {
		log.Warn().Msg("Trading halted")
	} else {
		log.Info().Msg("Trading resumed")
	}
}

func (th *TradingHalt) IsHalted() bool {
	return th.halted.Load()
}

func (th *TradingHalt) InFlight() int64 {
	return th.inFlight.Load()
}

func (th *TradingHalt) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if th.halted.Load() && !readOnly(c.Method()) {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Str("ip", c.IP()).
				Msg("Request rejected: trading halted")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "Service unavailable",
				"message": "Trading is halted. Order entry is temporarily disabled.",
				"code":    fiber.StatusServiceUnavailable,
			})
		}

		current := th.inFlight.Add(1)
		defer th.inFlight.Add(-1)

		if th.maxConcurrent > 0 && current > th.maxConcurrent {
			log.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int64("current_requests", current-1).
				Int64("max_requests", th.maxConcurrent).
				Msg("Request rejected: server overload")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "Service unavailable",
				"message": "The service is currently overloaded. Please try again later.",
				"code":    fiber.StatusServiceUnavailable,
			})
		}

		return c.Next()
	}
}

func readOnly(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}
