package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook/src/config"
	"orderbook/src/engine"
	"orderbook/src/handlers"
	"orderbook/src/metrics"
	"orderbook/src/middleware"
	"orderbook/src/models"
	"orderbook/src/routes"
)

type testServer struct {
	app   *fiber.App
	books *engine.Registry
	halt  *middleware.TradingHalt
}

// setupTestServer builds the production app with rate limiting and request
// logging disabled. Options adjust the config before wiring.
func setupTestServer(t *testing.T, opts ...func(*config.Config)) *testServer {
	t.Helper()
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	cfg := config.Config{
		DefaultDepth:           10,
		MaxDepth:               2,
		MetricsMaxLatencies:    100,
		RequestLoggingDisabled: true,
		RateLimit:              config.RateLimitConfig{Disabled: true},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	books := engine.NewRegistry()
	halt := middleware.NewTradingHalt(false, 0)
	h := handlers.NewOrderHandler(books, metrics.NewRecorder(cfg.MetricsMaxLatencies), cfg).WithHaltState(halt)

	return &testServer{app: routes.NewApp(h, halt, cfg), books: books, halt: halt}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func order(owner, id int64, side, typ string, price, qty int64) models.SubmitOrderRequest {
	return models.SubmitOrderRequest{OwnerID: owner, OrderID: id, Side: side, Type: typ, Price: price, Quantity: qty}
}

func TestSubmitOrderLifecycle(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "SELL", "LIMIT", 100, 10))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	rested := decode[models.SubmitOrderResponse](t, resp)
	assert.Equal(t, handlers.StatusResting, rested.Status)
	assert.EqualValues(t, 10, rested.RemainingQuantity)
	assert.Empty(t, rested.Fills)

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 1, "BUY", "LIMIT", 100, 4))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	filled := decode[models.SubmitOrderResponse](t, resp)
	assert.Equal(t, handlers.StatusFilled, filled.Status)
	require.Len(t, filled.Fills, 1)
	assert.EqualValues(t, 1, filled.Fills[0].MakerOwnerID)
	assert.EqualValues(t, 100, filled.Fills[0].Price)
	assert.EqualValues(t, 4, filled.Fills[0].Quantity)
	assert.NotEmpty(t, filled.Fills[0].TradeID)

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(3, 1, "BUY", "LIMIT", 101, 10))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	partial := decode[models.SubmitOrderResponse](t, resp)
	assert.Equal(t, handlers.StatusPartialFill, partial.Status)
	assert.EqualValues(t, 6, partial.FilledQuantity)
	assert.EqualValues(t, 4, partial.RemainingQuantity)

	top := decode[models.TopOfBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/IBM/top", nil))
	assert.Equal(t, models.PriceLevelInfo{Price: 101, Quantity: 4}, top.Bid)
	assert.Equal(t, models.PriceLevelInfo{Price: -1, Quantity: -1}, top.Ask)
}

func TestSubmitMarketOrderExpiresRemainder(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "SELL", "LIMIT", 100, 3)).Body.Close()

	resp := s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 1, "BUY", "MARKET", 0, 5))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[models.SubmitOrderResponse](t, resp)
	assert.Equal(t, handlers.StatusExpired, out.Status)
	assert.EqualValues(t, 3, out.FilledQuantity)
	assert.Zero(t, out.RemainingQuantity)
	assert.Contains(t, out.Message, "2")

	book, ok := s.books.Lookup("IBM")
	require.True(t, ok)
	assert.Zero(t, book.OrderCount(), "market remainder must not rest")
}

func TestSubmitOrderRejections(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"zero quantity", order(1, 1, "BUY", "LIMIT", 100, 0), http.StatusBadRequest},
		{"bad side", order(1, 1, "HOLD", "LIMIT", 100, 5), http.StatusBadRequest},
		{"bad type", order(1, 1, "BUY", "STOP", 100, 5), http.StatusBadRequest},
		{"limit without price", order(1, 1, "BUY", "LIMIT", 0, 5), http.StatusBadRequest},
		{"market with price", order(1, 1, "BUY", "MARKET", 100, 5), http.StatusBadRequest},
		{"malformed json", "not an order", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
			errResp := decode[models.ErrorResponse](t, resp)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestSubmitDuplicateOrderConflicts(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 7, "BUY", "LIMIT", 99, 5))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 7, "BUY", "LIMIT", 98, 5))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[models.ErrorResponse](t, resp)
	assert.Contains(t, errResp.Error, "already resting")

	// the same identity on another symbol is a different order
	resp = s.do(t, http.MethodPost, "/api/v1/books/MSFT/orders", order(1, 7, "BUY", "LIMIT", 98, 5))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelAndStatus(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(4, 2, "BUY", "LIMIT", 95, 12)).Body.Close()

	resp := s.do(t, http.MethodGet, "/api/v1/books/IBM/orders/4/2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[models.OrderStatusResponse](t, resp)
	assert.Equal(t, "BUY", status.Side)
	assert.EqualValues(t, 95, status.Price)
	assert.EqualValues(t, 12, status.Quantity)

	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/4/2", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[models.CancelOrderResponse](t, resp)
	assert.Equal(t, handlers.StatusCancelled, cancelled.Status)
	assert.EqualValues(t, 12, cancelled.CancelledQuantity)

	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/4/2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/api/v1/books/IBM/orders/4/2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodDelete, "/api/v1/books/NOPE/orders/4/2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/x/2", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelWithoutSymbol(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/MSFT/orders", order(9, 3, "SELL", "LIMIT", 250, 8)).Body.Close()

	resp := s.do(t, http.MethodDelete, "/api/v1/orders/9/3", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[models.CancelOrderResponse](t, resp)
	assert.Equal(t, "MSFT", cancelled.Symbol)
	assert.EqualValues(t, 8, cancelled.CancelledQuantity)

	resp = s.do(t, http.MethodDelete, "/api/v1/orders/9/3", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestOrderBookDepthIsClipped(t *testing.T) {
	s := setupTestServer(t)

	for i, price := range []int64{97, 98, 99} {
		s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, int64(i+1), "BUY", "LIMIT", price, 5)).Body.Close()
	}
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 1, "SELL", "LIMIT", 101, 3)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 2, "SELL", "LIMIT", 101, 4)).Body.Close()

	book := decode[models.OrderBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/IBM?depth=50", nil))
	assert.Equal(t, "IBM", book.Symbol)
	assert.Equal(t, []models.PriceLevelInfo{{Price: 99, Quantity: 5}, {Price: 98, Quantity: 5}}, book.Bids)
	assert.Equal(t, []models.PriceLevelInfo{{Price: 101, Quantity: 7}}, book.Asks)

	empty := decode[models.OrderBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/NONE", nil))
	assert.NotNil(t, empty.Bids)
	assert.Empty(t, empty.Bids)
	assert.Empty(t, empty.Asks)
}

func TestFlushEmptiesBook(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "BUY", "LIMIT", 99, 5)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 2, "SELL", "LIMIT", 101, 5)).Body.Close()

	resp := s.do(t, http.MethodPost, "/api/v1/books/IBM/flush", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	flushed := decode[models.FlushResponse](t, resp)
	assert.Equal(t, "FLUSHED", flushed.Status)

	top := decode[models.TopOfBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/IBM/top", nil))
	assert.EqualValues(t, -1, top.Bid.Price)
	assert.EqualValues(t, -1, top.Ask.Price)
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "SELL", "LIMIT", 100, 5)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 1, "BUY", "LIMIT", 100, 2)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 2, "BUY", "LIMIT", -5, 2)).Body.Close()

	health := decode[models.HealthResponse](t, s.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "healthy", health.Status)
	assert.EqualValues(t, 1, health.OrdersInBook)
	assert.Equal(t, 1, health.Books)
	assert.False(t, health.TradingHalted)

	m := decode[models.MetricsResponse](t, s.do(t, http.MethodGet, "/metrics", nil))
	assert.EqualValues(t, 3, m.OrdersReceived)
	assert.EqualValues(t, 1, m.OrdersMatched)
	assert.EqualValues(t, 1, m.OrdersRejected)
	assert.EqualValues(t, 1, m.TradesExecuted)
	assert.EqualValues(t, 1, m.OrdersInBook)

	resp := s.do(t, http.MethodGet, "/metrics/prometheus", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "orderbook_trades_total"))
}

func TestTradingHaltBlocksOrderEntry(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "BUY", "LIMIT", 99, 5)).Body.Close()

	resp := s.do(t, http.MethodPost, "/admin/halt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.True(t, s.halt.IsHalted())

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 2, "BUY", "LIMIT", 99, 5))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/1/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodGet, "/api/v1/books/IBM/top", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	health := decode[models.HealthResponse](t, s.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, "halted", health.Status)

	resp = s.do(t, http.MethodPost, "/admin/resume", nil)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 2, "BUY", "LIMIT", 99, 5))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	resp, err := s.app.Test(req, int(time.Second.Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(middleware.RequestIDHeader))

	resp2 := s.do(t, http.MethodGet, "/health", nil)
	defer resp2.Body.Close()
	assert.NotEmpty(t, resp2.Header.Get(middleware.RequestIDHeader))
}

func TestBooksSurviveTrafficOnOtherSymbols(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/v1/books/AAAA/orders", order(1, 1, "BUY", "LIMIT", 100, 10))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	for i := 0; i < 50; i++ {
		resp := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/books/ZZ%02d/top", i), nil)
		resp.Body.Close()
	}
	resp = s.do(t, http.MethodPost, "/api/v1/books/QQQQ/orders", order(2, 1, "SELL", "LIMIT", 200, 3))
	resp.Body.Close()

	book, ok := s.books.Lookup("AAAA")
	require.True(t, ok, "symbols after traffic: %v", s.books.Symbols())
	assert.Equal(t, "AAAA", book.Symbol)
	assert.Equal(t, []string{"AAAA", "QQQQ"}, s.books.Symbols())

	top := decode[models.TopOfBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/AAAA/top", nil))
	assert.Equal(t, models.PriceLevelInfo{Price: 100, Quantity: 10}, top.Bid)

	resp = s.do(t, http.MethodGet, "/metrics/prometheus", nil)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `orderbook_orders_total{outcome="RESTING",symbol="AAAA"} 1`)
	assert.Contains(t, string(raw), `orderbook_orders_total{outcome="RESTING",symbol="QQQQ"} 1`)
}

func TestInterleavedSymbolsUseSeparateBooks(t *testing.T) {
	s := setupTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(1, 1, "SELL", "LIMIT", 100, 10)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/MSFT/orders", order(1, 2, "SELL", "LIMIT", 300, 5)).Body.Close()
	s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(2, 1, "BUY", "LIMIT", 99, 4)).Body.Close()

	// a crossing price on MSFT must not reach the IBM ask
	resp := s.do(t, http.MethodPost, "/api/v1/books/MSFT/orders", order(3, 1, "BUY", "LIMIT", 150, 2))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodPost, "/api/v1/books/IBM/orders", order(3, 2, "BUY", "LIMIT", 100, 6))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	filled := decode[models.SubmitOrderResponse](t, resp)
	require.Len(t, filled.Fills, 1)
	assert.EqualValues(t, 1, filled.Fills[0].MakerOrderID)

	ibm := decode[models.OrderBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/IBM", nil))
	assert.Equal(t, []models.PriceLevelInfo{{Price: 99, Quantity: 4}}, ibm.Bids)
	assert.Equal(t, []models.PriceLevelInfo{{Price: 100, Quantity: 4}}, ibm.Asks)

	msft := decode[models.OrderBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/MSFT", nil))
	assert.Equal(t, []models.PriceLevelInfo{{Price: 150, Quantity: 2}}, msft.Bids)
	assert.Equal(t, []models.PriceLevelInfo{{Price: 300, Quantity: 5}}, msft.Asks)

	// owner 1 order 2 rests only on MSFT
	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/1/2", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = s.do(t, http.MethodDelete, "/api/v1/orders/1/2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cancelled := decode[models.CancelOrderResponse](t, resp)
	assert.Equal(t, "MSFT", cancelled.Symbol)

	resp = s.do(t, http.MethodDelete, "/api/v1/books/IBM/orders/2/1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	top := decode[models.TopOfBookResponse](t, s.do(t, http.MethodGet, "/api/v1/books/MSFT/top", nil))
	assert.EqualValues(t, -1, top.Ask.Price)
	assert.EqualValues(t, 150, top.Bid.Price)
	assert.Equal(t, 2, s.books.OrderCount())
}

func TestAdminRoutesAreRateLimited(t *testing.T) {
	s := setupTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Max: 1, Window: time.Minute}
	})

	req := func(path string) int {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.Header.Set(middleware.OwnerHeader, "ops")
		resp, err := s.app.Test(r, -1)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, req("/admin/halt"))
	assert.Equal(t, http.StatusTooManyRequests, req("/admin/resume"))
	assert.True(t, s.halt.IsHalted())
}
