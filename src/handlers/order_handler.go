package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"orderbook/src/config"
	"orderbook/src/engine"
	"orderbook/src/metrics"
	"orderbook/src/models"
)

const (
	StatusResting     = "RESTING"
	StatusPartialFill = "PARTIAL_FILL"
	StatusFilled      = "FILLED"
	StatusExpired     = "EXPIRED"
	StatusCancelled   = "CANCELLED"
)

type haltState interface {
	IsHalted() bool
}

type OrderHandler struct {
	Books     *engine.Registry
	Recorder  *metrics.Recorder
	StartTime time.Time

	halt         haltState
	defaultDepth int
	maxDepth     int
}

func NewOrderHandler(books *engine.Registry, recorder *metrics.Recorder, cfg config.Config) *OrderHandler {
	return &OrderHandler{
		Books:        books,
		Recorder:     recorder,
		StartTime:    time.Now(),
		defaultDepth: cfg.DefaultDepth,
		maxDepth:     cfg.MaxDepth,
	}
}

// WithHaltState lets the health endpoint report trading halts.
func (h *OrderHandler) WithHaltState(halt haltState) *OrderHandler {
	h.halt = halt
	return h
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	orderReq, err := buildOrderRequest(&req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		h.Recorder.ObserveRejected(symbol)
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: err.Error(),
		})
	}

	log.Info().
		Str("symbol", symbol).
		Int64("owner_id", req.OwnerID).
		Int64("order_id", req.OrderID).
		Str("side", orderReq.Side.String()).
		Int64("price", req.Price).
		Int64("quantity", req.Quantity).
		Str("ip", c.IP()).
		Msg("Order submitted")

	book := h.Books.Book(symbol)
	fills := make([]models.FillInfo, 0)

	startTime := time.Now()
	exec, err := book.Submit(orderReq, func(m engine.Match) bool {
		fills = append(fills, models.FillInfo{
			TradeID:      uuid.New().String(),
			MakerOwnerID: m.MakerOwnerID,
			MakerOrderID: m.MakerOrderID,
			Price:        m.Price,
			Quantity:     m.Quantity,
			Timestamp:    time.Now().UnixMilli(),
		})
		return true
	})
	latency := time.Since(startTime)

	if err != nil {
		h.Recorder.ObserveRejected(symbol)
		status := fiber.StatusBadRequest
		if errors.Is(err, engine.ErrDuplicateOrder) {
			status = fiber.StatusConflict
		}
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int64("owner_id", req.OwnerID).
			Int64("order_id", req.OrderID).
			Msg("Order rejected")
		return c.Status(status).JSON(models.ErrorResponse{
			Error: "Order rejected: " + err.Error(),
		})
	}

	status, code := classify(exec)
	h.Recorder.ObserveSubmit(symbol, status, len(fills), exec.Filled, latency)

	log.Info().
		Str("symbol", symbol).
		Int64("owner_id", req.OwnerID).
		Int64("order_id", req.OrderID).
		Str("status", status).
		Int64("filled_quantity", exec.Filled).
		Int64("rested_quantity", exec.Rested).
		Int64("discarded_quantity", exec.Discarded).
		Int("fills", len(fills)).
		Msg("Order processed")

	response := models.SubmitOrderResponse{
		Symbol:            symbol,
		OwnerID:           req.OwnerID,
		OrderID:           req.OrderID,
		Status:            status,
		FilledQuantity:    exec.Filled,
		RemainingQuantity: exec.Rested,
		Fills:             fills,
	}
	switch status {
	case StatusResting:
		response.Message = "Order added to book"
	case StatusExpired:
		response.Message = "Unmatched market quantity discarded: " + strconv.FormatInt(exec.Discarded, 10)
	}
	return c.Status(code).JSON(response)
}

func classify(exec engine.Execution) (string, int) {
	switch {
	case exec.Discarded > 0:
		return StatusExpired, fiber.StatusOK
	case exec.Filled == 0:
		return StatusResting, fiber.StatusCreated
	case exec.Rested > 0:
		return StatusPartialFill, fiber.StatusAccepted
	default:
		return StatusFilled, fiber.StatusOK
	}
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	ownerID, orderID, err := orderIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	book, ok := h.Books.Lookup(symbol)
	if !ok {
		h.Recorder.ObserveCancel(symbol, false)
		return orderNotFound(c, symbol, ownerID, orderID)
	}

	res, err := book.Cancel(ownerID, orderID)
	if err != nil {
		h.Recorder.ObserveCancel(symbol, false)
		return orderNotFound(c, symbol, ownerID, orderID)
	}
	h.Recorder.ObserveCancel(symbol, true)

	log.Info().
		Str("symbol", symbol).
		Int64("owner_id", ownerID).
		Int64("order_id", orderID).
		Int64("cancelled_quantity", res.Quantity).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		Symbol:            symbol,
		OwnerID:           ownerID,
		OrderID:           orderID,
		Status:            StatusCancelled,
		CancelledQuantity: res.Quantity,
	})
}

// CancelOrderAnywhere cancels by owner and order id when the client does not
// know which book holds the order.
func (h *OrderHandler) CancelOrderAnywhere(c *fiber.Ctx) error {
	ownerID, orderID, err := orderIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	symbol, res, ok := h.Books.CancelAnywhere(ownerID, orderID)
	if !ok {
		h.Recorder.ObserveCancel("", false)
		return orderNotFound(c, "", ownerID, orderID)
	}
	h.Recorder.ObserveCancel(symbol, true)

	log.Info().
		Str("symbol", symbol).
		Int64("owner_id", ownerID).
		Int64("order_id", orderID).
		Int64("cancelled_quantity", res.Quantity).
		Str("ip", c.IP()).
		Msg("Order cancelled")

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		Symbol:            symbol,
		OwnerID:           ownerID,
		OrderID:           orderID,
		Status:            StatusCancelled,
		CancelledQuantity: res.Quantity,
	})
}

func orderNotFound(c *fiber.Ctx, symbol string, ownerID, orderID int64) error {
	log.Warn().
		Str("symbol", symbol).
		Int64("owner_id", ownerID).
		Int64("order_id", orderID).
		Str("ip", c.IP()).
		Msg("Order not resting in book")
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: "Order not found",
	})
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	symbol := c.Params("symbol")
	ownerID, orderID, err := orderIdentity(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	book, ok := h.Books.Lookup(symbol)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: "Order not found"})
	}
	res, ok := book.Lookup(ownerID, orderID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: "Order not found"})
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		Symbol:   symbol,
		OwnerID:  res.OwnerID,
		OrderID:  res.OrderID,
		Side:     res.Side.String(),
		Price:    res.Price,
		Quantity: res.Quantity,
		Status:   StatusResting,
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(h.defaultDepth)))
	if err != nil || depth <= 0 {
		depth = h.defaultDepth
	}
	// edge case: enforce maximum depth limit
	if depth > h.maxDepth {
		depth = h.maxDepth
	}

	bids := make([]models.PriceLevelInfo, 0)
	asks := make([]models.PriceLevelInfo, 0)
	if book, ok := h.Books.Lookup(symbol); ok {
		bidLevels, askLevels := book.Depth(depth)
		bids = toLevelInfo(bidLevels)
		asks = toLevelInfo(askLevels)
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderBookResponse{
		Symbol:    symbol,
		Timestamp: time.Now().UnixMilli(),
		Bids:      bids,
		Asks:      asks,
	})
}

func toLevelInfo(levels []engine.Quote) []models.PriceLevelInfo {
	out := make([]models.PriceLevelInfo, 0, len(levels))
	for _, level := range levels {
		out = append(out, models.PriceLevelInfo{Price: level.Price, Quantity: level.Quantity})
	}
	return out
}

func (h *OrderHandler) GetTopOfBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	bid, ask := engine.NoQuote, engine.NoQuote
	if book, ok := h.Books.Lookup(symbol); ok {
		bid, ask = book.TopOfBook()
	}

	return c.Status(fiber.StatusOK).JSON(models.TopOfBookResponse{
		Symbol: symbol,
		Bid:    models.PriceLevelInfo{Price: bid.Price, Quantity: bid.Quantity},
		Ask:    models.PriceLevelInfo{Price: ask.Price, Quantity: ask.Quantity},
	})
}

func (h *OrderHandler) FlushOrderBook(c *fiber.Ctx) error {
	symbol := c.Params("symbol")

	if book, ok := h.Books.Lookup(symbol); ok {
		book.Flush()
	}
	h.Recorder.ObserveFlush()

	log.Warn().
		Str("symbol", symbol).
		Str("ip", c.IP()).
		Msg("Order book flushed")

	return c.Status(fiber.StatusOK).JSON(models.FlushResponse{
		Symbol: symbol,
		Status: "FLUSHED",
	})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	halted := h.halt != nil && h.halt.IsHalted()
	status := "healthy"
	if halted {
		status = "halted"
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(h.StartTime).Seconds()),
		OrdersInBook:  int64(h.Books.OrderCount()),
		Books:         len(h.Books.Symbols()),
		TradingHalted: halted,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	snap := h.Recorder.Snapshot()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         snap.OrdersReceived,
		OrdersMatched:          snap.OrdersMatched,
		OrdersCancelled:        snap.OrdersCancelled,
		OrdersRejected:         snap.OrdersRejected,
		OrdersInBook:           int64(h.Books.OrderCount()),
		TradesExecuted:         snap.TradesExecuted,
		LatencyP50Ms:           snap.LatencyP50Ms,
		LatencyP99Ms:           snap.LatencyP99Ms,
		LatencyP999Ms:          snap.LatencyP999Ms,
		ThroughputOrdersPerSec: snap.Throughput,
	})
}

func orderIdentity(c *fiber.Ctx) (ownerID, orderID int64, err error) {
	ownerID, err = strconv.ParseInt(c.Params("owner"), 10, 64)
	if err != nil {
		return 0, 0, &ValidationError{Message: "Invalid owner id: " + c.Params("owner")}
	}
	orderID, err = strconv.ParseInt(c.Params("order"), 10, 64)
	if err != nil {
		return 0, 0, &ValidationError{Message: "Invalid order id: " + c.Params("order")}
	}
	return ownerID, orderID, nil
}

func buildOrderRequest(req *models.SubmitOrderRequest) (engine.OrderRequest, error) {
	var side engine.Side
	switch strings.ToUpper(req.Side) {
	case "BUY":
		side = engine.Buy
	case "SELL":
		side = engine.Sell
	default:
		return engine.OrderRequest{}, &ValidationError{Message: "Invalid order: side must be BUY or SELL"}
	}

	orderType := strings.ToUpper(req.Type)
	if orderType == "" {
		orderType = "LIMIT"
	}
	if orderType != "LIMIT" && orderType != "MARKET" {
		return engine.OrderRequest{}, &ValidationError{Message: "Invalid order: type must be LIMIT or MARKET"}
	}

	if req.Quantity <= 0 {
		return engine.OrderRequest{}, &ValidationError{Message: "Invalid order: quantity must be positive"}
	}

	// edge case: price 0 is reserved for market orders
	if orderType == "LIMIT" && req.Price <= 0 {
		return engine.OrderRequest{}, &ValidationError{Message: "Invalid order: price must be positive for LIMIT orders"}
	}
	if orderType == "MARKET" && req.Price != 0 {
		return engine.OrderRequest{}, &ValidationError{Message: "Invalid order: price must be omitted for MARKET orders"}
	}

	return engine.OrderRequest{
		Side:     side,
		OwnerID:  req.OwnerID,
		OrderID:  req.OrderID,
		Price:    req.Price,
		Quantity: req.Quantity,
	}, nil
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
