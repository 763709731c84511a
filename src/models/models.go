package models

type SubmitOrderRequest struct {
	OwnerID  int64  `json:"owner_id"`
	OrderID  int64  `json:"order_id"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"` // price in ticks, required for LIMIT, 0 for MARKET
	Quantity int64  `json:"quantity"`
}

type SubmitOrderResponse struct {
	Symbol            string     `json:"symbol"`
	OwnerID           int64      `json:"owner_id"`
	OrderID           int64      `json:"order_id"`
	Status            string     `json:"status"`
	Message           string     `json:"message,omitempty"`
	FilledQuantity    int64      `json:"filled_quantity"`
	RemainingQuantity int64      `json:"remaining_quantity"`
	Fills             []FillInfo `json:"fills,omitempty"`
}

type FillInfo struct {
	TradeID      string `json:"trade_id"`
	MakerOwnerID int64  `json:"maker_owner_id"`
	MakerOrderID int64  `json:"maker_order_id"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	Timestamp    int64  `json:"timestamp"` // unix timestamp in milliseconds
}

type CancelOrderResponse struct {
	Symbol            string `json:"symbol"`
	OwnerID           int64  `json:"owner_id"`
	OrderID           int64  `json:"order_id"`
	Status            string `json:"status"`
	CancelledQuantity int64  `json:"cancelled_quantity"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Symbol    string           `json:"symbol"`
	Timestamp int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids      []PriceLevelInfo `json:"bids"`      // sorted descending (highest first)
	Asks      []PriceLevelInfo `json:"asks"`      // sorted ascending (lowest first)
}

type PriceLevelInfo struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"` // aggregated quantity at this price
}

// TopOfBookResponse reports -1/-1 for an empty side.
type TopOfBookResponse struct {
	Symbol string         `json:"symbol"`
	Bid    PriceLevelInfo `json:"bid"`
	Ask    PriceLevelInfo `json:"ask"`
}

type OrderStatusResponse struct {
	Symbol   string `json:"symbol"`
	OwnerID  int64  `json:"owner_id"`
	OrderID  int64  `json:"order_id"`
	Side     string `json:"side"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"` // remaining resting quantity
	Status   string `json:"status"`
}

type FlushResponse struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	OrdersInBook  int64  `json:"orders_in_book"`
	Books         int    `json:"books"`
	TradingHalted bool   `json:"trading_halted"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersMatched          int64   `json:"orders_matched"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersInBook           int64   `json:"orders_in_book"`
	TradesExecuted         int64   `json:"trades_executed"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}
