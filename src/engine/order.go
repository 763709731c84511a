package engine

import (
	"errors"
	"strings"
)

type Side int8

const (
	Buy Side = iota + 1
	Sell
)

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BUY", "BID":
		return Buy, nil
	case "S", "SELL", "ASK":
		return Sell, nil
	}
	return 0, ErrInvalidSide
}

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return 0
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "INVALID"
}

var (
	ErrDuplicateOrder  = errors.New("order already resting in book")
	ErrUnknownOrder    = errors.New("order not resting in book")
	ErrInvalidSide     = errors.New("side must be BUY or SELL")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must not be negative")
)

// MarketPrice marks an incoming order as marketable against any resting price.
const MarketPrice int64 = 0

// OrderKey identifies an order across the whole book.
type OrderKey struct {
	OwnerID int64
	OrderID int64
}

// Order is one resting record inside a price level. Quantity only decreases.
type Order struct {
	OwnerID  int64
	OrderID  int64
	Quantity int64
}

func (o *Order) Key() OrderKey {
	return OrderKey{OwnerID: o.OwnerID, OrderID: o.OrderID}
}

// Match describes one resting order consumed (fully or partially) by an
// incoming order. Side is the incoming order's side; Price is the resting
// level's price.
type Match struct {
	Side         Side
	MakerOwnerID int64
	MakerOrderID int64
	TakerOwnerID int64
	TakerOrderID int64
	Price        int64
	Quantity     int64
}

// MatchFunc receives fills while the book is exclusively locked, so it must
// not call back into the same Orderbook. The returned value is ignored and
// matching always continues.
type MatchFunc func(m Match) bool

type OrderRequest struct {
	Side     Side
	OwnerID  int64
	OrderID  int64
	Price    int64
	Quantity int64
}

func (r OrderRequest) Key() OrderKey {
	return OrderKey{OwnerID: r.OwnerID, OrderID: r.OrderID}
}

func (r OrderRequest) IsMarket() bool {
	return r.Price == MarketPrice
}

func (r OrderRequest) validate() error {
	if !r.Side.Valid() {
		return ErrInvalidSide
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Price < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Execution summarises what happened to an incoming order.
type Execution struct {
	Filled    int64
	Rested    int64
	Discarded int64
	Matches   int
}

func (e Execution) FullyFilled() bool {
	return e.Rested == 0 && e.Discarded == 0
}

// Resting is a copy of an indexed order, safe to hold after the lock is released.
type Resting struct {
	Side     Side
	OwnerID  int64
	OrderID  int64
	Price    int64
	Quantity int64
}

// Quote is a price level's aggregate. Empty sides report NoQuote.
type Quote struct {
	Price    int64
	Quantity int64
}

var NoQuote = Quote{Price: -1, Quantity: -1}

func (q Quote) Empty() bool {
	return q == NoQuote
}
