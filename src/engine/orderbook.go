package engine

import (
	"errors"
	"fmt"
	"sync"
)

type indexEntry struct {
	Side  Side
	Price int64
}

// Orderbook is a single-instrument limit order book matched under
// price-time priority. All methods are safe for concurrent use.
type Orderbook struct {
	Symbol string
	bids   *BookSide // sorted descending (highest first)
	asks   *BookSide // sorted ascending (lowest first)
	index  map[OrderKey]indexEntry
	mu     sync.RWMutex
}

func NewOrderbook(symbol string) *Orderbook {
	return &Orderbook{
		Symbol: symbol,
		bids:   newBookSide(Buy),
		asks:   newBookSide(Sell),
		index:  make(map[OrderKey]indexEntry),
	}
}

func (ob *Orderbook) sideOf(side Side) *BookSide {
	if side == Buy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder matches the order against the opposite side and rests any
// remainder. It returns false if the order was rejected, or if it was a
// market order whose unmatched remainder had to be discarded.
func (ob *Orderbook) AddOrder(side Side, ownerID, orderID, price, quantity int64, onMatch MatchFunc) bool {
	exec, err := ob.Submit(OrderRequest{
		Side:     side,
		OwnerID:  ownerID,
		OrderID:  orderID,
		Price:    price,
		Quantity: quantity,
	}, onMatch)
	return err == nil && exec.Discarded == 0
}

// Submit is AddOrder with the rejection reason and fill summary exposed.
func (ob *Orderbook) Submit(req OrderRequest, onMatch MatchFunc) (Execution, error) {
	if err := req.validate(); err != nil {
		return Execution{}, err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	key := req.Key()
	if _, exists := ob.index[key]; exists {
		return Execution{}, ErrDuplicateOrder
	}

	exec := Execution{}
	remaining := ob.cross(req, onMatch, &exec)
	exec.Filled = req.Quantity - remaining
	if remaining == 0 {
		return exec, nil
	}

	// edge case: price 0 is a sentinel, never a resting level
	if req.IsMarket() {
		exec.Discarded = remaining
		return exec, nil
	}

	ob.sideOf(req.Side).levelFor(req.Price).Append(req.OwnerID, req.OrderID, remaining)
	ob.index[key] = indexEntry{Side: req.Side, Price: req.Price}
	exec.Rested = remaining
	return exec, nil
}

// cross consumes resting liquidity from the opposite side and returns the
// incoming quantity left unmatched. Caller holds the write lock.
func (ob *Orderbook) cross(req OrderRequest, onMatch MatchFunc, exec *Execution) int64 {
	book := ob.sideOf(req.Side.Opposite())
	remaining := req.Quantity

	for remaining > 0 {
		level, ok := book.Best()
		if !ok || !book.crossedBy(req.Price, level.Price) {
			break
		}

		for remaining > 0 && !level.Empty() {
			head := level.Front()
			traded := min(head.Quantity, remaining)

			if onMatch != nil {
				onMatch(Match{
					Side:         req.Side,
					MakerOwnerID: head.OwnerID,
					MakerOrderID: head.OrderID,
					TakerOwnerID: req.OwnerID,
					TakerOrderID: req.OrderID,
					Price:        level.Price,
					Quantity:     traded,
				})
			}
			exec.Matches++

			if _, done := level.fillFront(traded); done {
				delete(ob.index, head.Key())
			}
			remaining -= traded
		}

		// edge case: remove empty price level
		if level.Empty() {
			book.removeLevel(level.Price)
		}
	}
	return remaining
}

func (ob *Orderbook) CancelOrder(ownerID, orderID int64) bool {
	_, err := ob.Cancel(ownerID, orderID)
	return err == nil
}

// Cancel removes a resting order and returns what was left of it.
func (ob *Orderbook) Cancel(ownerID, orderID int64) (Resting, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	key := OrderKey{OwnerID: ownerID, OrderID: orderID}
	entry, exists := ob.index[key]
	if !exists {
		return Resting{}, ErrUnknownOrder
	}

	book := ob.sideOf(entry.Side)
	level, ok := book.Level(entry.Price)
	if !ok {
		panic(fmt.Sprintf("engine: %s index points at missing level %d", ob.Symbol, entry.Price))
	}
	order, ok := level.Remove(key)
	if !ok {
		panic(fmt.Sprintf("engine: %s index points at missing order %d/%d", ob.Symbol, ownerID, orderID))
	}
	if level.Empty() {
		book.removeLevel(entry.Price)
	}
	delete(ob.index, key)

	return Resting{
		Side:     entry.Side,
		OwnerID:  ownerID,
		OrderID:  orderID,
		Price:    entry.Price,
		Quantity: order.Quantity,
	}, nil
}

// Flush empties the book. Safe on an empty book.
func (ob *Orderbook) Flush() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.clear()
	ob.asks.clear()
	clear(ob.index)
}

// MinAsk returns the best ask level, or (-1, -1) when there are no asks.
func (ob *Orderbook) MinAsk() (price int64, quantity int64) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	q := bestQuote(ob.asks)
	return q.Price, q.Quantity
}

// MaxBid returns the best bid level, or (-1, -1) when there are no bids.
func (ob *Orderbook) MaxBid() (price int64, quantity int64) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	q := bestQuote(ob.bids)
	return q.Price, q.Quantity
}

// TopOfBook reads both sides in one critical section.
func (ob *Orderbook) TopOfBook() (bid Quote, ask Quote) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return bestQuote(ob.bids), bestQuote(ob.asks)
}

func bestQuote(bs *BookSide) Quote {
	level, ok := bs.Best()
	if !ok {
		return NoQuote
	}
	return Quote{Price: level.Price, Quantity: level.Total}
}

func (ob *Orderbook) Lookup(ownerID, orderID int64) (Resting, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	key := OrderKey{OwnerID: ownerID, OrderID: orderID}
	entry, exists := ob.index[key]
	if !exists {
		return Resting{}, false
	}
	level, ok := ob.sideOf(entry.Side).Level(entry.Price)
	if !ok {
		return Resting{}, false
	}

	res := Resting{Side: entry.Side, OwnerID: ownerID, OrderID: orderID, Price: entry.Price}
	level.each(func(o *Order) {
		if o.Key() == key {
			res.Quantity = o.Quantity
		}
	})
	return res, true
}

func (ob *Orderbook) OrderCount() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return len(ob.index)
}

// Depth returns up to depth aggregated levels per side, best first.
func (ob *Orderbook) Depth(depth int) (bids []Quote, asks []Quote) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return collectLevels(ob.bids, depth), collectLevels(ob.asks, depth)
}

func collectLevels(bs *BookSide, depth int) []Quote {
	if depth <= 0 {
		return []Quote{}
	}
	levels := make([]Quote, 0, min(depth, bs.Len()))
	bs.Ascend(func(level *PriceLevel) bool {
		if len(levels) >= depth {
			return false
		}
		levels = append(levels, Quote{Price: level.Price, Quantity: level.Total})
		return true
	})
	return levels
}

// verify checks every structural invariant of the book.
func (ob *Orderbook) verify() error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var errs []error
	seen := 0
	for _, bs := range []*BookSide{ob.bids, ob.asks} {
		bs.Ascend(func(level *PriceLevel) bool {
			if level.Price <= 0 {
				errs = append(errs, fmt.Errorf("%s level with non-positive price %d", bs.side, level.Price))
			}
			if level.Empty() {
				errs = append(errs, fmt.Errorf("%s empty level %d kept in book", bs.side, level.Price))
			}
			if err := level.verify(); err != nil {
				errs = append(errs, err)
			}
			level.each(func(o *Order) {
				seen++
				entry, ok := ob.index[o.Key()]
				if !ok || entry.Side != bs.side || entry.Price != level.Price {
					errs = append(errs, fmt.Errorf("order %d/%d at %s %d not indexed there", o.OwnerID, o.OrderID, bs.side, level.Price))
				}
			})
			return true
		})
	}
	if seen != len(ob.index) {
		errs = append(errs, fmt.Errorf("index holds %d entries, book holds %d orders", len(ob.index), seen))
	}
	return errors.Join(errs...)
}
