package engine

import (
	"slices"
	"strings"
	"sync"
)

// Registry routes symbols to their independent order books.
type Registry struct {
	books map[string]*Orderbook
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		books: make(map[string]*Orderbook),
	}
}

func (r *Registry) Book(symbol string) *Orderbook {
	r.mu.RLock()
	if ob, exists := r.books[symbol]; exists {
		r.mu.RUnlock()
		return ob
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// edge case: double-check after acquiring write lock
	if ob, exists := r.books[symbol]; exists {
		return ob
	}

	// edge case: symbol may alias a reused request buffer
	symbol = strings.Clone(symbol)
	ob := NewOrderbook(symbol)
	r.books[symbol] = ob
	return ob
}

func (r *Registry) Lookup(symbol string) (*Orderbook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ob, exists := r.books[symbol]
	return ob, exists
}

// Symbols returns the known symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.books))
	for symbol := range r.books {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}

// CancelAnywhere cancels the order in whichever book holds it. Books are
// searched in symbol order; each book is locked on its own.
func (r *Registry) CancelAnywhere(ownerID, orderID int64) (string, Resting, bool) {
	for _, symbol := range r.Symbols() {
		ob, ok := r.Lookup(symbol)
		if !ok {
			continue
		}
		if res, err := ob.Cancel(ownerID, orderID); err == nil {
			return symbol, res, true
		}
	}
	return "", Resting{}, false
}

func (r *Registry) FlushAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ob := range r.books {
		ob.Flush()
	}
}

func (r *Registry) OrderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, ob := range r.books {
		total += ob.OrderCount()
	}
	return total
}
