package engine

import "fmt"

type PriceLevel struct {
	Price  int64
	Total  int64
	orders []*Order // fifo ordering for time priority, head at index 0
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (pl *PriceLevel) Len() int {
	return len(pl.orders)
}

func (pl *PriceLevel) Empty() bool {
	return pl.Total == 0
}

func (pl *PriceLevel) Append(ownerID, orderID, quantity int64) {
	pl.orders = append(pl.orders, &Order{OwnerID: ownerID, OrderID: orderID, Quantity: quantity})
	pl.Total += quantity
}

// Front returns the oldest order at this price, or nil.
func (pl *PriceLevel) Front() *Order {
	if len(pl.orders) == 0 {
		return nil
	}
	return pl.orders[0]
}

// Remove drops the order with the given identity. Linear in the level length.
func (pl *PriceLevel) Remove(key OrderKey) (*Order, bool) {
	for i, o := range pl.orders {
		if o.OwnerID != key.OwnerID || o.OrderID != key.OrderID {
			continue
		}
		pl.Total -= o.Quantity
		copy(pl.orders[i:], pl.orders[i+1:])
		pl.orders[len(pl.orders)-1] = nil
		pl.orders = pl.orders[:len(pl.orders)-1]
		return o, true
	}
	return nil, false
}

// fillFront takes quantity from the head order and pops it once exhausted.
func (pl *PriceLevel) fillFront(quantity int64) (head *Order, done bool) {
	head = pl.Front()
	if head == nil || quantity <= 0 || quantity > head.Quantity {
		panic(fmt.Sprintf("engine: invalid fill of %d at level %d", quantity, pl.Price))
	}
	head.Quantity -= quantity
	pl.Total -= quantity
	if head.Quantity > 0 {
		return head, false
	}
	pl.orders[0] = nil
	pl.orders = pl.orders[1:]
	return head, true
}

func (pl *PriceLevel) each(fn func(o *Order)) {
	for _, o := range pl.orders {
		fn(o)
	}
}

func (pl *PriceLevel) verify() error {
	var sum int64
	for _, o := range pl.orders {
		if o.Quantity <= 0 {
			return fmt.Errorf("level %d: order %d/%d has quantity %d", pl.Price, o.OwnerID, o.OrderID, o.Quantity)
		}
		sum += o.Quantity
	}
	if sum != pl.Total {
		return fmt.Errorf("level %d: total %d != sum %d", pl.Price, pl.Total, sum)
	}
	return nil
}
