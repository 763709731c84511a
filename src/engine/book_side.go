package engine

import "github.com/google/btree"

// BookSide holds the price levels of one side. The tree's minimum is always
// the best price: lowest for asks, highest for bids.
type BookSide struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
}

func newBookSide(side Side) *BookSide {
	less := func(a, b *PriceLevel) bool { return a.Price < b.Price }
	if side == Buy {
		less = func(a, b *PriceLevel) bool { return a.Price > b.Price }
	}
	return &BookSide{
		side:   side,
		levels: btree.NewG[*PriceLevel](32, less),
	}
}

func (bs *BookSide) Len() int {
	return bs.levels.Len()
}

func (bs *BookSide) Best() (*PriceLevel, bool) {
	return bs.levels.Min()
}

func (bs *BookSide) Level(price int64) (*PriceLevel, bool) {
	return bs.levels.Get(&PriceLevel{Price: price})
}

func (bs *BookSide) levelFor(price int64) *PriceLevel {
	if level, ok := bs.Level(price); ok {
		return level
	}
	level := newPriceLevel(price)
	bs.levels.ReplaceOrInsert(level)
	return level
}

func (bs *BookSide) removeLevel(price int64) {
	bs.levels.Delete(&PriceLevel{Price: price})
}

// crossedBy reports whether an incoming order at price can trade against a
// resting level at levelPrice on this side.
func (bs *BookSide) crossedBy(price, levelPrice int64) bool {
	if price == MarketPrice {
		return true
	}
	if bs.side == Sell {
		return levelPrice <= price
	}
	return levelPrice >= price
}

// Ascend walks levels from best to worst until fn returns false.
func (bs *BookSide) Ascend(fn func(level *PriceLevel) bool) {
	bs.levels.Ascend(fn)
}

func (bs *BookSide) clear() {
	bs.levels.Clear(false)
}
