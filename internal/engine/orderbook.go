package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"matchcore/internal/common"
)

// PriceLevel holds every order resting at one price, in FIFO arrival
// order. Any order in the slice may be a tombstone: still physically
// present but absent from the book's id directory because it was
// cancelled. dead counts tombstones currently in the slice so
// settleLevel can decide, in O(1), whether a full compaction is due
// without rescanning the level on every peek.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
	dead   int
}

// Levels is one side's price index: bids sorted price DESC, asks price
// ASC, ties broken inside a level by FIFO arrival order.
type Levels = btree.BTreeG[*PriceLevel]

// OrderBook is the matching core's central structure: two price-ordered
// level indexes plus an id directory whose presence is the sole authority
// on whether an order is live. OrderBook performs no locking of its own —
// exclusivity is the concurrency harness's job; every exported method
// here assumes the caller already holds whatever lock serializes book
// mutations.
type OrderBook struct {
	AssetType common.AssetType

	Bids *Levels
	Asks *Levels

	orders  map[uuid.UUID]*common.Order
	arrival uint64
}

// NewOrderBook constructs an empty book for one instrument.
func NewOrderBook(assetType common.AssetType) *OrderBook {
	return &OrderBook{
		AssetType: assetType,
		Bids: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price.GreaterThan(b.Price) // highest bid first
		}),
		Asks: btree.NewBTreeG(func(a, b *PriceLevel) bool {
			return a.Price.LessThan(b.Price) // lowest ask first
		}),
		orders: make(map[uuid.UUID]*common.Order),
	}
}

func (book *OrderBook) levels(side common.Side) *Levels {
	if side == common.Buy {
		return book.Bids
	}
	return book.Asks
}

// Add inserts a LIMIT order into the side-appropriate level and the id
// directory. Precondition: order.ID is not already in the directory.
func (book *OrderBook) Add(order *common.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	if _, exists := book.orders[order.ID]; exists {
		return common.ErrOrderExists
	}

	book.arrival++
	order.Arrival = book.arrival

	levels := book.levels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if !ok {
		level = &PriceLevel{Price: order.Price}
		levels.Set(level)
	}
	level.Orders = append(level.Orders, order)
	book.orders[order.ID] = order

	book.settleLevel(level)
	return nil
}

// Cancel removes id from the directory if present and marks its physical
// entry as a tombstone. Idempotent: cancelling an unknown or
// already-cancelled id is a silent no-op, never an error.
func (book *OrderBook) Cancel(id uuid.UUID) bool {
	order, ok := book.orders[id]
	if !ok {
		return false
	}
	delete(book.orders, id)

	if level, ok := book.levels(order.Side).GetMut(&PriceLevel{Price: order.Price}); ok {
		level.dead++
	}
	return true
}

// BestBid returns the highest-priority live bid, discarding tombstones
// from the top of the book as needed.
func (book *OrderBook) BestBid() (*common.Order, bool) {
	return book.best(book.Bids)
}

// BestAsk returns the highest-priority live ask, discarding tombstones
// from the top of the book as needed.
func (book *OrderBook) BestAsk() (*common.Order, bool) {
	return book.best(book.Asks)
}

func (book *OrderBook) best(levels *Levels) (*common.Order, bool) {
	for {
		level, ok := levels.MinMut()
		if !ok {
			return nil, false
		}
		book.settleLevel(level)
		if len(level.Orders) == 0 {
			levels.Delete(level)
			continue
		}
		return level.Orders[0], true
	}
}

// PopBestBid removes and returns the top live bid.
func (book *OrderBook) PopBestBid() (*common.Order, bool) {
	return book.popBest(book.Bids)
}

// PopBestAsk removes and returns the top live ask.
func (book *OrderBook) PopBestAsk() (*common.Order, bool) {
	return book.popBest(book.Asks)
}

func (book *OrderBook) popBest(levels *Levels) (*common.Order, bool) {
	order, ok := book.best(levels)
	if !ok {
		return nil, false
	}
	level, _ := levels.MinMut()
	level.Orders = level.Orders[1:]
	delete(book.orders, order.ID)

	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
	return order, true
}

// settleLevel decides, in O(1) amortized, how to shed tombstones from a
// level that has just surfaced at the top or been touched by Add. When at
// least half the level is tombstoned it pays for one full compaction
// triggered on touch rather than on a timer so the matching path never
// needs a background sweep to stay correct; otherwise it only trims the
// cheap case of dead entries run up against the front.
func (book *OrderBook) settleLevel(level *PriceLevel) {
	if len(level.Orders) > 0 && level.dead*2 >= len(level.Orders) {
		book.compactLevel(level)
		return
	}
	book.pruneFront(level)
}

func (book *OrderBook) pruneFront(level *PriceLevel) {
	i := 0
	for i < len(level.Orders) {
		if _, live := book.orders[level.Orders[i].ID]; live {
			break
		}
		i++
	}
	if i == 0 {
		return
	}
	level.Orders = level.Orders[i:]
	level.dead -= i
	if level.dead < 0 {
		level.dead = 0
	}
}

func (book *OrderBook) compactLevel(level *PriceLevel) {
	filtered := level.Orders[:0]
	for _, o := range level.Orders {
		if _, live := book.orders[o.ID]; live {
			filtered = append(filtered, o)
		}
	}
	level.Orders = filtered
	level.dead = 0
}

// Level is one aggregated, display-ready rung of the book: a price and the
// total live quantity resting at it.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Depth returns up to k live price levels on side, best first, aggregating
// the quantity of every live order at each level. It needs not cleanse
// tombstones beyond the levels it returns.
func (book *OrderBook) Depth(side common.Side, k int) []Level {
	if k <= 0 {
		return nil
	}
	result := make([]Level, 0, k)
	book.levels(side).Scan(func(level *PriceLevel) bool {
		if len(result) >= k {
			return false
		}
		qty := decimal.Zero
		for _, o := range level.Orders {
			if _, live := book.orders[o.ID]; live {
				qty = qty.Add(o.Quantity)
			}
		}
		if qty.IsPositive() {
			result = append(result, Level{Price: level.Price, Quantity: qty})
		}
		return true
	})
	return result
}

// Len reports the number of live orders tracked by the directory —
// exposed for tests asserting directory size.
func (book *OrderBook) Len() int {
	return len(book.orders)
}
