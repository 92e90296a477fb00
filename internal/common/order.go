package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is an immutable description of intent, mutated only through the
// two paths the engine allows: a partial fill decrements Quantity, or the
// order is removed (cancelled or fully filled). Once Quantity reaches zero
// the order is terminal and must never re-enter a book.
type Order struct {
	ID        uuid.UUID
	AssetType AssetType
	OrderType OrderType
	Ticker    string
	Side      Side
	Price     decimal.Decimal // unused (zero) for MarketOrder
	Quantity  decimal.Decimal
	Owner     string

	// Timestamp is wall-clock, kept only for observability and wire
	// reports. Arrival is the book's tie-break key (see PriceLevel),
	// assigned at Add time so ties are resolved by a total order that
	// never depends on clock resolution or collisions.
	Timestamp time.Time
	Arrival   uint64
}

// Validate enforces the invariants an incoming order must satisfy before
// it may touch the book: a LIMIT must carry a strictly positive price,
// and quantity may never be negative.
func (o Order) Validate() error {
	if o.OrderType != LimitOrder && o.OrderType != MarketOrder {
		return fmt.Errorf("%w: unrecognized order type %d", ErrInvalidOrder, o.OrderType)
	}
	if o.OrderType == LimitOrder && !o.Price.IsPositive() {
		return fmt.Errorf("%w: limit price must be positive, got %s", ErrInvalidOrder, o.Price)
	}
	if o.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative, got %s", ErrInvalidOrder, o.Quantity)
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: unrecognized side %d", ErrInvalidOrder, o.Side)
	}
	return nil
}

// Done reports whether the order is terminal: fully filled, and therefore
// ineligible to rest or to be matched against further.
func (o Order) Done() bool {
	return !o.Quantity.IsPositive()
}

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s side=%s type=%s ticker=%s price=%s qty=%s owner=%s arrival=%d}",
		o.ID, o.Side, o.OrderType, o.Ticker, o.Price, o.Quantity, o.Owner, o.Arrival,
	)
}
