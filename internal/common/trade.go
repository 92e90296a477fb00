package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one execution. Execution price always
// equals the resting (passive) order's price at the moment of match — the
// aggressor pays or receives the posted price, never its own.
type Trade struct {
	ID            uuid.UUID
	AssetType     AssetType
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	BuyerOrderID  uuid.UUID
	SellerOrderID uuid.UUID
	Timestamp     time.Time
}

// CounterpartyOf returns the order id of the other side of the trade
// relative to a known participant, or the zero UUID if id matches neither
// side.
func (t Trade) CounterpartyOf(id uuid.UUID) uuid.UUID {
	switch id {
	case t.BuyerOrderID:
		return t.SellerOrderID
	case t.SellerOrderID:
		return t.BuyerOrderID
	default:
		return uuid.UUID{}
	}
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s price=%s qty=%s buyer=%s seller=%s at=%s}",
		t.ID, t.Price, t.Quantity, t.BuyerOrderID, t.SellerOrderID,
		t.Timestamp.Format(time.RFC3339),
	)
}
