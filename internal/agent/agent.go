// Package agent provides synthetic order flow for exercising the matching
// kernel end to end outside of real participant traffic — demos,
// integration tests, and warming an otherwise-empty book.
package agent

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

// Agent decides the next order to submit given the current state of a
// book, or reports it has nothing to do. The decision logic is a
// pluggable strategy; RandomCrossingAgent is one concrete, intentionally
// simple implementation, not the only one expected.
type Agent interface {
	NextOrder(book *engine.OrderBook) (*common.Order, bool)
}

// RandomCrossingAgent posts an aggressively priced order on a randomly
// chosen side, priced to clear through the opposing best quote by offset.
// It exists to guarantee trades happen, not to model a realistic trader.
type RandomCrossingAgent struct {
	AssetType common.AssetType
	Ticker    string
	Owner     string
	Offset    decimal.Decimal
	MinQty    decimal.Decimal
	MaxQty    decimal.Decimal

	rng *rand.Rand
}

// New constructs a RandomCrossingAgent. seed controls the deterministic
// sequence of sides and quantities it produces, for reproducible demos
// and tests.
func New(assetType common.AssetType, ticker, owner string, offset, minQty, maxQty decimal.Decimal, seed int64) *RandomCrossingAgent {
	return &RandomCrossingAgent{
		AssetType: assetType,
		Ticker:    ticker,
		Owner:     owner,
		Offset:    offset,
		MinQty:    minQty,
		MaxQty:    maxQty,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// NextOrder returns an order priced to cross the book: a buy at the best
// ask plus Offset, or a sell at the best bid minus Offset (or at the best
// bid itself if that would not be positive). Returns false if the book
// has no two-sided market yet.
func (a *RandomCrossingAgent) NextOrder(book *engine.OrderBook) (*common.Order, bool) {
	bestBid, okBid := book.BestBid()
	bestAsk, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return nil, false
	}

	side := common.Buy
	if a.rng.Float64() < 0.5 {
		side = common.Sell
	}

	var price decimal.Decimal
	if side == common.Buy {
		price = bestAsk.Price.Add(a.Offset)
	} else {
		price = bestBid.Price.Sub(a.Offset)
		if !price.IsPositive() {
			price = bestBid.Price
		}
	}

	return &common.Order{
		ID:        uuid.New(),
		AssetType: a.AssetType,
		OrderType: common.LimitOrder,
		Ticker:    a.Ticker,
		Side:      side,
		Price:     price,
		Quantity:  a.randomQuantity(),
		Owner:     a.Owner,
	}, true
}

func (a *RandomCrossingAgent) randomQuantity() decimal.Decimal {
	span := a.MaxQty.Sub(a.MinQty)
	if !span.IsPositive() {
		return a.MinQty
	}
	frac := decimal.NewFromFloat(a.rng.Float64())
	return a.MinQty.Add(span.Mul(frac))
}
