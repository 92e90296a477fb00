// Package ingest adapts an absolute-quantity level feed (as a level-2
// market-data client would deliver) onto the engine's add/cancel order
// primitives, which only understand individual orders, not price-level
// deltas.
package ingest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

// Harness is the subset of engine.Harness a LevelUpdater drives.
type Harness interface {
	PlaceOrder(assetType common.AssetType, order *common.Order) ([]common.Trade, error)
	CancelOrder(assetType common.AssetType, id uuid.UUID) (bool, error)
}

type levelKey struct {
	side  common.Side
	price string
}

// LevelUpdater maintains one synthetic order per (side, price) level so
// that an absolute-quantity update — "the book now shows 40 resting at
// 101.50" — can be expressed as a cancel-and-replace against an engine
// that only knows how to add and cancel whole orders.
type LevelUpdater struct {
	harness   Harness
	assetType common.AssetType
	ticker    string
	owner     string

	mu      sync.Mutex
	current map[levelKey]uuid.UUID
}

// New constructs a LevelUpdater driving harness for one (assetType,
// ticker) pair. owner tags every synthetic order it places, so those
// orders are distinguishable from ones submitted by real participants.
func New(harness Harness, assetType common.AssetType, ticker, owner string) *LevelUpdater {
	return &LevelUpdater{
		harness:   harness,
		assetType: assetType,
		ticker:    ticker,
		owner:     owner,
		current:   make(map[levelKey]uuid.UUID),
	}
}

// Apply reconciles one level to newQuantity: the previous synthetic order
// at (side, price), if any, is cancelled, and a fresh one is placed
// carrying newQuantity unless it is zero, in which case the level is
// simply forgotten. Replacing rather than mutating in place keeps the
// updater ignorant of the book's internals and lets the normal matching
// path decide whether the fresh quantity crosses.
func (u *LevelUpdater) Apply(side common.Side, price, newQuantity decimal.Decimal) error {
	key := levelKey{side: side, price: price.String()}

	u.mu.Lock()
	previous, hadPrevious := u.current[key]
	delete(u.current, key)
	u.mu.Unlock()

	if hadPrevious {
		if _, err := u.harness.CancelOrder(u.assetType, previous); err != nil {
			return fmt.Errorf("ingest: cancel stale level order: %w", err)
		}
	}

	if !newQuantity.IsPositive() {
		return nil
	}

	order := &common.Order{
		ID:        uuid.New(),
		AssetType: u.assetType,
		OrderType: common.LimitOrder,
		Ticker:    u.ticker,
		Side:      side,
		Price:     price,
		Quantity:  newQuantity,
		Owner:     u.owner,
	}
	if _, err := u.harness.PlaceOrder(u.assetType, order); err != nil {
		return fmt.Errorf("ingest: place level order: %w", err)
	}

	u.mu.Lock()
	u.current[key] = order.ID
	u.mu.Unlock()
	return nil
}

var _ Harness = (*engine.Harness)(nil)
