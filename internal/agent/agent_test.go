package agent

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

func restingOrder(side common.Side, price string) *common.Order {
	p, err := decimal.NewFromString(price)
	if err != nil {
		panic(err)
	}
	return &common.Order{
		ID:        uuid.New(),
		AssetType: common.Equities,
		OrderType: common.LimitOrder,
		Ticker:    "AAPL",
		Side:      side,
		Price:     p,
		Quantity:  decimal.NewFromInt(10),
		Owner:     "maker",
	}
}

func TestRandomCrossingAgent_EmptyBook_DoesNothing(t *testing.T) {
	book := engine.NewOrderBook(common.Equities)
	a := New(common.Equities, "AAPL", "agent", decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(2), 1)

	_, ok := a.NextOrder(book)
	assert.False(t, ok)
}

func TestRandomCrossingAgent_TwoSidedBook_ProducesCrossingOrder(t *testing.T) {
	book := engine.NewOrderBook(common.Equities)
	require.NoError(t, book.Add(restingOrder(common.Buy, "99.00")))
	require.NoError(t, book.Add(restingOrder(common.Sell, "101.00")))

	a := New(common.Equities, "AAPL", "agent", decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.NewFromInt(2), 7)

	order, ok := a.NextOrder(book)
	require.True(t, ok)

	if order.Side == common.Buy {
		assert.True(t, order.Price.GreaterThanOrEqual(decimal.RequireFromString("101.00")))
	} else {
		assert.True(t, order.Price.LessThanOrEqual(decimal.RequireFromString("99.00")))
	}
}
