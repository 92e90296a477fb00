package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/common"
)

func TestMatch_NoCross_Rests(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "101.00", "10")))

	incoming := limitOrder(common.Buy, "100.00", "5")
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	assert.Empty(t, trades)

	top, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, incoming.ID, top.ID)
}

func TestMatch_FullFill_TradesAtRestingPrice(t *testing.T) {
	book := NewOrderBook(common.Equities)
	resting := limitOrder(common.Sell, "100.00", "10")
	require.NoError(t, book.Add(resting))

	incoming := limitOrder(common.Buy, "100.00", "10")
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.True(t, trades[0].Price.Equal(dec("100.00")))
	assert.True(t, trades[0].Quantity.Equal(dec("10")))
	assert.Equal(t, incoming.ID, trades[0].BuyerOrderID)
	assert.Equal(t, resting.ID, trades[0].SellerOrderID)

	_, ok := book.BestAsk()
	assert.False(t, ok)
	_, ok = book.BestBid()
	assert.False(t, ok)
}

func TestMatch_AggressorPaysRestingPriceNotOwnPrice(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "99.00", "10")))

	// Willing to pay up to 105, but the resting ask is 99 — the trade must
	// clear at 99, the passive side's price, not the aggressor's limit.
	incoming := limitOrder(common.Buy, "105.00", "10")
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("99.00")))
}

func TestMatch_PartialFill_RestsResidual(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "100.00", "4")))

	incoming := limitOrder(common.Buy, "100.00", "10")
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Quantity.Equal(dec("4")))

	top, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, incoming.ID, top.ID)
	assert.True(t, top.Quantity.Equal(dec("6")))
}

func TestMatch_SweepsMultipleLevels(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "100.00", "5")))
	require.NoError(t, book.Add(limitOrder(common.Sell, "101.00", "5")))
	require.NoError(t, book.Add(limitOrder(common.Sell, "102.00", "5")))

	incoming := limitOrder(common.Buy, "101.50", "12")
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("100.00")))
	assert.True(t, trades[1].Price.Equal(dec("101.00")))

	top, ok := book.BestBid()
	require.True(t, ok)
	assert.True(t, top.Quantity.Equal(dec("2")))

	bestAsk, ok := book.BestAsk()
	require.True(t, ok)
	assert.True(t, bestAsk.Price.Equal(dec("102.00")))
}

func TestMatch_MarketOrder_CrossesAnyPriceAndNeverRests(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "150.00", "3")))

	incoming := &common.Order{
		ID:        uuid.New(),
		AssetType: common.Equities,
		OrderType: common.MarketOrder,
		Ticker:    "AAPL",
		Side:      common.Buy,
		Quantity:  dec("10"),
		Owner:     "tester",
	}
	trades, err := Match(book, incoming)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("150.00")))

	// The unfilled residual of a MARKET order is discarded, not rested.
	_, ok := book.BestBid()
	assert.False(t, ok)
	assert.Equal(t, 0, book.Len())
}

func TestMatch_InvalidOrder_RejectedBeforeAnyStateChange(t *testing.T) {
	book := NewOrderBook(common.Equities)
	require.NoError(t, book.Add(limitOrder(common.Sell, "100.00", "10")))

	bad := limitOrder(common.Buy, "-1", "10")
	trades, err := Match(book, bad)
	require.ErrorIs(t, err, common.ErrInvalidOrder)
	assert.Nil(t, trades)
	assert.Equal(t, 1, book.Len())
}
