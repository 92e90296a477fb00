package ingest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/common"
)

// fakeHarness is a synthetic level-2 feed's view of the engine: it only
// needs to record what was placed and cancelled, not actually match
// anything.
type fakeHarness struct {
	placed    []*common.Order
	cancelled []uuid.UUID
}

func (f *fakeHarness) PlaceOrder(_ common.AssetType, order *common.Order) ([]common.Trade, error) {
	f.placed = append(f.placed, order)
	return nil, nil
}

func (f *fakeHarness) CancelOrder(_ common.AssetType, id uuid.UUID) (bool, error) {
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLevelUpdater_NewLevel_Places(t *testing.T) {
	fake := &fakeHarness{}
	u := New(fake, common.Equities, "AAPL", "feed")

	require.NoError(t, u.Apply(common.Buy, price("100.00"), price("40")))

	require.Len(t, fake.placed, 1)
	assert.Equal(t, price("40"), fake.placed[0].Quantity)
	assert.Empty(t, fake.cancelled)
}

func TestLevelUpdater_UpdateLevel_CancelsPreviousAndReplaces(t *testing.T) {
	fake := &fakeHarness{}
	u := New(fake, common.Equities, "AAPL", "feed")

	require.NoError(t, u.Apply(common.Buy, price("100.00"), price("40")))
	firstID := fake.placed[0].ID

	require.NoError(t, u.Apply(common.Buy, price("100.00"), price("25")))

	require.Len(t, fake.cancelled, 1)
	assert.Equal(t, firstID, fake.cancelled[0])
	require.Len(t, fake.placed, 2)
	assert.Equal(t, price("25"), fake.placed[1].Quantity)
}

func TestLevelUpdater_ZeroQuantity_CancelsAndForgetsLevel(t *testing.T) {
	fake := &fakeHarness{}
	u := New(fake, common.Equities, "AAPL", "feed")

	require.NoError(t, u.Apply(common.Sell, price("101.50"), price("10")))
	require.NoError(t, u.Apply(common.Sell, price("101.50"), decimal.Zero))

	require.Len(t, fake.cancelled, 1)
	require.Len(t, fake.placed, 1) // no replacement placed for zero quantity

	// A fresh nonzero update after the level was forgotten places anew
	// without issuing a spurious cancel.
	require.NoError(t, u.Apply(common.Sell, price("101.50"), price("5")))
	assert.Len(t, fake.cancelled, 1)
	assert.Len(t, fake.placed, 2)
}
