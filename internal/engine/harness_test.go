package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/common"
)

type recordingReporter struct {
	mu     sync.Mutex
	trades []Execution
	errs   []error
}

func (r *recordingReporter) ReportTrade(exec Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, exec)
}

func (r *recordingReporter) ReportError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

type recordingSink struct {
	mu     sync.Mutex
	trades []common.Trade
}

func (s *recordingSink) Push(trade common.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
}

func TestHarness_PlaceOrder_UnknownAsset(t *testing.T) {
	h := New(common.Equities)
	_, err := h.PlaceOrder(common.AssetType(99), limitOrder(common.Buy, "100.00", "1"))
	require.ErrorIs(t, err, ErrUnknownAsset)
}

func TestHarness_PlaceOrder_NotifiesReporterAndSink(t *testing.T) {
	h := New(common.Equities)
	reporter := &recordingReporter{}
	sink := &recordingSink{}
	h.SetReporter(reporter)
	h.SetSink(sink)

	_, err := h.PlaceOrder(common.Equities, limitOrder(common.Sell, "100.00", "10"))
	require.NoError(t, err)

	_, err = h.PlaceOrder(common.Equities, limitOrder(common.Buy, "100.00", "10"))
	require.NoError(t, err)

	assert.Len(t, reporter.trades, 1)
	assert.Len(t, sink.trades, 1)
	assert.Empty(t, reporter.errs)
}

func TestHarness_PlaceOrder_RejectionReportsError(t *testing.T) {
	h := New(common.Equities)
	reporter := &recordingReporter{}
	h.SetReporter(reporter)

	_, err := h.PlaceOrder(common.Equities, limitOrder(common.Buy, "-1", "10"))
	require.Error(t, err)
	assert.Len(t, reporter.errs, 1)
}

func TestHarness_CancelOrder_RoundTrips(t *testing.T) {
	h := New(common.Equities)
	order := limitOrder(common.Buy, "100.00", "10")
	_, err := h.PlaceOrder(common.Equities, order)
	require.NoError(t, err)

	cancelled, err := h.CancelOrder(common.Equities, order.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	snap, err := h.Snapshot(common.Equities, 10)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
}

func TestHarness_Snapshot_ConcurrentWithPlaceOrder(t *testing.T) {
	h := New(common.Equities)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.PlaceOrder(common.Equities, limitOrder(common.Buy, "100.00", "1"))
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Snapshot(common.Equities, 5)
		}()
	}
	wg.Wait()

	snap, err := h.Snapshot(common.Equities, 5)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Quantity.Equal(dec("50")))
}
