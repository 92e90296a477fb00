package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"matchcore/internal/common"
	"matchcore/internal/metrics"
)

// ErrUnknownAsset is returned when a caller addresses an asset type the
// harness was not constructed with.
var ErrUnknownAsset = errors.New("engine: unsupported asset type")

// Reporter is notified of engine activity that needs to leave the process:
// both legs of a completed trade, and an order rejected before any state
// change. Implementations must return quickly — they run synchronously on
// the path that just released the book lock, not under it.
type Reporter interface {
	ReportTrade(exec Execution)
	ReportError(owner string, err error)
}

// TradeSink receives every trade the harness produces, for durable
// persistence. Push must not block the caller for long; a slow or full
// sink is the sink's problem to shed load for, not the harness's.
type TradeSink interface {
	Push(trade common.Trade)
}

type bookGuard struct {
	mu   sync.RWMutex
	book *OrderBook
}

const defaultLogBookDepth = 10

// Harness is the concurrency harness: one exclusive lock per asset's book,
// serializing every mutation while allowing concurrent read-only
// snapshots to proceed under a shared lock. It owns no matching logic of
// its own — Match and OrderBook remain usable standalone (as the tests
// exercise directly) — it only adds the locking, reporting, and metrics
// plumbing a live deployment needs around them.
type Harness struct {
	guards       map[common.AssetType]*bookGuard
	logBookDepth int

	mu       sync.RWMutex
	reporter Reporter
	sink     TradeSink
	metrics  *metrics.Metrics
}

// New constructs a harness with one empty book per listed asset type.
func New(assetTypes ...common.AssetType) *Harness {
	h := &Harness{
		guards:       make(map[common.AssetType]*bookGuard, len(assetTypes)),
		logBookDepth: defaultLogBookDepth,
	}
	for _, assetType := range assetTypes {
		h.guards[assetType] = &bookGuard{book: NewOrderBook(assetType)}
	}
	return h
}

// SetLogBookDepth overrides how many levels per side LogBook reports.
func (h *Harness) SetLogBookDepth(depth int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logBookDepth = depth
}

// SetReporter installs the collaborator notified of trades and rejections.
// Safe to call while the harness is in use; reads of the reporter are
// synchronized against concurrent PlaceOrder calls.
func (h *Harness) SetReporter(r Reporter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reporter = r
}

// SetSink installs the collaborator that durably records trades.
func (h *Harness) SetSink(s TradeSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = s
}

// SetMetrics installs the collector updated on the matching path.
func (h *Harness) SetMetrics(m *metrics.Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

func (h *Harness) guard(assetType common.AssetType) (*bookGuard, error) {
	g, ok := h.guards[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, assetType)
	}
	return g, nil
}

// PlaceOrder submits order against assetType's book under that book's
// exclusive lock, then — once the lock is released — notifies the
// reporter and sink of whatever trades resulted. A rejected order never
// touches the book and is reported as an error, not a trade.
func (h *Harness) PlaceOrder(assetType common.AssetType, order *common.Order) ([]common.Trade, error) {
	g, err := h.guard(assetType)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	executions, err := match(g.book, order)
	g.mu.Unlock()

	if err != nil {
		h.reportError(order.Owner, err)
		h.bumpRejected()
		return nil, err
	}

	trades := make([]common.Trade, len(executions))
	for i, exec := range executions {
		trades[i] = exec.Trade
		h.reportTrade(exec)
		h.pushSink(exec.Trade)
	}
	h.bumpMatched(len(executions))
	return trades, nil
}

// ErrOrderNotFound marks a cancel of an id absent from the book. It is
// never returned to the caller of CancelOrder — an unknown or
// already-terminal id stays a no-op, reported as false rather than an
// error — it exists only so the anomaly can be logged with a wrapped,
// greppable sentinel instead of a bare string.
var ErrOrderNotFound = errors.New("engine: order not found")

// CancelOrder removes id from assetType's book if present. A cancel of an
// unknown or already-terminal id is a no-op, reported as false rather
// than an error, and logged as an anomaly worth noticing.
func (h *Harness) CancelOrder(assetType common.AssetType, id uuid.UUID) (bool, error) {
	g, err := h.guard(assetType)
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	cancelled := g.book.Cancel(id)
	g.mu.Unlock()

	if !cancelled {
		log.Debug().
			Err(fmt.Errorf("%w: %s", ErrOrderNotFound, id)).
			Int("assetType", int(assetType)).
			Msg("cancel request for unknown order id")
	}
	return cancelled, nil
}

// WithBook runs fn with access to assetType's live book, held under its
// exclusive lock for the duration of the call: peeking the best bid/ask
// sheds tombstones and may delete emptied levels, so it is not safe under
// the shared lock Snapshot uses. fn must not retain book past the call
// returning. This is the seam a book-level reader (e.g. an Agent
// computing a price off the live best bid/ask) uses without the harness
// handing out an unsynchronized pointer.
func (h *Harness) WithBook(assetType common.AssetType, fn func(*OrderBook)) error {
	g, err := h.guard(assetType)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.book)
	return nil
}

// Snapshot returns up to depth price levels per side for assetType,
// acquired under a shared lock so it never blocks on, or is blocked by,
// another concurrent Snapshot.
func (h *Harness) Snapshot(assetType common.AssetType, depth int) (Snapshot, error) {
	g, err := h.guard(assetType)
	if err != nil {
		return Snapshot{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Snapshot{
		AssetType: assetType,
		Bids:      g.book.Depth(common.Buy, depth),
		Asks:      g.book.Depth(common.Sell, depth),
	}, nil
}

// LogBook emits a one-line depth summary per tracked book, for the
// operator-triggered debug request the wire protocol exposes.
func (h *Harness) LogBook() {
	h.mu.RLock()
	depth := h.logBookDepth
	h.mu.RUnlock()

	for assetType, g := range h.guards {
		g.mu.RLock()
		log.Info().
			Int("assetType", int(assetType)).
			Int("liveOrders", g.book.Len()).
			Interface("bids", g.book.Depth(common.Buy, depth)).
			Interface("asks", g.book.Depth(common.Sell, depth)).
			Msg("order book snapshot")
		g.mu.RUnlock()
	}
}

// Snapshot is a display-ready view of both sides of one book.
type Snapshot struct {
	AssetType common.AssetType
	Bids      []Level
	Asks      []Level
}

func (h *Harness) reportTrade(exec Execution) {
	h.mu.RLock()
	r := h.reporter
	h.mu.RUnlock()
	if r != nil {
		r.ReportTrade(exec)
	}
}

func (h *Harness) reportError(owner string, err error) {
	h.mu.RLock()
	r := h.reporter
	h.mu.RUnlock()
	if r != nil {
		r.ReportError(owner, err)
	}
}

func (h *Harness) pushSink(trade common.Trade) {
	h.mu.RLock()
	s := h.sink
	h.mu.RUnlock()
	if s != nil {
		s.Push(trade)
	}
}

func (h *Harness) bumpMatched(n int) {
	h.mu.RLock()
	m := h.metrics
	h.mu.RUnlock()
	if m != nil && n > 0 {
		m.TradesMatched.Add(float64(n))
	}
}

func (h *Harness) bumpRejected() {
	h.mu.RLock()
	m := h.metrics
	h.mu.RUnlock()
	if m != nil {
		m.OrdersRejected.Inc()
	}
}
