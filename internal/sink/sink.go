// Package sink implements the trade sink (spec component C5): a bounded
// queue decoupling the matching path from durable persistence, with a
// drop-oldest-and-warn policy when a writer falls behind.
package sink

import (
	"context"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
	"matchcore/internal/metrics"
)

// Writer durably records a trade. Upsert semantics are required: the sink
// delivers at-least-once, so a Writer must treat a repeated trade ID as a
// no-op rather than a duplicate row.
type Writer interface {
	Write(ctx context.Context, trade common.Trade) error
}

// Sink is a bounded, single-consumer queue of trades awaiting persistence.
// Push never blocks the matching path: once the queue is full the oldest
// queued trade is dropped to make room, and the drop is counted and
// logged rather than silently swallowed.
type Sink struct {
	queue   chan common.Trade
	writer  Writer
	metrics *metrics.Metrics
}

// New constructs a sink with room for capacity trades. It starts no
// goroutine; the queue is drained only once the caller runs Run.
func New(capacity int, writer Writer, m *metrics.Metrics) *Sink {
	return &Sink{
		queue:   make(chan common.Trade, capacity),
		writer:  writer,
		metrics: m,
	}
}

// Push enqueues trade for persistence. If the queue is already full, the
// oldest queued trade is discarded to make room — a durability trade-off
// spelled out for operators, not a bug: a sink that blocked the matching
// path under load would turn a persistence slowdown into a trading halt.
func (s *Sink) Push(trade common.Trade) {
	for {
		select {
		case s.queue <- trade:
			s.depth(1)
			return
		default:
		}

		select {
		case dropped := <-s.queue:
			s.depth(-1)
			log.Warn().
				Str("droppedTradeID", dropped.ID.String()).
				Msg("trade sink queue full, dropping oldest trade")
			if s.metrics != nil {
				s.metrics.SinkSaturated.Inc()
			}
		default:
			// Another goroutine drained concurrently; retry the push.
		}
	}
}

// Run drains the queue into the writer until t is dying. Failed writes are
// logged and the trade is dropped rather than retried indefinitely —
// retry policy belongs to the Writer implementation, not the sink.
func (s *Sink) Run(t *tomb.Tomb) error {
	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			return nil
		case trade := <-s.queue:
			s.depth(-1)
			if err := s.writer.Write(ctx, trade); err != nil {
				log.Error().
					Err(err).
					Str("tradeID", trade.ID.String()).
					Msg("trade sink write failed")
			}
		}
	}
}

func (s *Sink) depth(delta int) {
	if s.metrics == nil {
		return
	}
	s.metrics.SinkDepth.Add(float64(delta))
}
