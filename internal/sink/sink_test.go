package sink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
)

type blockingWriter struct {
	mu      sync.Mutex
	written []common.Trade
	release chan struct{}
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{release: make(chan struct{})}
}

func (w *blockingWriter) Write(ctx context.Context, trade common.Trade) error {
	select {
	case <-w.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	w.written = append(w.written, trade)
	w.mu.Unlock()
	return nil
}

func (w *blockingWriter) Written() []common.Trade {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]common.Trade, len(w.written))
	copy(out, w.written)
	return out
}

func newTrade() common.Trade {
	one := decimal.NewFromInt(1)
	return common.Trade{ID: uuid.New(), AssetType: common.Equities, Price: one, Quantity: one}
}

func TestMemoryWriter_WriteIsIdempotentByTradeID(t *testing.T) {
	w := NewMemoryWriter()
	trade := common.Trade{ID: uuid.New()}

	require.NoError(t, w.Write(context.Background(), trade))
	require.NoError(t, w.Write(context.Background(), trade))

	assert.Len(t, w.Trades(), 1)
}

func TestSink_Push_DropsOldestWhenFull(t *testing.T) {
	writer := newBlockingWriter() // never releases, so Run never drains
	s := New(2, writer, nil)

	first := newTrade()
	second := newTrade()
	third := newTrade()

	s.Push(first)
	s.Push(second)
	s.Push(third) // queue full at capacity 2: drops `first`

	assert.Equal(t, 2, len(s.queue))

	drained := drainQueue(s)
	ids := map[uuid.UUID]bool{}
	for _, tr := range drained {
		ids[tr.ID] = true
	}
	assert.False(t, ids[first.ID])
	assert.True(t, ids[second.ID])
	assert.True(t, ids[third.ID])
}

func TestSink_Run_DrainsIntoWriter(t *testing.T) {
	writer := NewMemoryWriter()
	s := New(8, writer, nil)

	tb := &tomb.Tomb{}
	tb.Go(func() error {
		return s.Run(tb)
	})

	trade := newTrade()
	s.Push(trade)

	require.Eventually(t, func() bool {
		return len(writer.Trades()) == 1
	}, time.Second, 10*time.Millisecond)

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
}

func drainQueue(s *Sink) []common.Trade {
	var out []common.Trade
	for {
		select {
		case t := <-s.queue:
			out = append(out, t)
		default:
			return out
		}
	}
}
