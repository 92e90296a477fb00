package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

type fakeSource struct {
	snapshot engine.Snapshot
}

func (f *fakeSource) Snapshot(_ common.AssetType, _ int) (engine.Snapshot, error) {
	return f.snapshot, nil
}

type recordingPublisher struct {
	payloads [][]byte
}

func (r *recordingPublisher) Publish(_ common.AssetType, snapshot []byte) error {
	r.payloads = append(r.payloads, snapshot)
	return nil
}

func TestBroadcaster_Subscribe_ReceivesTicks(t *testing.T) {
	source := &fakeSource{snapshot: engine.Snapshot{AssetType: common.Equities}}
	b := New(source, common.Equities, 5, 5*time.Millisecond)
	ch := b.Subscribe()

	tb := &tomb.Tomb{}
	tb.Go(func() error { return b.Run(tb) })
	defer func() {
		tb.Kill(nil)
		tb.Wait()
	}()

	select {
	case snap := <-ch:
		assert.Equal(t, common.Equities, snap.AssetType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func TestBroadcaster_Unsubscribe_ClosesChannel(t *testing.T) {
	source := &fakeSource{}
	b := New(source, common.Equities, 5, time.Hour)
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_Tick_PublishesToRelay(t *testing.T) {
	source := &fakeSource{snapshot: engine.Snapshot{AssetType: common.Equities}}
	b := New(source, common.Equities, 5, 5*time.Millisecond)
	publisher := &recordingPublisher{}
	b.SetPublisher(publisher)

	tb := &tomb.Tomb{}
	tb.Go(func() error { return b.Run(tb) })

	require.Eventually(t, func() bool {
		return len(publisher.payloads) > 0
	}, time.Second, 10*time.Millisecond)

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
}
