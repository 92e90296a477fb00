// Package broadcast periodically samples the order book and fans the
// resulting snapshot out to subscribed WebSocket clients — a market-data
// feed distinct from the transactional wire protocol in internal/net.
package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

// Source is the subset of the harness a broadcaster samples from.
type Source interface {
	Snapshot(assetType common.AssetType, depth int) (engine.Snapshot, error)
}

// Publisher relays a freshly sampled snapshot to collaborators outside
// this process, e.g. a Redis channel shared by other server instances.
// Optional: a Broadcaster with no Publisher set still serves its own
// directly-connected WebSocket subscribers.
type Publisher interface {
	Publish(assetType common.AssetType, snapshot []byte) error
}

// Broadcaster periodically snapshots one asset type's book and fans it out
// to two kinds of subscriber: in-process consumers registered through
// Subscribe/Unsubscribe (tests, same-process dashboards), and directly
// connected WebSocket clients registered through ServeHTTP. Both share the
// same drop-if-slow delivery: a subscriber that falls behind misses that
// tick's snapshot (it stays subscribed) rather than being allowed to stall
// the tick for everyone else.
type Broadcaster struct {
	source    Source
	assetType common.AssetType
	depth     int
	interval  time.Duration
	publisher Publisher

	upgrader websocket.Upgrader

	mu      sync.Mutex
	subs    map[chan engine.Snapshot]struct{}
	wsConns map[*websocket.Conn]chan []byte
}

// New constructs a broadcaster sampling assetType every interval, carrying
// up to depth levels per side.
func New(source Source, assetType common.AssetType, depth int, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		source:    source,
		assetType: assetType,
		depth:     depth,
		interval:  interval,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		subs:      make(map[chan engine.Snapshot]struct{}),
		wsConns:   make(map[*websocket.Conn]chan []byte),
	}
}

// SetPublisher installs the optional cross-instance relay.
func (b *Broadcaster) SetPublisher(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publisher = p
}

// Subscribe registers an in-process consumer and returns the channel it
// will receive snapshots on. The channel is buffered by one; a consumer
// that doesn't keep up misses ticks rather than blocking the broadcaster.
func (b *Broadcaster) Subscribe() chan engine.Snapshot {
	ch := make(chan engine.Snapshot, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe deregisters a channel obtained from Subscribe and closes it.
func (b *Broadcaster) Unsubscribe(ch chan engine.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams encoded
// snapshots to it until the connection closes.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("broadcast: websocket upgrade failed")
		return
	}

	send := make(chan []byte, 8)
	b.mu.Lock()
	b.wsConns[conn] = send
	b.mu.Unlock()

	go b.writeLoop(conn, send)
}

func (b *Broadcaster) writeLoop(conn *websocket.Conn, send chan []byte) {
	defer func() {
		b.mu.Lock()
		delete(b.wsConns, conn)
		b.mu.Unlock()
		conn.Close()
	}()
	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// Run samples and broadcasts on a fixed tick until t is dying.
func (b *Broadcaster) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			b.closeAll()
			return nil
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Broadcaster) tick() {
	snap, err := b.source.Snapshot(b.assetType, b.depth)
	if err != nil {
		log.Error().Err(err).Msg("broadcast: snapshot failed")
		return
	}

	payload, err := json.Marshal(wireSnapshot{
		AssetType: int(snap.AssetType),
		Bids:      toWireLevels(snap.Bids),
		Asks:      toWireLevels(snap.Asks),
	})
	if err != nil {
		log.Error().Err(err).Msg("broadcast: snapshot encode failed")
		return
	}

	b.mu.Lock()
	publisher := b.publisher
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
			log.Warn().Msg("broadcast: in-process subscriber lagging, dropping snapshot")
		}
	}
	for conn, send := range b.wsConns {
		select {
		case send <- payload:
		default:
			log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("broadcast: websocket subscriber lagging, dropping snapshot")
		}
	}
	b.mu.Unlock()

	if publisher != nil {
		if err := publisher.Publish(b.assetType, payload); err != nil {
			log.Error().Err(err).Msg("broadcast: publish to relay failed")
		}
	}
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
	for conn, send := range b.wsConns {
		close(send)
		delete(b.wsConns, conn)
	}
}

type wireLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type wireSnapshot struct {
	AssetType int         `json:"assetType"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

func toWireLevels(levels []engine.Level) []wireLevel {
	out := make([]wireLevel, len(levels))
	for i, l := range levels {
		out[i] = wireLevel{Price: l.Price.String(), Quantity: l.Quantity.String()}
	}
	return out
}
