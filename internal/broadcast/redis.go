package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"matchcore/internal/common"
)

// RedisPublisher relays snapshots to a Redis pub/sub channel so multiple
// server instances behind a load balancer can share one market-data feed
// without each needing a direct line to the harness.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher wraps an already-connected client. Channels are named
// "<prefix>:<assetType>".
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(assetType common.AssetType, snapshot []byte) error {
	channel := fmt.Sprintf("%s:%d", p.prefix, int(assetType))
	return p.client.Publish(context.Background(), channel, snapshot).Err()
}
