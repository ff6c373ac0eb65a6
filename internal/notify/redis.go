package notify

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Kerhoff/giftpool/internal/models"
)

// RedisPublisher fans events out over Redis pub/sub, one channel per list:
// "<prefix>:list:<id>".
type RedisPublisher struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisPublisher connects and pings addr.
func NewRedisPublisher(addr, prefix string) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisPublisherWithClient(rdb, prefix), nil
}

// NewRedisPublisherWithClient uses an existing client.
func NewRedisPublisherWithClient(rdb *goredis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel returns the pub/sub channel for listID.
func (p *RedisPublisher) Channel(listID int64) string {
	return fmt.Sprintf("%s:list:%d", p.prefix, listID)
}

func (p *RedisPublisher) Publish(ctx context.Context, listID, excludeActorID int64, eventType models.EventType, payload any) error {
	raw, err := encode(listID, excludeActorID, eventType, payload)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.Channel(listID), raw).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
