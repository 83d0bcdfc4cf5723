package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackplane shares relay rooms through Redis pub/sub. Each room maps
// to one channel under Prefix.
type RedisBackplane struct {
	client *redis.Client
	prefix string
}

// NewRedisBackplane connects to addr and checks it is reachable.
func NewRedisBackplane(ctx context.Context, addr, prefix string) (*RedisBackplane, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if prefix == "" {
		prefix = "historyview"
	}
	return &RedisBackplane{client: client, prefix: prefix}, nil
}

func (b *RedisBackplane) channel(room string) string { return b.prefix + ":room:" + room }

func (b *RedisBackplane) Publish(ctx context.Context, room string, payload []byte) error {
	return b.client.Publish(ctx, b.channel(room), payload).Err()
}

// Subscribe delivers payloads published to room until ctx is done.
func (b *RedisBackplane) Subscribe(ctx context.Context, room string) (<-chan []byte, error) {
	ps := b.client.Subscribe(ctx, b.channel(room))
	// wait for the subscription to be confirmed so early publishes are not lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBackplane) Close() error { return b.client.Close() }
