package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel work notifications go to.
const DefaultRedisChannel = "jobnik:work"

// RedisNotifier publishes stage types on a Redis pub/sub channel.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisNotifier publishes through client on channel.
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes stageType.
func (n *RedisNotifier) Notify(ctx context.Context, stageType string) error {
	return n.client.Publish(ctx, n.channel, stageType).Err()
}

// Subscribe returns announced stage types until ctx is done. The
// subscription is confirmed before Subscribe returns, so nothing published
// afterwards is missed.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan string, error) {
	sub := n.client.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("jobnik: subscribe to %s: %w", n.channel, err)
	}

	out := make(chan string, 16)
	msgs := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
