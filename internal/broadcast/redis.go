package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "teahub:"

// RedisTransport publishes envelopes on Redis so that every server process
// relays them to its own connections.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return t.client.Publish(ctx, redisChannelPrefix+env.Channel, payload).Err()
}

// Relay forwards every envelope published on Redis to dst until ctx is
// done.
func Relay(ctx context.Context, client *redis.Client, dst Transport, l *log.Logger) error {
	pubsub := client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				l.Printf("relay: invalid envelope on %q: %v", msg.Channel, err)
				continue
			}

			if err := dst.Publish(ctx, &env); err != nil {
				l.Printf("relay: deliver %s to %s: %v", env.Event, env.Channel, err)
			}
		}
	}
}
