package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// RedisPubSub carries bus events over Redis PUBLISH/SUBSCRIBE. Delivery is
// at-most-once: events published while nobody is subscribed are lost.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisPubSub dials Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient takes ownership of client; Close closes it.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client, subs: make(map[string]*redis.PubSub)}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	receivers, err := r.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	l := log.Ctx(ctx)
	l.Debug().
		Str("channel", channel).
		Str(log.FieldEventType, event.Type).
		Int64("receivers", receivers).
		Msg("event published")
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed. Subscribing twice to one channel replaces
// the earlier subscription.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.subs[channel]; ok {
		_ = old.Close()
	}

	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	r.subs[channel] = sub

	out := make(chan *Event, subscriberBuffer)
	go func() {
		defer close(out)
		l := log.Ctx(ctx)
		msgs := sub.Channel(redis.WithChannelSize(subscriberBuffer))
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok || !forward(ctx, l, channel, []byte(msg.Payload), out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel, sub := range r.subs {
		_ = sub.Close()
		delete(r.subs, channel)
	}
	return r.client.Close()
}
