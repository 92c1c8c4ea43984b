package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis bridges to a shared Redis instance: PUBLISH/SUBSCRIBE for live
// fan-out and capped lists (LPUSH + LTRIM) for history. The listener
// goroutine per topic consumes its subscription single-threaded, so
// per-topic delivery order follows publish order.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration

	mu   sync.Mutex
	subs map[string]*redisSub
}

type redisSub struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedis(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	return &Redis{
		client: client,
		log:    log.With(slog.String("comp", "broker")),
		ttl:    ttl,
		subs:   make(map[string]*redisSub),
	}
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) SubscribeOnce(ctx context.Context, topic string, fn Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[topic]; ok {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, topic)
	// Force the SUBSCRIBE round-trip so a publish issued immediately after
	// this call cannot race past an unestablished subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &redisSub{pubsub: pubsub, done: make(chan struct{})}
	r.subs[topic] = sub

	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			fn([]byte(msg.Payload))
		}
	}()
	return nil
}

func (r *Redis) Unsubscribe(_ context.Context, topic string) error {
	r.mu.Lock()
	sub, ok := r.subs[topic]
	if ok {
		delete(r.subs, topic)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	<-sub.done
	return nil
}

func (r *Redis) PushHistory(ctx context.Context, topic string, payload []byte, cap int) error {
	if cap <= 0 {
		return nil
	}
	key := historyKey(topic)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(cap-1))
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push history %s: %w", topic, err)
	}
	return nil
}

func (r *Redis) RecentHistory(ctx context.Context, topic string, limit int) ([][]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	vals, err := r.client.LRange(ctx, historyKey(topic), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent history %s: %w", topic, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Close tears down every open subscription.
func (r *Redis) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redisSub)
	r.mu.Unlock()

	for topic, sub := range subs {
		if err := sub.pubsub.Close(); err != nil {
			r.log.Warn("close subscription", slog.String("topic", topic), slog.Any("err", err))
		}
	}
}

func historyKey(topic string) string { return "history:" + topic }
