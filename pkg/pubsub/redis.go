package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

// RedisPubSub implements PubSub on Redis channels. Channel names are used
// as is; patterns go through PSUBSCRIBE.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[string]*redisSubscription
	mu            sync.Mutex
	closed        bool
}

// NewRedisPubSub connects to Redis and returns a PubSub instance.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string]*redisSubscription),
	}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	if strings.Contains(channel, "*") {
		return nil, fmt.Errorf("channel %q contains a wildcard, use SubscribePattern", channel)
	}
	return r.subscribe(ctx, channel, false)
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, true)
}

// subscribe replaces any earlier subscription under the same key.
func (r *RedisPubSub) subscribe(ctx context.Context, key string, pattern bool) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	r.dropLocked(key)

	var ps *redis.PubSub
	if pattern {
		ps = r.client.PSubscribe(ctx, key)
	} else {
		ps = r.client.Subscribe(ctx, key)
	}
	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	r.subscriptions[key] = &redisSubscription{ps: ps, cancel: cancel}

	eventCh := make(chan *Event, subscriberBuffer)
	go r.processMessages(subCtx, ps, eventCh)
	return eventCh, nil
}

func (r *RedisPubSub) dropLocked(key string) error {
	s, ok := r.subscriptions[key]
	if !ok {
		return nil
	}
	delete(r.subscriptions, key)
	s.cancel()
	return s.ps.Close()
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.dropLocked(channel); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", channel, err)
	}
	return nil
}

// Close closes all subscriptions and the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	for key := range r.subscriptions {
		r.dropLocked(key)
	}
	return r.client.Close()
}

func (r *RedisPubSub) processMessages(ctx context.Context, ps *redis.PubSub, eventCh chan<- *Event) {
	defer close(eventCh)
	l := driverLogger("redis")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !deliver(ctx, &l, msg.Channel, []byte(msg.Payload), eventCh) {
				return
			}
		}
	}
}
