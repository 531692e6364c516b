package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// channelToSubject converts a colon separated channel or pattern into a NATS
// subject. The "*" wildcard keeps its meaning as a single token match.
//
//	"live:room:R1:channel" → "live.room.R1.channel"
//	"live:room:*:channel"  → "live.room.*.channel"
func channelToSubject(channel string) (string, error) {
	if channel == "" || strings.ContainsAny(channel, " \t.") {
		return "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return strings.ReplaceAll(channel, ":", "."), nil
}

type natsSubscription struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
}

// NATSPubSub implements PubSub interface using core NATS subjects.
type NATSPubSub struct {
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
	mu            sync.Mutex
	closed        bool
}

// NewNATSPubSub connects to NATS and returns a PubSub instance.
func NewNATSPubSub(cfg NATSConfig) (*NATSPubSub, error) {
	l := log.Component("nats")

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPubSub{
		conn:          nc,
		subscriptions: make(map[string]*natsSubscription),
	}, nil
}

// Publish publishes an event on the subject the channel maps to.
func (n *NATSPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	subject, err := channelToSubject(channel)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe subscribes to a specific channel.
func (n *NATSPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return n.subscribe(ctx, channel)
}

// SubscribePattern subscribes to channels matching a "*" pattern.
func (n *NATSPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return n.subscribe(ctx, pattern)
}

func (n *NATSPubSub) subscribe(ctx context.Context, key string) (<-chan *Event, error) {
	subject, err := channelToSubject(key)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if existing, ok := n.subscriptions[key]; ok {
		existing.cancel()
		existing.sub.Unsubscribe()
		delete(n.subscriptions, key)
	}

	msgCh := make(chan *nats.Msg, subscriberBuffer)
	sub, err := n.conn.ChanSubscribe(subject, msgCh)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	n.subscriptions[key] = &natsSubscription{sub: sub, cancel: cancel}

	eventCh := make(chan *Event, subscriberBuffer)
	go n.processMessages(subCtx, msgCh, eventCh)

	return eventCh, nil
}

// processMessages runs until the subscription's context is cancelled. The
// client never closes msgCh, so the context is the only exit.
func (n *NATSPubSub) processMessages(ctx context.Context, msgCh <-chan *nats.Msg, eventCh chan<- *Event) {
	defer close(eventCh)
	l := driverLogger("nats")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgCh:
			if !deliver(ctx, &l, msg.Subject, msg.Data, eventCh) {
				return
			}
		}
	}
}

// Unsubscribe unsubscribes from a channel or pattern.
func (n *NATSPubSub) Unsubscribe(ctx context.Context, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if s, ok := n.subscriptions[channel]; ok {
		s.cancel()
		delete(n.subscriptions, channel)
		if err := s.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("failed to unsubscribe: %w", err)
		}
	}
	return nil
}

// Close drains all subscriptions and closes the connection.
func (n *NATSPubSub) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	for key, s := range n.subscriptions {
		s.cancel()
		s.sub.Unsubscribe()
		delete(n.subscriptions, key)
	}

	n.conn.Close()
	return nil
}
