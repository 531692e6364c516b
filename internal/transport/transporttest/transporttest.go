// Package transporttest provides in-memory collaborators for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/transport"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

// Dispatcher records every command and answers with canned responses.
type Dispatcher struct {
	mu        sync.Mutex
	sent      []transport.Command
	responses map[string]json.RawMessage
	errs      map[string]error
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

// Respond sets the response data returned for a command name.
func (d *Dispatcher) Respond(name string, data json.RawMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[name] = data
}

// Fail makes every command with the given name fail with err. A nil err
// clears the failure.
func (d *Dispatcher) Fail(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.errs, name)
		return
	}
	d.errs[name] = err
}

func (d *Dispatcher) Send(ctx context.Context, cmd transport.Command) (json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, cmd)
	if err, ok := d.errs[cmd.Name]; ok {
		return nil, err
	}
	return d.responses[cmd.Name], nil
}

// Sent returns the commands sent so far.
func (d *Dispatcher) Sent() []transport.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Command(nil), d.sent...)
}

// SentNamed returns the commands sent with the given name.
func (d *Dispatcher) SentNamed(name string) []transport.Command {
	var out []transport.Command
	for _, c := range d.Sent() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Channel is an in-memory Channel. Deliver* call handlers synchronously, so
// tests must call them on the loop that owns the handlers.
type Channel struct {
	mu      sync.Mutex
	nextID  int
	peer    map[int]transport.Handler
	channel map[int]transport.Handler
	order   []int
	joined  map[string]bool
	JoinErr error
}

func NewChannel() *Channel {
	return &Channel{
		peer:    make(map[int]transport.Handler),
		channel: make(map[int]transport.Handler),
		joined:  make(map[string]bool),
	}
}

func (c *Channel) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.JoinErr != nil {
		return c.JoinErr
	}
	c.joined[roomID] = true
	return nil
}

func (c *Channel) Leave(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.joined, roomID)
	return nil
}

// Joined reports whether roomID is currently joined.
func (c *Channel) Joined(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[roomID]
}

func (c *Channel) OnPeerMessage(h transport.Handler) func() {
	return c.register(c.peer, h)
}

func (c *Channel) OnChannelMessage(h transport.Handler) func() {
	return c.register(c.channel, h)
}

func (c *Channel) register(m map[int]transport.Handler, h transport.Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	m[id] = h
	c.order = append(c.order, id)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(m, id)
	}
}

// Handlers returns the number of live peer and channel handlers.
func (c *Channel) Handlers() (peer, channel int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peer), len(c.channel)
}

func (c *Channel) snapshot(m map[int]transport.Handler) []transport.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hs []transport.Handler
	for _, id := range c.order {
		if h, ok := m[id]; ok {
			hs = append(hs, h)
		}
	}
	return hs
}

// DeliverPeer hands a peer message to every peer handler.
func (c *Channel) DeliverPeer(cmd string, data string) {
	msg := domain.Message{Cmd: cmd, Data: json.RawMessage(data)}
	for _, h := range c.snapshot(c.peer) {
		h(msg)
	}
}

// DeliverChannel hands a broadcast message to every channel handler.
func (c *Channel) DeliverChannel(cmd string, data string) {
	msg := domain.Message{Cmd: cmd, Data: json.RawMessage(data)}
	for _, h := range c.snapshot(c.channel) {
		h(msg)
	}
}

// PubSub is an in-memory pubsub.PubSub with exact channel matching.
type PubSub struct {
	mu        sync.Mutex
	subs      map[string]chan *pubsub.Event
	published []Published
}

// Published is one recorded Publish call.
type Published struct {
	Channel string
	Event   *pubsub.Event
}

func NewPubSub() *PubSub {
	return &PubSub{subs: make(map[string]chan *pubsub.Event)}
}

func (p *PubSub) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, Published{Channel: channel, Event: event})
	if ch, ok := p.subs[channel]; ok {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (p *PubSub) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan *pubsub.Event, 100)
	p.subs[channel] = ch
	return ch, nil
}

func (p *PubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *pubsub.Event, error) {
	return p.Subscribe(ctx, pattern)
}

func (p *PubSub) Unsubscribe(ctx context.Context, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subs[channel]; ok {
		close(ch)
		delete(p.subs, channel)
	}
	return nil
}

// Subscribed reports whether channel has a subscriber.
func (p *PubSub) Subscribed(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[channel]
	return ok
}

// Published returns every recorded Publish call.
func (p *PubSub) Published() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.published...)
}

func (p *PubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, ch := range p.subs {
		close(ch)
		delete(p.subs, k)
	}
	return nil
}
