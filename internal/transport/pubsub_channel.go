package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
)

type handlerEntry struct {
	id uint64
	h  Handler
}

// PubSubChannel adapts a pubsub.PubSub to the Channel contract. It listens
// on the room broadcast channel and the local user's peer channel and posts
// every delivery onto the room's loop.
type PubSubChannel struct {
	ps     pubsub.PubSub
	userID string
	poster loop.Poster
	logger zerolog.Logger

	mu      sync.Mutex
	nextID  uint64
	peer    []handlerEntry
	channel []handlerEntry
	cancels map[string]context.CancelFunc
}

// NewPubSubChannel creates a channel client for userID.
func NewPubSubChannel(ps pubsub.PubSub, userID string, poster loop.Poster) *PubSubChannel {
	return &PubSubChannel{
		ps:      ps,
		userID:  userID,
		poster:  poster,
		logger:  log.Component("channel").With().Str(log.FieldUserID, userID).Logger(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Join subscribes to the room's broadcast channel and the user's peer
// channel.
func (c *PubSubChannel) Join(ctx context.Context, roomID string) error {
	roomCh := pubsub.RoomChannel(roomID)
	peerCh := pubsub.PeerChannel(c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cancels[roomCh]; ok {
		return nil
	}

	subCtx, cancel := context.WithCancel(context.Background())

	roomEvents, err := c.ps.Subscribe(subCtx, roomCh)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", roomCh, err)
	}
	peerEvents, err := c.ps.Subscribe(subCtx, peerCh)
	if err != nil {
		cancel()
		if uerr := c.ps.Unsubscribe(ctx, roomCh); uerr != nil {
			c.logger.Warn().Err(uerr).Str("channel", roomCh).Msg("unsubscribe after failed join")
		}
		return fmt.Errorf("subscribe %s: %w", peerCh, err)
	}

	c.cancels[roomCh] = cancel
	go c.forward(subCtx, roomEvents, false)
	go c.forward(subCtx, peerEvents, true)

	c.logger.Info().Str(log.FieldRoomID, roomID).Msg("joined channel")
	return nil
}

// Leave unsubscribes from the room's broadcast and peer channels.
func (c *PubSubChannel) Leave(ctx context.Context, roomID string) error {
	roomCh := pubsub.RoomChannel(roomID)

	c.mu.Lock()
	cancel, ok := c.cancels[roomCh]
	delete(c.cancels, roomCh)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	cancel()

	var firstErr error
	for _, ch := range []string{roomCh, pubsub.PeerChannel(c.userID)} {
		if err := c.ps.Unsubscribe(ctx, ch); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unsubscribe %s: %w", ch, err)
		}
	}
	c.logger.Info().Str(log.FieldRoomID, roomID).Msg("left channel")
	return firstErr
}

func (c *PubSubChannel) OnPeerMessage(h Handler) func() {
	return c.register(&c.peer, h)
}

func (c *PubSubChannel) OnChannelMessage(h Handler) func() {
	return c.register(&c.channel, h)
}

func (c *PubSubChannel) register(list *[]handlerEntry, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	*list = append(*list, handlerEntry{id: id, h: h})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range *list {
			if e.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

func (c *PubSubChannel) handlers(peer bool) []handlerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if peer {
		return c.peer
	}
	return c.channel
}

// forward posts each event to the loop. Handlers are looked up when the
// delivery runs, so a handler cancelled on the loop never sees later
// messages.
func (c *PubSubChannel) forward(ctx context.Context, events <-chan *pubsub.Event, peer bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			msg := domain.Message{Cmd: evt.Type, Data: evt.Payload}
			if !c.poster.Post(func() {
				for _, e := range c.handlers(peer) {
					e.h(msg)
				}
			}) {
				return
			}
		}
	}
}
