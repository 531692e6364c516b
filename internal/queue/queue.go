// Package queue implements the bounded, time-ordered request queue used for
// pending co-host invitations and applications. Entries expire after a TTL;
// presence in a queue means pending, never confirmed.
//
// A Queue is confined to a coordination loop: every method must be called
// on that loop. The expiry ticker runs on its own goroutine and only posts
// the expiry scan back onto the loop.
package queue

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/loop"
	"github.com/weiawesome/wes-io-live/internal/observer"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

const (
	DefaultMax          = 10
	DefaultTTL          = 30 * time.Second
	DefaultTickInterval = time.Second
)

// Item is anything with a stable identity and a creation time.
type Item interface {
	ID() string
	Timestamp() time.Time
}

// Config configures a queue. Zero values fall back to the defaults.
type Config struct {
	Name         string
	Max          int
	TTL          time.Duration
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Max <= 0 {
		c.Max = DefaultMax
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Option customises a queue.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock replaces time.Now for age computation.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Queue is a bounded FIFO whose insertion order equals timestamp order.
type Queue[T Item] struct {
	cfg     Config
	poster  loop.Poster
	now     func() time.Time
	logger  zerolog.Logger
	items   []T
	changed observer.Subject[[]T]
	stop    chan struct{} // non-nil while the ticker runs
	closed  bool
}

// New creates an empty queue whose expiry scans are posted to poster.
func New[T Item](poster loop.Poster, cfg Config, opts ...Option) *Queue[T] {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	cfg = cfg.withDefaults()
	return &Queue[T]{
		cfg:    cfg,
		poster: poster,
		now:    s.now,
		logger: log.Component("queue").With().Str(log.FieldQueue, cfg.Name).Logger(),
	}
}

// Append inserts item at the tail. A full queue, a duplicate identity or an
// item older than the current tail are rejected and nothing is stored.
func (q *Queue[T]) Append(item T) error {
	if q.closed {
		return domain.ErrLoopStopped
	}
	if q.indexOf(item.ID()) >= 0 {
		return domain.ErrDuplicate
	}
	if len(q.items) >= q.cfg.Max {
		q.logger.Warn().Str("id", item.ID()).Int("max", q.cfg.Max).Msg("queue full, request dropped")
		return domain.ErrQueueFull
	}
	if n := len(q.items); n > 0 && item.Timestamp().Before(q.items[n-1].Timestamp()) {
		return domain.ErrOutOfOrder
	}

	q.items = append(q.items, item)
	if len(q.items) == 1 {
		q.startTicker()
	}
	q.publish()
	return nil
}

// Remove deletes the item with the given id. Removing an absent id is a
// no-op and reports false.
func (q *Queue[T]) Remove(id string) bool {
	i := q.indexOf(id)
	if i < 0 {
		q.logger.Debug().Str("id", id).Msg("remove of absent request ignored")
		return false
	}

	next := make([]T, 0, len(q.items)-1)
	next = append(next, q.items[:i]...)
	q.items = append(next, q.items[i+1:]...)
	if len(q.items) == 0 {
		q.stopTicker()
	}
	q.publish()
	return true
}

// Expire removes the longest head prefix whose age is at least the TTL and
// returns the removed items. Only the prefix is scanned since the queue is
// ordered by timestamp.
func (q *Queue[T]) Expire() []T {
	now := q.now()
	n := 0
	for n < len(q.items) && now.Sub(q.items[n].Timestamp()) >= q.cfg.TTL {
		n++
	}
	if n == 0 {
		return nil
	}

	expired := q.items[:n:n]
	q.items = append([]T(nil), q.items[n:]...)
	if len(q.items) == 0 {
		q.stopTicker()
	}
	q.logger.Debug().Int("expired", n).Int("remaining", len(q.items)).Msg("requests expired")
	q.publish()
	return expired
}

// Items returns a copy of the queue content, head first.
func (q *Queue[T]) Items() []T {
	return append([]T(nil), q.items...)
}

// Get returns the item with the given id.
func (q *Queue[T]) Get(id string) (T, bool) {
	if i := q.indexOf(id); i >= 0 {
		return q.items[i], true
	}
	var zero T
	return zero, false
}

func (q *Queue[T]) Contains(id string) bool { return q.indexOf(id) >= 0 }
func (q *Queue[T]) Len() int                { return len(q.items) }
func (q *Queue[T]) Full() bool              { return len(q.items) >= q.cfg.Max }
func (q *Queue[T]) Max() int                { return q.cfg.Max }

// Ticking reports whether the expiry ticker is running.
func (q *Queue[T]) Ticking() bool { return q.stop != nil }

// Subscribe registers fn to receive the full content after every mutation.
func (q *Queue[T]) Subscribe(fn func([]T)) (cancel func()) {
	return q.changed.Subscribe(fn)
}

// Close stops the ticker, drops every subscriber and empties the queue
// without notifying. Later appends fail.
func (q *Queue[T]) Close() {
	q.stopTicker()
	q.changed.Clear()
	q.items = nil
	q.closed = true
}

func (q *Queue[T]) indexOf(id string) int {
	for i, it := range q.items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

func (q *Queue[T]) publish() {
	q.changed.Publish(q.Items())
}

func (q *Queue[T]) startTicker() {
	if q.stop != nil {
		return
	}
	stop := make(chan struct{})
	q.stop = stop
	go q.tick(stop)
}

func (q *Queue[T]) stopTicker() {
	if q.stop == nil {
		return
	}
	close(q.stop)
	q.stop = nil
}

// tick runs off the loop. A scan posted by a ticker that has since been
// stopped is discarded when it reaches the loop.
func (q *Queue[T]) tick(stop chan struct{}) {
	ticker := time.NewTicker(q.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok := q.poster.Post(func() {
				if q.stop == stop {
					q.Expire()
				}
			})
			if !ok {
				return
			}
		}
	}
}
