// Package loop provides the serialized execution context every room's
// coordination state is confined to.
package loop

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-live/internal/domain"
)

// Poster schedules work onto a loop.
type Poster interface {
	// Post queues fn and reports whether the loop accepted it.
	Post(fn func()) bool
}

// Loop runs queued functions one at a time on a single goroutine.
type Loop struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a loop whose task queue holds up to buffer pending functions.
func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run drains the task queue until Stop is called.
func (l *Loop) Run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.quit:
			return
		}
	}
}

// Post queues fn. It blocks while the queue is full and returns false once
// the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return domain.ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return domain.ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the loop and waits for the running task to finish. Tasks
// still queued are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
	<-l.done
}

// Done is closed once the loop has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
