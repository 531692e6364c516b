// Package observer implements a minimal publish/subscribe subject for state
// confined to a coordination loop. A Subject is not safe for concurrent use;
// every call must happen on the owning loop.
package observer

// Subject delivers published values to its subscribers in subscription
// order.
type Subject[T any] struct {
	subs   []*subscription[T]
	nextID uint64
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that cancels it. Cancel is
// idempotent.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, &subscription[T]{id: id, fn: fn})
	return func() { s.remove(id) }
}

func (s *Subject[T]) remove(id uint64) {
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber with v. Subscribers added or removed
// during Publish take effect from the next call.
func (s *Subject[T]) Publish(v T) {
	subs := s.subs
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of subscribers.
func (s *Subject[T]) Len() int {
	return len(s.subs)
}

// Clear drops every subscriber.
func (s *Subject[T]) Clear() {
	s.subs = nil
}
