// Package broadcast provides a single-slot, last-value-wins publish/subscribe
// primitive. There is no queue: a subscriber that falls behind misses
// intermediate values but always observes the newest one.
package broadcast

import "sync"

type Latest[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	last    T
	hasLast bool
}

func New[T any]() *Latest[T] {
	return &Latest[T]{
		subs: make(map[int]chan T),
	}
}

// Publish replaces the slot value and offers it to every subscriber,
// displacing any value a subscriber has not consumed yet. Never blocks.
func (l *Latest[T]) Publish(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.last = value
	l.hasLast = true
	for _, ch := range l.subs {
		offer(ch, value)
	}
}

// Subscribe registers a new subscriber and returns its channel together with
// a cancel function. If a value has already been published, the channel is
// pre-loaded with it.
func (l *Latest[T]) Subscribe() (<-chan T, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan T, 1)
	if l.hasLast {
		ch <- l.last
	}
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// offer drops the stale buffered value, if any, then retries the send. The
// second send can only fail if the subscriber consumed concurrently, in which
// case it is about to observe a value at least as fresh.
func offer[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
