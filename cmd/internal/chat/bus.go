package chat

import (
	"context"
	"sync"
)

// Bus is a bounded multi-producer/multi-consumer broadcast log.
//
// Publish appends to a ring of the last capacity events and never blocks:
// when the ring wraps, the oldest event is evicted and slow subscribers lag
// instead of stalling producers. Every subscription observes the same events
// in publish order through its own cursor.
//
// The bus lives for the whole service; Close is called once at shutdown and
// is what drains active sessions.
type Bus struct {
	mu     sync.Mutex
	buf    []Event // ring; holds sequences [oldest, seq)
	seq    uint64  // next sequence to assign
	subs   int
	closed bool
	wake   chan struct{} // closed and replaced on every publish and on Close
}

// NewBus constructs a bus retaining the last capacity events. Non-positive
// capacities fall back to DefaultBusCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	return &Bus{
		buf:  make([]Event, capacity),
		wake: make(chan struct{}),
	}
}

// Capacity returns how many events the bus retains.
func (b *Bus) Capacity() int { return len(b.buf) }

// Publish appends ev to the log and wakes every blocked subscriber. It never
// blocks; at capacity the oldest retained event is evicted. After Close it
// returns ErrBusClosed.
func (b *Bus) Publish(ev Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}

	b.buf[b.seq%uint64(len(b.buf))] = ev
	b.seq++

	wake := b.wake
	b.wake = make(chan struct{})
	b.mu.Unlock()

	close(wake)
	return nil
}

// Subscribe returns a cursor positioned at "now": it observes only events
// published after this call, never history.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs++
	return &Subscription{bus: b, next: b.seq}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts the bus down and wakes every blocked subscriber. Subscribers
// still drain whatever the ring retains before they see ErrBusClosed.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.wake
	b.mu.Unlock()

	close(wake)
}

// oldest returns the lowest sequence still retained. Callers hold b.mu.
func (b *Bus) oldest() uint64 {
	if n := uint64(len(b.buf)); b.seq > n {
		return b.seq - n
	}
	return 0
}

// Subscription is one subscriber's cursor into the bus. Sessions drive it
// from a single goroutine, but concurrent use is safe.
type Subscription struct {
	bus *Bus

	// Guarded by bus.mu.
	next   uint64
	closed bool
}

// Next returns the event after the cursor, advancing it. It blocks until an
// event is available, the bus or subscription closes, or ctx is done.
//
// A cursor that has fallen out of the retention window is moved to the
// oldest retained event and Next returns a LagError carrying the skip count,
// once per overflow, after which delivery resumes in order. Lag is
// recoverable; the caller keeps consuming.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	b := s.bus

	b.mu.Lock()
	for {
		if s.closed {
			b.mu.Unlock()
			return Event{}, ErrSubscriptionClosed
		}

		if oldest := b.oldest(); s.next < oldest {
			skipped := oldest - s.next
			s.next = oldest
			b.mu.Unlock()
			return Event{}, LagError{Skipped: skipped}
		}

		if s.next < b.seq {
			ev := b.buf[s.next%uint64(len(b.buf))]
			s.next++
			b.mu.Unlock()
			return ev, nil
		}

		// Retained events are delivered even after Close; only a fully
		// drained subscription reports the shutdown.
		if b.closed {
			b.mu.Unlock()
			return Event{}, ErrBusClosed
		}

		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}

		b.mu.Lock()
	}
}

// Close releases the cursor. Idempotent. A concurrently blocked Next call
// returns once the next publish, bus close, or its own ctx wakes it.
func (s *Subscription) Close() {
	b := s.bus

	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	b.subs--
}
