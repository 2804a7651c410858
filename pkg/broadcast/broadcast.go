// SPDX-License-Identifier: BSD-3-Clause

// Package broadcast implements the control plane's lossy multi-subscriber
// event channel (spec §4.7). Publishing never blocks: with no subscribers
// an event is dropped silently, and a subscriber that falls behind its
// buffer's capacity has its oldest unread event evicted and a lag counter
// incremented, surfaced on its next Recv. The broadcaster is observation
// only; nothing in the control plane depends on a send succeeding.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendhost/tendhost/pkg/events"
)

// DefaultCapacity is the per-subscriber buffer size New uses when it is
// given a capacity of zero or less.
const DefaultCapacity = 64

// Broadcaster fans events.Event values out to any number of subscribers.
// A zero-value Broadcaster is not usable; construct one with New.
type Broadcaster struct {
	capacity int

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	mu      sync.Mutex
	buf     []events.Event
	lag     int
	notify  chan struct{}
}

// New creates a Broadcaster whose subscribers each buffer up to capacity
// events before the oldest is evicted in favor of the newest.
func New(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster{
		capacity: capacity,
		subs:     make(map[string]*subscriber),
	}
}

// Subscription is a handle returned by Subscribe. Recv blocks until an
// event is available or ctx is done. Close releases the subscription and
// must be called when the subscriber is done listening.
type Subscription struct {
	id string
	b  *Broadcaster
	s  *subscriber
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &subscriber{notify: make(chan struct{}, 1)}
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	return &Subscription{id: id, b: b, s: s}
}

// Close removes the subscription from the broadcaster. Events published
// afterward are not delivered to it.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()
}

// Recv returns the next event for this subscriber, along with how many
// events were dropped immediately before it due to buffer saturation.
// It blocks until an event arrives or ctx is done.
func (s *Subscription) Recv(ctx context.Context) (events.Event, int, error) {
	for {
		s.s.mu.Lock()
		if len(s.s.buf) > 0 {
			ev := s.s.buf[0]
			s.s.buf = s.s.buf[1:]
			lag := s.s.lag
			s.s.lag = 0
			s.s.mu.Unlock()
			return ev, lag, nil
		}
		s.s.mu.Unlock()

		select {
		case <-ctx.Done():
			return events.Event{}, 0, ctx.Err()
		case <-s.s.notify:
		}
	}
}

// Publish delivers ev to every current subscriber without blocking the
// caller. Publish never returns an error: a full subscriber buffer drops
// its oldest entry and increments that subscriber's lag count instead of
// applying back-pressure to the publisher.
func (b *Broadcaster) Publish(ev events.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if len(s.buf) >= b.capacity {
			s.buf = s.buf[1:]
			s.lag++
		}
		s.buf = append(s.buf, ev)
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount reports how many subscriptions are currently active.
// Intended for diagnostics, not for gating Publish.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
