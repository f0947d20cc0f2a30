// Package bus carries the "room updated" invalidation signal between
// components that change rooms out of band and the session that owns the
// room cache.
package bus

import (
	"context"
	"sync"
)

// Signal names a broadcast event. Signals carry no payload.
type Signal string

// RoomUpdated means the joined room list or a room's metadata changed through
// a path other than the realtime stream and the cache must be refetched.
const RoomUpdated Signal = "room updated"

// Notifier publishes a RoomUpdated signal.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Bus is an in-process broadcast of signals. Each subscriber channel holds at
// most one pending signal; further publishes coalesce into it.
type Bus struct {
	mu   sync.RWMutex
	subs map[Signal][]chan struct{}
}

func New() *Bus {
	return &Bus{
		subs: make(map[Signal][]chan struct{}),
	}
}

// Subscribe returns a channel that receives sig and a function that removes
// the subscription and closes the channel.
func (b *Bus) Subscribe(sig Signal) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	b.subs[sig] = append(b.subs[sig], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.unsubscribe(sig, ch)
		})
	}
	return ch, cancel
}

func (b *Bus) unsubscribe(sig Signal, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sig]
	for i, s := range subs {
		if s == ch {
			b.subs[sig] = append(subs[:i:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish delivers sig to every subscriber without blocking.
func (b *Bus) Publish(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[sig] {
		select {
		case ch <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

// Notify publishes RoomUpdated.
func (b *Bus) Notify(context.Context) error {
	b.Publish(RoomUpdated)
	return nil
}
