package chat

import (
	"log/slog"

	"github.com/umar/roomsync/internal/roomlist"
)

// Subscriber issues a single room subscription on the transport.
type Subscriber interface {
	Subscribe(roomID string)
}

// Driver keeps the transport's room subscriptions in step with the cache.
type Driver struct {
	sub    Subscriber
	logger *slog.Logger
	joined map[string]struct{}
}

func NewDriver(sub Subscriber, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		sub:    sub,
		logger: logger.With("component", "subscriptions"),
		joined: make(map[string]struct{}),
	}
}

// RejoinAll subscribes to every room in rooms, once per distinct id, and
// records the resulting subscription set. It returns the number of
// subscriptions issued. Calling it again with the same rooms issues the same
// subscriptions; the transport treats a repeated join as a no-op.
func (d *Driver) RejoinAll(rooms roomlist.Rooms) int {
	joined := make(map[string]struct{}, len(rooms))
	for _, r := range rooms {
		if _, dup := joined[r.ID]; dup {
			continue
		}
		joined[r.ID] = struct{}{}
		d.sub.Subscribe(r.ID)
	}
	d.joined = joined

	d.logger.Debug("rejoined rooms", "count", len(joined))
	return len(joined)
}

// JoinMissing subscribes only to the rooms outside the current subscription
// set and adds them to it. It returns the number of subscriptions issued.
func (d *Driver) JoinMissing(rooms roomlist.Rooms) int {
	n := 0
	for _, r := range rooms {
		if _, ok := d.joined[r.ID]; ok {
			continue
		}
		d.joined[r.ID] = struct{}{}
		d.sub.Subscribe(r.ID)
		n++
	}
	if n > 0 {
		d.logger.Debug("joined new rooms", "count", n)
	}
	return n
}

// Reset forgets the subscription set. Joins do not survive a dropped link.
func (d *Driver) Reset() {
	d.joined = make(map[string]struct{})
}

// Joined returns a copy of the current subscription set.
func (d *Driver) Joined() map[string]struct{} {
	out := make(map[string]struct{}, len(d.joined))
	for id := range d.joined {
		out[id] = struct{}{}
	}
	return out
}
