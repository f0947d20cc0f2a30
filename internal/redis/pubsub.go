package redisc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/umar/roomsync/internal/bus"
)

const RoomUpdatedChannel = "roomsync:room-updated"

// Relay carries RoomUpdated between processes sharing a Redis server. Notify
// publishes to Redis; Run forwards every Redis message into the local bus, so
// the publishing process is invalidated through the same path as its peers.
type Relay struct {
	client *redis.Client
	bus    *bus.Bus
	logger *slog.Logger
}

func NewRelay(client *redis.Client, b *bus.Bus, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client: client,
		bus:    b,
		logger: logger.With("component", "relay"),
	}
}

func (r *Relay) Notify(ctx context.Context) error {
	if err := r.client.Publish(ctx, RoomUpdatedChannel, string(bus.RoomUpdated)).Err(); err != nil {
		return fmt.Errorf("failed to publish room update: %w", err)
	}
	return nil
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, RoomUpdatedChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", RoomUpdatedChannel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.logger.Debug("room update relayed", "channel", msg.Channel)
			r.bus.Publish(bus.RoomUpdated)
		}
	}
}
