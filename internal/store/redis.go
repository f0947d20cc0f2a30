package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umar/roomsync/internal/models"
	"github.com/umar/roomsync/internal/roomlist"
)

const DefaultPrefix = "roomsync:snapshot:"

// Redis stores snapshots as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *Redis) Load(ctx context.Context, key string) ([]models.Room, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot get error: %w", err)
	}
	rooms, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return rooms, true, nil
}

func (r *Redis) Save(ctx context.Context, key string, rooms roomlist.Rooms) error {
	data, err := encode(rooms)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot set error: %w", err)
	}
	return nil
}
