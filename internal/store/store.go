// Package store keeps the last known room list per user so a restarted client
// can show its rooms before the first fetch completes. Snapshots are a cache:
// the next successful fetch always replaces what was loaded.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/umar/roomsync/internal/models"
	"github.com/umar/roomsync/internal/roomlist"
)

// Snapshots loads and saves room list snapshots by key.
type Snapshots interface {
	// Load returns the saved rooms and whether a snapshot existed.
	Load(ctx context.Context, key string) ([]models.Room, bool, error)
	Save(ctx context.Context, key string, rooms roomlist.Rooms) error
}

func encode(rooms roomlist.Rooms) ([]byte, error) {
	values := make([]models.Room, 0, len(rooms))
	for _, r := range rooms {
		values = append(values, *r)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("snapshot marshal error: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]models.Room, error) {
	var rooms []models.Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("snapshot unmarshal error: %w", err)
	}
	return rooms, nil
}

// Memory keeps snapshots in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]models.Room, bool, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	rooms, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return rooms, true, nil
}

func (m *Memory) Save(_ context.Context, key string, rooms roomlist.Rooms) error {
	data, err := encode(rooms)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = data
	m.mu.Unlock()
	return nil
}
