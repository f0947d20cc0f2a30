package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umar/roomsync/internal/models"
	"github.com/umar/roomsync/internal/roomlist"
)

type recordingSubscriber struct {
	calls []string
}

func (s *recordingSubscriber) Subscribe(roomID string) {
	s.calls = append(s.calls, roomID)
}

func rooms(ids ...string) roomlist.Rooms {
	out := make(roomlist.Rooms, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Room{ID: id, Name: id})
	}
	return out
}

func TestRejoinAllSubscribesEveryRoom(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)

	n := d.RejoinAll(rooms("r1", "r2"))

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"r1", "r2"}, sub.calls)
	assert.Equal(t, map[string]struct{}{"r1": {}, "r2": {}}, d.Joined())
}

func TestRejoinAllDeduplicatesWithinCall(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)

	n := d.RejoinAll(rooms("r1", "r2", "r1"))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"r1", "r2"}, sub.calls)
}

func TestRejoinAllIsIdempotent(t *testing.T) {
	once := &recordingSubscriber{}
	NewDriver(once, nil).RejoinAll(rooms("r1", "r2", "r3"))

	twice := &recordingSubscriber{}
	d := NewDriver(twice, nil)
	d.RejoinAll(rooms("r1", "r2", "r3"))
	first := append([]string(nil), twice.calls...)
	twice.calls = nil
	d.RejoinAll(rooms("r1", "r2", "r3"))

	assert.Equal(t, once.calls, first)
	assert.Equal(t, once.calls, twice.calls)
	assert.Len(t, d.Joined(), 3)
}

func TestRejoinAllReplacesSubscriptionSet(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)

	d.RejoinAll(rooms("r1", "r2"))
	d.RejoinAll(rooms("r3"))

	assert.Equal(t, map[string]struct{}{"r3": {}}, d.Joined())
}

func TestRejoinAllEmptyCache(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)

	assert.Zero(t, d.RejoinAll(nil))
	assert.Empty(t, sub.calls)
}

func TestJoinMissingSkipsJoinedRooms(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)
	d.RejoinAll(rooms("r1", "r2"))
	sub.calls = nil

	n := d.JoinMissing(rooms("r2", "r3", "r1", "r3"))

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"r3"}, sub.calls)
	assert.Equal(t, map[string]struct{}{"r1": {}, "r2": {}, "r3": {}}, d.Joined())
}

func TestJoinMissingSameSetIssuesNothing(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)
	d.RejoinAll(rooms("r1", "r2"))
	sub.calls = nil

	assert.Zero(t, d.JoinMissing(rooms("r2", "r1")))
	assert.Empty(t, sub.calls)
}

func TestResetClearsSubscriptionSet(t *testing.T) {
	sub := &recordingSubscriber{}
	d := NewDriver(sub, nil)
	d.RejoinAll(rooms("r1"))

	d.Reset()

	assert.Empty(t, d.Joined())
	assert.Equal(t, 1, d.JoinMissing(rooms("r1")))
}
