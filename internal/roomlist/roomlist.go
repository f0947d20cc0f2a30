// Package roomlist holds the ordered room cache and the pure functions that
// fold events into it and derive filtered views from it.
//
// A Rooms slice is never written after it is built. Every function here
// returns either its input unchanged or a freshly allocated slice, and rooms
// that an operation does not touch keep their pointer identity so callers can
// detect changes with a pointer comparison.
package roomlist

import (
	"sort"
	"strings"
	"time"

	"github.com/umar/roomsync/internal/models"
)

// Rooms is the client's room cache, most recently active first.
type Rooms []*models.Room

// IDs returns the room ids in cache order.
func (rs Rooms) IDs() []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

// Index returns the position of the room with the given id, or -1.
func (rs Rooms) Index(id string) int {
	for i, r := range rs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Same reports whether a and b are the same slice value: same length and
// same backing array.
func Same(a, b Rooms) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}

// Reconcile folds a message event into rooms. The touched room is rebuilt
// with the event's text and time and moved to the front; every other room
// keeps its pointer and relative order. Events for unknown rooms return rooms
// itself.
func Reconcile(rooms Rooms, ev models.MessageEvent) Rooms {
	at := rooms.Index(ev.RoomID)
	if at < 0 {
		return rooms
	}

	next := make(Rooms, 0, len(rooms))
	next = append(next, rooms[at].WithMessage(ev.Text, ev.CreatedAt))
	next = append(next, rooms[:at]...)
	next = append(next, rooms[at+1:]...)
	return next
}

// Replace folds a full refresh into the cache. Duplicate and empty ids are
// dropped, rooms are ordered by last message time (newest first, untimed
// rooms after in server order), and rooms whose data did not change keep the
// pointer they had in current. If nothing changed, current is returned.
func Replace(current Rooms, fresh []models.Room) Rooms {
	known := make(map[string]*models.Room, len(current))
	for _, r := range current {
		known[r.ID] = r
	}

	seen := make(map[string]struct{}, len(fresh))
	next := make(Rooms, 0, len(fresh))
	for i := range fresh {
		room := fresh[i]
		if room.ID == "" {
			continue
		}
		if _, dup := seen[room.ID]; dup {
			continue
		}
		seen[room.ID] = struct{}{}

		if prev, ok := known[room.ID]; ok && prev.Equal(&room) {
			next = append(next, prev)
			continue
		}
		next = append(next, &room)
	}

	sort.SliceStable(next, func(i, j int) bool {
		ti, okI := lastActive(next[i])
		tj, okJ := lastActive(next[j])
		switch {
		case okI && okJ:
			return ti.After(tj)
		default:
			return okI && !okJ
		}
	})

	if len(next) == len(current) {
		unchanged := true
		for i := range next {
			if next[i] != current[i] {
				unchanged = false
				break
			}
		}
		if unchanged {
			return current
		}
	}
	return next
}

// Filter returns the rooms whose name contains query, ignoring case and
// surrounding whitespace. An empty query returns rooms itself.
func Filter(rooms Rooms, query string) Rooms {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rooms
	}

	matched := make(Rooms, 0, len(rooms))
	for _, r := range rooms {
		if strings.Contains(strings.ToLower(r.Name), q) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Times without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func lastActive(r *models.Room) (time.Time, bool) {
	if r.LastMessageTime == nil {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, *r.LastMessageTime); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
