package models

// Room is one conversation as known to the client. Values are treated as
// immutable once built; updates construct a new Room.
type Room struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Photo           *string `json:"photo"`
	LastMessage     *string `json:"lastMessage"`
	LastMessageTime *string `json:"lastMessageTime"`
}

// WithMessage returns a copy of r carrying text as its last message.
func (r *Room) WithMessage(text, createdAt string) *Room {
	next := *r
	next.LastMessage = &text
	next.LastMessageTime = &createdAt
	return &next
}

// Equal reports whether two rooms carry the same displayed data.
func (r *Room) Equal(o *Room) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	return r.ID == o.ID &&
		r.Name == o.Name &&
		equalOpt(r.Photo, o.Photo) &&
		equalOpt(r.LastMessage, o.LastMessage) &&
		equalOpt(r.LastMessageTime, o.LastMessageTime)
}

func equalOpt(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type Member struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

type RoomCount struct {
	Members int `json:"members"`
}

// RoomDetails is the full room record shown in the room info dialog.
type RoomDetails struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Photo       *string   `json:"photo"`
	Description string    `json:"description"`
	Members     []Member  `json:"members"`
	Count       RoomCount `json:"_count"`
}

// RoomUpdate carries the editable room fields. Nil fields are not sent.
type RoomUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
