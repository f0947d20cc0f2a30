package models

// MessageEvent is a receive_message notification from the realtime stream.
type MessageEvent struct {
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}
