package chat

import (
	"encoding/json"
	"fmt"

	"github.com/umar/roomsync/internal/models"
)

const (
	// Client to server.
	TypeJoinRoom = "join_room"

	// Server to client.
	TypeReceiveMessage = "receive_message"
)

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewWSMessage(msgType string, payload interface{}) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	msg := WSMessage{Type: msgType, Payload: p}
	return json.Marshal(msg)
}

// JoinRoomFrame encodes a join_room request. The payload is the bare room id.
func JoinRoomFrame(roomID string) ([]byte, error) {
	return NewWSMessage(TypeJoinRoom, roomID)
}

// DecodeMessageEvent decodes a receive_message payload.
func DecodeMessageEvent(payload json.RawMessage) (models.MessageEvent, error) {
	var ev models.MessageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("invalid receive_message payload: %w", err)
	}
	if ev.RoomID == "" {
		return ev, fmt.Errorf("invalid receive_message payload: missing roomId")
	}
	return ev, nil
}
