package model

import "github.com/rindah89/barter/pkg/snowflake"

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventRead   EventType = "read"
)

// MessageEvent is one change on a room's message feed.
type MessageEvent struct {
	Type       EventType    `json:"type"`
	RoomID     string       `json:"room_id"`
	Message    *Message     `json:"message,omitempty"`
	ReaderID   string       `json:"reader_id,omitempty"`
	ReadCursor snowflake.ID `json:"read_cursor,omitempty"`
}

const (
	roomTopicPrefix     = "room:"
	presenceTopicPrefix = "presence:"
)

func RoomTopic(roomID string) string { return roomTopicPrefix + roomID }

func PresenceTopic(userID string) string { return presenceTopicPrefix + userID }

// ParseTopic splits a realtime topic into its kind ("room" or "presence") and id.
func ParseTopic(topic string) (kind, id string, ok bool) {
	switch {
	case len(topic) > len(roomTopicPrefix) && topic[:len(roomTopicPrefix)] == roomTopicPrefix:
		return "room", topic[len(roomTopicPrefix):], true
	case len(topic) > len(presenceTopicPrefix) && topic[:len(presenceTopicPrefix)] == presenceTopicPrefix:
		return "presence", topic[len(presenceTopicPrefix):], true
	}
	return "", "", false
}

// Frame is a realtime websocket envelope.
type Frame struct {
	Op           string        `json:"op,omitempty"`
	Topic        string        `json:"topic"`
	MessageEvent *MessageEvent `json:"message_event,omitempty"`
	Presence     *Presence     `json:"presence,omitempty"`
	Error        string        `json:"error,omitempty"`
}

const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)
