package model

import (
	"errors"
	"strings"
	"time"

	"github.com/rindah89/barter/pkg/snowflake"
)

type MessageType string

const (
	TypeText    MessageType = "text"
	TypeImage   MessageType = "image"
	TypeVideo   MessageType = "video"
	TypeVoice   MessageType = "voice"
	TypeGIF     MessageType = "gif"
	TypeEmoji   MessageType = "emoji"
	TypeFile    MessageType = "file"
	TypeDeleted MessageType = "deleted"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeVoice, TypeGIF, TypeEmoji, TypeFile, TypeDeleted:
		return true
	}
	return false
}

// IsMedia reports whether the type's payload lives in object storage.
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeVoice, TypeGIF, TypeFile:
		return true
	}
	return false
}

// MetadataClientRef is the metadata key carrying the sender's local id for
// optimistic reconciliation.
const MetadataClientRef = "client_ref"

type Message struct {
	ID          snowflake.ID   `json:"id"`
	ChatRoomID  string         `json:"chat_room_id"`
	SenderID    string         `json:"sender_id"`
	Content     *string        `json:"content"`
	MessageType MessageType    `json:"message_type"`
	MediaURI    *string        `json:"media_uri,omitempty"`
	Duration    *int           `json:"duration,omitempty"`
	IsDeleted   bool           `json:"is_deleted"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TradeID     *string        `json:"trade_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ReadByAll   bool           `json:"read_by_all"`

	Sender *Profile      `json:"sender,omitempty"`
	ReadBy []ReadReceipt `json:"read_by,omitempty"`
}

// ClientRef returns the sender-local reference echoed in metadata, if any.
func (m *Message) ClientRef() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	ref, _ := m.Metadata[MetadataClientRef].(string)
	return ref
}

// Tombstone clears the payload. Applying it twice yields the same message.
func (m *Message) Tombstone(at time.Time) {
	m.IsDeleted = true
	m.Content = nil
	m.MediaURI = nil
	m.Duration = nil
	m.MessageType = TypeDeleted
	m.UpdatedAt = at
}

// Newer orders messages newest first by created_at, then by id.
func Newer(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

type ReadReceipt struct {
	MessageID snowflake.ID `json:"message_id"`
	UserID    string       `json:"user_id"`
	IsRead    bool         `json:"is_read"`
	ReadAt    time.Time    `json:"read_at"`
}

var (
	ErrMissingRoom     = errors.New("chat_room_id is required")
	ErrMissingSender   = errors.New("sender_id is required")
	ErrInvalidType     = errors.New("unknown message_type")
	ErrEmptyPayload    = errors.New("message must carry text or a media reference")
	ErrMediaWithoutURI = errors.New("media message requires media_uri")
)

type SendRequest struct {
	RoomID    string         `json:"chat_room_id"`
	SenderID  string         `json:"sender_id"`
	Content   *string        `json:"content"`
	MediaURI  *string        `json:"media_uri,omitempty"`
	Type      MessageType    `json:"message_type"`
	Duration  *int           `json:"duration,omitempty"`
	TradeID   *string        `json:"trade_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ClientRef string         `json:"client_ref,omitempty"`
}

func (r SendRequest) Validate() error {
	if r.RoomID == "" {
		return ErrMissingRoom
	}
	if r.SenderID == "" {
		return ErrMissingSender
	}
	if !r.Type.Valid() || r.Type == TypeDeleted {
		return ErrInvalidType
	}
	hasText := r.Content != nil && strings.TrimSpace(*r.Content) != ""
	hasMedia := r.MediaURI != nil && *r.MediaURI != ""
	if !hasText && !hasMedia {
		return ErrEmptyPayload
	}
	if r.Type.IsMedia() && !hasMedia {
		return ErrMediaWithoutURI
	}
	return nil
}

func StringPtr(s string) *string { return &s }

func IntPtr(n int) *int { return &n }
