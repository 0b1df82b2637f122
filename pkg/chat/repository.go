package chat

import (
	"context"
	"time"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

var (
	ErrRoomNotFound       = apperr.NotFound("chat room not found")
	ErrMessageNotFound    = apperr.NotFound("message not found")
	ErrNotParticipant     = apperr.Forbidden("user is not a participant of this chat room")
	ErrNotSender          = apperr.Forbidden("only the sender can delete a message")
	ErrTooFewParticipants = apperr.InvalidArg("a chat room needs at least two distinct participants")
)

// ReadCursor is the newest message id a user has read in a room. It only
// moves forward.
type ReadCursor struct {
	RoomID     string
	UserID     string
	LastReadID snowflake.ID
	ReadAt     time.Time
}

// Repository is the storage contract behind the room directory and message
// pipeline. Lookups that miss return ErrRoomNotFound or ErrMessageNotFound.
type Repository interface {
	// CreateRoomIfAbsent stores room unless another room already owns its
	// participant key, in which case that room is returned with created=false.
	CreateRoomIfAbsent(ctx context.Context, room *model.ChatRoom) (stored *model.ChatRoom, created bool, err error)
	GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error)
	// RoomsForParticipant returns every room containing userID, including
	// rooms with additional participants.
	RoomsForParticipant(ctx context.Context, userID string) ([]model.ChatRoom, error)
	TouchRoom(ctx context.Context, roomID string, at time.Time) error

	InsertMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, messageID snowflake.ID) (*model.Message, error)
	UpdateMessage(ctx context.Context, msg *model.Message) error
	// ListMessages returns up to limit messages older than before (0 = no
	// bound), newest first. limit <= 0 means no limit.
	ListMessages(ctx context.Context, roomID string, before snowflake.ID, limit int) ([]model.Message, error)
	// LatestMessage returns the newest non-deleted message, or nil.
	LatestMessage(ctx context.Context, roomID string) (*model.Message, error)

	IncrementUnread(ctx context.Context, roomID string, userIDs []string) error
	ResetUnread(ctx context.Context, roomID, userID string) error
	UnreadCount(ctx context.Context, roomID, userID string) (int64, error)

	// AdvanceReadCursor moves the cursor to id when id is newer than the
	// stored one and reports whether it moved.
	AdvanceReadCursor(ctx context.Context, roomID, userID string, id snowflake.ID, at time.Time) (bool, error)
	ReadCursors(ctx context.Context, roomID string) ([]ReadCursor, error)
}

// ProfileLookup resolves participant profiles. Unknown ids are omitted.
type ProfileLookup interface {
	Profiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error)
}

// Publisher fans message events out to realtime subscribers.
type Publisher interface {
	PublishMessageEvent(ctx context.Context, ev model.MessageEvent) error
}
