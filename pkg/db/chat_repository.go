package db

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// ChatRepository implements chat.Repository on ScyllaDB.
type ChatRepository struct {
	s   *Session
	log zerolog.Logger
}

var _ chat.Repository = (*ChatRepository)(nil)

func NewChatRepository(s *Session, logger zerolog.Logger) *ChatRepository {
	return &ChatRepository{s: s, log: logger.With().Str("component", "chat_repository").Logger()}
}

func (r *ChatRepository) CreateRoomIfAbsent(ctx context.Context, room *model.ChatRoom) (*model.ChatRoom, bool, error) {
	key := model.ParticipantKey(room.ParticipantIDs)

	// The room row goes in before the key is claimed so a losing racer that
	// reads the key always finds the winner's row. A loser's row stays
	// orphaned and unindexed.
	err := r.s.Query(`INSERT INTO chat_rooms (id, participant_ids, participant_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.ParticipantIDs, key, room.CreatedAt, room.UpdatedAt).WithContext(ctx).Exec()
	if err != nil {
		return nil, false, err
	}

	existing := map[string]interface{}{}
	applied, err := r.s.Query(`INSERT INTO room_keys (participant_key, room_id) VALUES (?, ?) IF NOT EXISTS`,
		key, room.ID).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		winner, _ := existing["room_id"].(string)
		if winner == "" {
			return nil, false, errors.New("room key claimed without room id")
		}
		if err := r.s.Query(`DELETE FROM chat_rooms WHERE id = ?`, room.ID).WithContext(ctx).Exec(); err != nil {
			r.log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to delete orphaned room row")
		}
		stored, err := r.GetRoom(ctx, winner)
		if err != nil {
			return nil, false, err
		}
		// The winner may have claimed the key and then failed to index it.
		if err := r.indexRoom(ctx, stored.ID, stored.ParticipantIDs); err != nil {
			return nil, false, err
		}
		return stored, false, nil
	}

	if err := r.indexRoom(ctx, room.ID, room.ParticipantIDs); err != nil {
		return nil, false, err
	}

	stored := *room
	return &stored, true, nil
}

// indexRoom writes the per-user room index. Rerunning it is harmless.
func (r *ChatRepository) indexRoom(ctx context.Context, roomID string, participantIDs []string) error {
	batch := r.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, uid := range participantIDs {
		batch.Query(`INSERT INTO user_rooms (user_id, chat_room_id) VALUES (?, ?)`, uid, roomID)
	}
	return r.s.ExecuteBatch(batch)
}

func (r *ChatRepository) GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	var lastMessageAt *time.Time
	err := r.s.Query(`SELECT id, participant_ids, created_at, updated_at, last_message_at FROM chat_rooms WHERE id = ?`, roomID).
		WithContext(ctx).
		Scan(&room.ID, &room.ParticipantIDs, &room.CreatedAt, &room.UpdatedAt, &lastMessageAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, chat.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(room.ParticipantIDs)
	room.LastMessageAt = lastMessageAt
	return &room, nil
}

func (r *ChatRepository) RoomsForParticipant(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	iter := r.s.Query(`SELECT chat_room_id FROM user_rooms WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	rooms := make([]model.ChatRoom, 0, len(ids))
	for _, id := range ids {
		room, err := r.GetRoom(ctx, id)
		if errors.Is(err, chat.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}

func (r *ChatRepository) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	return r.s.Query(`UPDATE chat_rooms SET updated_at = ?, last_message_at = ? WHERE id = ?`, at, at, roomID).
		WithContext(ctx).Exec()
}

const messageColumns = `chat_room_id, id, sender_id, content, media_uri, message_type, duration, is_deleted, metadata, trade_id, created_at, updated_at`

func (r *ChatRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}
	err = r.s.Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatRoomID, int64(msg.ID), msg.SenderID, msg.Content, msg.MediaURI, string(msg.MessageType),
		msg.Duration, msg.IsDeleted, metadata, msg.TradeID, msg.CreatedAt, msg.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return err
	}
	return r.s.Query(`INSERT INTO message_rooms (id, chat_room_id) VALUES (?, ?)`, int64(msg.ID), msg.ChatRoomID).
		WithContext(ctx).Exec()
}

func (r *ChatRepository) GetMessage(ctx context.Context, messageID snowflake.ID) (*model.Message, error) {
	var roomID string
	err := r.s.Query(`SELECT chat_room_id FROM message_rooms WHERE id = ?`, int64(messageID)).WithContext(ctx).Scan(&roomID)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, chat.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	iter := r.s.Query(`SELECT `+messageColumns+` FROM messages WHERE chat_room_id = ? AND id = ?`, roomID, int64(messageID)).
		WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, chat.ErrMessageNotFound
	}
	return &msgs[0], nil
}

func (r *ChatRepository) UpdateMessage(ctx context.Context, msg *model.Message) error {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}
	return r.s.Query(`UPDATE messages SET content = ?, media_uri = ?, message_type = ?, duration = ?, is_deleted = ?, metadata = ?, updated_at = ?
		WHERE chat_room_id = ? AND id = ?`,
		msg.Content, msg.MediaURI, string(msg.MessageType), msg.Duration, msg.IsDeleted, metadata, msg.UpdatedAt,
		msg.ChatRoomID, int64(msg.ID),
	).WithContext(ctx).Exec()
}

func (r *ChatRepository) ListMessages(ctx context.Context, roomID string, before snowflake.ID, limit int) ([]model.Message, error) {
	stmt := `SELECT ` + messageColumns + ` FROM messages WHERE chat_room_id = ?`
	args := []interface{}{roomID}
	if before != 0 {
		stmt += ` AND id < ?`
		args = append(args, int64(before))
	}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}
	return scanMessages(r.s.Query(stmt, args...).WithContext(ctx).Iter())
}

func (r *ChatRepository) LatestMessage(ctx context.Context, roomID string) (*model.Message, error) {
	const page = 50
	var before snowflake.ID
	for {
		msgs, err := r.ListMessages(ctx, roomID, before, page)
		if err != nil {
			return nil, err
		}
		for i := range msgs {
			if !msgs[i].IsDeleted {
				return &msgs[i], nil
			}
		}
		if len(msgs) < page {
			return nil, nil
		}
		before = msgs[len(msgs)-1].ID
	}
}

func (r *ChatRepository) IncrementUnread(ctx context.Context, roomID string, userIDs []string) error {
	for _, uid := range userIDs {
		err := r.s.Query(`UPDATE room_unread SET unread_count = unread_count + 1 WHERE user_id = ? AND chat_room_id = ?`, uid, roomID).
			WithContext(ctx).Exec()
		if err != nil {
			return err
		}
	}
	return nil
}

// ResetUnread subtracts the current value instead of deleting the row:
// counters cannot be reliably incremented again after a delete.
func (r *ChatRepository) ResetUnread(ctx context.Context, roomID, userID string) error {
	n, err := r.UnreadCount(ctx, roomID, userID)
	if err != nil || n == 0 {
		return err
	}
	return r.s.Query(`UPDATE room_unread SET unread_count = unread_count - ? WHERE user_id = ? AND chat_room_id = ?`, n, userID, roomID).
		WithContext(ctx).Exec()
}

func (r *ChatRepository) UnreadCount(ctx context.Context, roomID, userID string) (int64, error) {
	var n int64
	err := r.s.Query(`SELECT unread_count FROM room_unread WHERE user_id = ? AND chat_room_id = ?`, userID, roomID).
		WithContext(ctx).Scan(&n)
	if errors.Is(err, gocql.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

func (r *ChatRepository) AdvanceReadCursor(ctx context.Context, roomID, userID string, id snowflake.ID, at time.Time) (bool, error) {
	applied, err := r.s.Query(`INSERT INTO read_cursors (chat_room_id, user_id, last_read_id, read_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		roomID, userID, int64(id), at).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil || applied {
		return applied, err
	}
	return r.s.Query(`UPDATE read_cursors SET last_read_id = ?, read_at = ? WHERE chat_room_id = ? AND user_id = ? IF last_read_id < ?`,
		int64(id), at, roomID, userID, int64(id)).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (r *ChatRepository) ReadCursors(ctx context.Context, roomID string) ([]chat.ReadCursor, error) {
	iter := r.s.Query(`SELECT user_id, last_read_id, read_at FROM read_cursors WHERE chat_room_id = ?`, roomID).
		WithContext(ctx).Iter()

	var out []chat.ReadCursor
	var (
		userID string
		lastID int64
		readAt time.Time
	)
	for iter.Scan(&userID, &lastID, &readAt) {
		out = append(out, chat.ReadCursor{RoomID: roomID, UserID: userID, LastReadID: snowflake.ID(lastID), ReadAt: readAt})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// messageRow holds one messages row as scanned, before it becomes a
// model.Message.
type messageRow struct {
	roomID    string
	id        int64
	senderID  string
	content   *string
	mediaURI  *string
	msgType   string
	duration  *int
	isDeleted bool
	metadata  *string
	tradeID   *string
	createdAt time.Time
	updatedAt time.Time
}

func (row *messageRow) dest() []interface{} {
	return []interface{}{&row.roomID, &row.id, &row.senderID, &row.content, &row.mediaURI, &row.msgType,
		&row.duration, &row.isDeleted, &row.metadata, &row.tradeID, &row.createdAt, &row.updatedAt}
}

// message maps the row. Unparseable metadata is dropped rather than failing
// the whole page.
func (row *messageRow) message() model.Message {
	m := model.Message{
		ID:          snowflake.ID(row.id),
		ChatRoomID:  row.roomID,
		SenderID:    row.senderID,
		Content:     row.content,
		MediaURI:    row.mediaURI,
		MessageType: model.MessageType(row.msgType),
		Duration:    row.duration,
		IsDeleted:   row.isDeleted,
		TradeID:     row.tradeID,
		CreatedAt:   row.createdAt,
		UpdatedAt:   row.updatedAt,
	}
	if row.metadata != nil && *row.metadata != "" {
		if err := json.Unmarshal([]byte(*row.metadata), &m.Metadata); err != nil {
			m.Metadata = nil
		}
	}
	return m
}

func scanMessages(iter *gocql.Iter) ([]model.Message, error) {
	var out []model.Message
	for {
		var row messageRow
		if !iter.Scan(row.dest()...) {
			break
		}
		out = append(out, row.message())
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeMetadata(md map[string]any) (*string, error) {
	if len(md) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
