package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

type unreadKey struct{ roomID, userID string }

// MemoryRepository is an in-process Repository used in development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	rooms    map[string]*model.ChatRoom
	keys     map[string]string // participant key -> room id
	messages map[string][]*model.Message
	byID     map[snowflake.ID]*model.Message
	unread   map[unreadKey]int64
	cursors  map[unreadKey]ReadCursor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:    make(map[string]*model.ChatRoom),
		keys:     make(map[string]string),
		messages: make(map[string][]*model.Message),
		byID:     make(map[snowflake.ID]*model.Message),
		unread:   make(map[unreadKey]int64),
		cursors:  make(map[unreadKey]ReadCursor),
	}
}

func (m *MemoryRepository) CreateRoomIfAbsent(_ context.Context, room *model.ChatRoom) (*model.ChatRoom, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.ParticipantKey(room.ParticipantIDs)
	if id, ok := m.keys[key]; ok {
		return cloneRoom(m.rooms[id]), false, nil
	}
	stored := cloneRoom(room)
	m.rooms[stored.ID] = stored
	m.keys[key] = stored.ID
	return cloneRoom(stored), true, nil
}

// InsertRoom stores room without claiming its participant key. It simulates
// rooms written before the key existed, or by a racing writer.
func (m *MemoryRepository) InsertRoom(room *model.ChatRoom) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room.ID] = cloneRoom(room)
}

func (m *MemoryRepository) GetRoom(_ context.Context, roomID string) (*model.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (m *MemoryRepository) RoomsForParticipant(_ context.Context, userID string) ([]model.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ChatRoom
	for _, r := range m.rooms {
		if r.HasParticipant(userID) {
			out = append(out, *cloneRoom(r))
		}
	}
	return out, nil
}

func (m *MemoryRepository) TouchRoom(_ context.Context, roomID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.UpdatedAt = at
	last := at
	r.LastMessageAt = &last
	return nil
}

func (m *MemoryRepository) InsertMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneMessage(msg)
	m.messages[msg.ChatRoomID] = append(m.messages[msg.ChatRoomID], stored)
	m.byID[msg.ID] = stored
	return nil
}

func (m *MemoryRepository) GetMessage(_ context.Context, messageID snowflake.ID) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.byID[messageID]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (m *MemoryRepository) UpdateMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[msg.ID]
	if !ok {
		return ErrMessageNotFound
	}
	*stored = *cloneMessage(msg)
	return nil
}

func (m *MemoryRepository) ListMessages(_ context.Context, roomID string, before snowflake.ID, limit int) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.messages[roomID]
	out := make([]model.Message, 0, len(all))
	for _, msg := range all {
		if before != 0 && msg.ID >= before {
			continue
		}
		out = append(out, *cloneMessage(msg))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) LatestMessage(ctx context.Context, roomID string) (*model.Message, error) {
	msgs, err := m.ListMessages(ctx, roomID, 0, 0)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		if !msgs[i].IsDeleted {
			return &msgs[i], nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) IncrementUnread(_ context.Context, roomID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range userIDs {
		m.unread[unreadKey{roomID, u}]++
	}
	return nil
}

func (m *MemoryRepository) ResetUnread(_ context.Context, roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unread, unreadKey{roomID, userID})
	return nil
}

func (m *MemoryRepository) UnreadCount(_ context.Context, roomID, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unread[unreadKey{roomID, userID}], nil
}

func (m *MemoryRepository) AdvanceReadCursor(_ context.Context, roomID, userID string, id snowflake.ID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := unreadKey{roomID, userID}
	if cur, ok := m.cursors[k]; ok && cur.LastReadID >= id {
		return false, nil
	}
	m.cursors[k] = ReadCursor{RoomID: roomID, UserID: userID, LastReadID: id, ReadAt: at}
	return true, nil
}

func (m *MemoryRepository) ReadCursors(_ context.Context, roomID string) ([]ReadCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReadCursor
	for k, c := range m.cursors {
		if k.roomID == roomID {
			out = append(out, c)
		}
	}
	return out, nil
}

func cloneRoom(r *model.ChatRoom) *model.ChatRoom {
	if r == nil {
		return nil
	}
	c := *r
	c.ParticipantIDs = append([]string(nil), r.ParticipantIDs...)
	c.Participants = nil
	c.LastMessage = nil
	if r.LastMessageAt != nil {
		t := *r.LastMessageAt
		c.LastMessageAt = &t
	}
	return &c
}

func cloneMessage(msg *model.Message) *model.Message {
	c := *msg
	if msg.Content != nil {
		c.Content = model.StringPtr(*msg.Content)
	}
	if msg.MediaURI != nil {
		c.MediaURI = model.StringPtr(*msg.MediaURI)
	}
	if msg.Duration != nil {
		c.Duration = model.IntPtr(*msg.Duration)
	}
	if msg.TradeID != nil {
		c.TradeID = model.StringPtr(*msg.TradeID)
	}
	if msg.Metadata != nil {
		c.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Sender = nil
	c.ReadBy = nil
	return &c
}
