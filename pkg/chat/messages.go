package chat

import (
	"context"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/metrics"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// Send appends a message to a room. The returned message carries the server
// id, timestamps and sender profile so the caller can reconcile its
// optimistic copy without another round trip.
func (s *Service) Send(ctx context.Context, req model.SendRequest) (*model.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.InvalidArg(err.Error())
	}

	room, err := s.repo.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, backendErr("get chat room", err)
	}
	if !room.HasParticipant(req.SenderID) {
		return nil, ErrNotParticipant
	}

	now := s.now().UTC()
	msg := &model.Message{
		ID:          s.ids.Generate(),
		ChatRoomID:  room.ID,
		SenderID:    req.SenderID,
		Content:     req.Content,
		MessageType: req.Type,
		MediaURI:    req.MediaURI,
		Duration:    req.Duration,
		TradeID:     req.TradeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(req.Metadata) > 0 || req.ClientRef != "" {
		msg.Metadata = make(map[string]any, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			msg.Metadata[k] = v
		}
		if req.ClientRef != "" {
			msg.Metadata[model.MetadataClientRef] = req.ClientRef
		}
	}

	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, backendErr("insert message", err)
	}
	metrics.MessagesSent.WithLabelValues(string(msg.MessageType)).Inc()

	// Room bookkeeping is best effort: the message is already durable and the
	// latest message is computed at read time.
	if err := s.repo.TouchRoom(ctx, room.ID, now); err != nil {
		s.log.Warn().Err(err).Str("room_id", room.ID).Msg("touch chat room failed")
	}
	if err := s.repo.IncrementUnread(ctx, room.ID, room.Others(req.SenderID)); err != nil {
		s.log.Warn().Err(err).Str("room_id", room.ID).Msg("increment unread failed")
	}

	sender := profileFor(s.profileMap(ctx, []string{req.SenderID}), req.SenderID)
	msg.Sender = &sender

	s.publish(ctx, model.MessageEvent{Type: model.EventInsert, RoomID: room.ID, Message: msg})
	return msg, nil
}

// List returns every message in the room, newest first.
func (s *Service) List(ctx context.Context, roomID string) ([]model.Message, error) {
	return s.ListPage(ctx, roomID, 0, 0)
}

// ListPage returns up to limit messages older than before, newest first,
// joined with sender profiles and read receipts.
func (s *Service) ListPage(ctx context.Context, roomID string, before snowflake.ID, limit int) ([]model.Message, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, backendErr("get chat room", err)
	}

	msgs, err := s.repo.ListMessages(ctx, roomID, before, limit)
	if err != nil {
		return nil, backendErr("list messages", err)
	}
	sortNewestFirst(msgs)

	cursors, err := s.repo.ReadCursors(ctx, roomID)
	if err != nil {
		return nil, backendErr("load read cursors", err)
	}

	profiles := s.profileMap(ctx, room.ParticipantIDs)
	for i := range msgs {
		m := &msgs[i]
		sender := profileFor(profiles, m.SenderID)
		m.Sender = &sender
		applyReceipts(m, room, cursors)
	}
	return msgs, nil
}

// applyReceipts projects read cursors into per-message receipts.
func applyReceipts(m *model.Message, room *model.ChatRoom, cursors []ReadCursor) {
	others := room.Others(m.SenderID)
	m.ReadBy = nil
	read := 0
	for _, uid := range others {
		for _, c := range cursors {
			if c.UserID == uid && c.LastReadID >= m.ID {
				m.ReadBy = append(m.ReadBy, model.ReadReceipt{
					MessageID: m.ID,
					UserID:    uid,
					IsRead:    true,
					ReadAt:    c.ReadAt,
				})
				read++
				break
			}
		}
	}
	m.ReadByAll = len(others) > 0 && read == len(others)
}

func sortNewestFirst(msgs []model.Message) {
	// Insertion sort: pages are small and usually already ordered.
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && model.Newer(&msgs[j], &msgs[j-1]); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}

// SoftDelete tombstones a message. actorID, when set, must be the sender.
// Deleting an already deleted message returns it unchanged.
func (s *Service) SoftDelete(ctx context.Context, messageID snowflake.ID, actorID string) (*model.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, backendErr("get message", err)
	}
	if actorID != "" && msg.SenderID != actorID {
		return nil, ErrNotSender
	}
	if msg.IsDeleted {
		return msg, nil
	}

	msg.Tombstone(s.now().UTC())
	if err := s.repo.UpdateMessage(ctx, msg); err != nil {
		return nil, backendErr("delete message", err)
	}
	metrics.MessagesDeleted.Inc()

	s.publish(ctx, model.MessageEvent{Type: model.EventUpdate, RoomID: msg.ChatRoomID, Message: msg})
	return msg, nil
}

// MarkRead advances userID's read cursor to the newest message in the room
// and clears their unread count. The cursor never moves backwards.
func (s *Service) MarkRead(ctx context.Context, roomID, userID string) error {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return backendErr("get chat room", err)
	}
	if !room.HasParticipant(userID) {
		return ErrNotParticipant
	}

	newest, err := s.repo.ListMessages(ctx, roomID, 0, 1)
	if err != nil {
		return backendErr("list messages", err)
	}

	if len(newest) > 0 {
		advanced, err := s.repo.AdvanceReadCursor(ctx, roomID, userID, newest[0].ID, s.now().UTC())
		if err != nil {
			return backendErr("advance read cursor", err)
		}
		if advanced {
			s.publish(ctx, model.MessageEvent{
				Type:       model.EventRead,
				RoomID:     roomID,
				ReaderID:   userID,
				ReadCursor: newest[0].ID,
			})
		}
	}

	if err := s.repo.ResetUnread(ctx, roomID, userID); err != nil {
		return backendErr("reset unread count", err)
	}
	return nil
}
