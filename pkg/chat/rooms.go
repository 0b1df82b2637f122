package chat

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rindah89/barter/pkg/metrics"
	"github.com/rindah89/barter/pkg/model"
)

const hydrateConcurrency = 8

// ResolveOrCreateRoom returns the room whose participant set is exactly
// participantIDs, creating it when none exists.
func (s *Service) ResolveOrCreateRoom(ctx context.Context, participantIDs []string) (*model.ChatRoom, error) {
	ids := model.NormalizeParticipants(participantIDs)
	if len(ids) < 2 {
		return nil, ErrTooFewParticipants
	}

	room, err := s.findExact(ctx, ids)
	if err != nil {
		return nil, err
	}

	if room == nil {
		now := s.now().UTC()
		candidate := &model.ChatRoom{
			ID:             uuid.NewString(),
			ParticipantIDs: ids,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		stored, created, err := s.repo.CreateRoomIfAbsent(ctx, candidate)
		if err != nil {
			return nil, backendErr("create chat room", err)
		}
		if created {
			metrics.RoomsCreated.Inc()
			s.log.Info().Str("room_id", stored.ID).Strs("participants", ids).Msg("chat room created")
		}
		room = stored
	}

	profiles := s.profileMap(ctx, room.ParticipantIDs)
	room.Participants = participantsOf(room, profiles)
	return room, nil
}

// findExact looks up rooms containing the first participant and keeps only
// exact participant-set matches. When stale duplicates exist the oldest room
// is canonical.
func (s *Service) findExact(ctx context.Context, ids []string) (*model.ChatRoom, error) {
	candidates, err := s.repo.RoomsForParticipant(ctx, ids[0])
	if err != nil {
		return nil, backendErr("look up chat rooms", err)
	}

	var best *model.ChatRoom
	for i := range candidates {
		c := &candidates[i]
		if !model.SameParticipants(c.ParticipantIDs, ids) {
			continue
		}
		if best == nil || c.CreatedAt.Before(best.CreatedAt) ||
			(c.CreatedAt.Equal(best.CreatedAt) && c.ID < best.ID) {
			best = c
		}
	}
	return best, nil
}

// GetRoom returns one room hydrated for userID.
func (s *Service) GetRoom(ctx context.Context, roomID, userID string) (*model.ChatRoom, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, backendErr("get chat room", err)
	}
	if userID != "" && !room.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	if err := s.hydrateRoom(ctx, room, userID, s.profileMap(ctx, room.ParticipantIDs)); err != nil {
		return nil, err
	}
	return room, nil
}

// CheckMember confirms the room exists and userID belongs to it without
// hydrating the room.
func (s *Service) CheckMember(ctx context.Context, roomID, userID string) error {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return backendErr("get chat room", err)
	}
	if !room.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// ListRoomsForUser returns the user's rooms, most recently updated first, each
// with participants, its newest message and the user's unread count.
func (s *Service) ListRoomsForUser(ctx context.Context, userID string) ([]model.ChatRoom, error) {
	rooms, err := s.repo.RoomsForParticipant(ctx, userID)
	if err != nil {
		return nil, backendErr("list chat rooms", err)
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		if !rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
		}
		return rooms[i].ID < rooms[j].ID
	})

	var everyone []string
	for _, r := range rooms {
		everyone = append(everyone, r.ParticipantIDs...)
	}
	profiles := s.profileMap(ctx, model.NormalizeParticipants(everyone))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i := range rooms {
		room := &rooms[i]
		g.Go(func() error {
			return s.hydrateRoom(gctx, room, userID, profiles)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (s *Service) hydrateRoom(ctx context.Context, room *model.ChatRoom, userID string, profiles map[string]model.Profile) error {
	room.Participants = participantsOf(room, profiles)

	last, err := s.repo.LatestMessage(ctx, room.ID)
	if err != nil {
		return backendErr("load latest message", err)
	}
	if last != nil {
		sender := profileFor(profiles, last.SenderID)
		last.Sender = &sender
	}
	room.LastMessage = last

	if userID != "" {
		n, err := s.repo.UnreadCount(ctx, room.ID, userID)
		if err != nil {
			return backendErr("load unread count", err)
		}
		room.UnreadCount = n
	}
	return nil
}

func participantsOf(room *model.ChatRoom, profiles map[string]model.Profile) []model.Profile {
	out := make([]model.Profile, 0, len(room.ParticipantIDs))
	for _, id := range room.ParticipantIDs {
		out = append(out, profileFor(profiles, id))
	}
	return out
}
