package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

// Service is the chat room directory and message pipeline.
type Service struct {
	repo     Repository
	profiles ProfileLookup
	events   Publisher
	ids      *snowflake.Node
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Service)

// WithClock overrides the server clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, profiles ProfileLookup, events Publisher, ids *snowflake.Node, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		profiles: profiles,
		events:   events,
		ids:      ids,
		now:      time.Now,
		log:      logger.With().Str("component", "chat").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// backendErr passes domain errors through and marks everything else as a
// backend failure.
func backendErr(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Unavailable(op+" failed", err)
}

func (s *Service) profileMap(ctx context.Context, ids []string) map[string]model.Profile {
	if s.profiles == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := s.profiles.Profiles(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("profile lookup failed, returning bare ids")
		return nil
	}
	return profiles
}

func profileFor(profiles map[string]model.Profile, id string) model.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return model.Profile{ID: id}
}

func (s *Service) publish(ctx context.Context, ev model.MessageEvent) {
	if s.events == nil {
		return
	}
	// A missed live event is repaired by the subscriber's next full load, so
	// publish failures do not fail the write.
	if err := s.events.PublishMessageEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("room_id", ev.RoomID).Str("type", string(ev.Type)).Msg("publish message event failed")
	}
}
