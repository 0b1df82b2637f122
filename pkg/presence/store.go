package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/metrics"
	"github.com/rindah89/barter/pkg/model"
)

const (
	onlineSetKey  = "presence:online"
	rowPrefix     = "presence:user:"
	channelPrefix = "presence:"
)

var ErrMissingUser = apperr.InvalidArg("user id is required")

// presenceKey returns the hash holding one user's presence row. Rows live
// under their own prefix so no user id can name the online set.
func presenceKey(userID string) string {
	return rowPrefix + userID
}

// presenceChannel is the pub/sub channel carrying userID's row changes.
func presenceChannel(userID string) string {
	return channelPrefix + userID
}

// sweepScript flips a user offline only if their score is still at or
// below the cutoff, so a heartbeat landing mid-sweep wins.
//
// KEYS[1] online set, KEYS[2] presence row
// ARGV[1] user id, ARGV[2] cutoff ms, ARGV[3] now ms
var sweepScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[2], 'is_online', '0', 'updated_at', ARGV[3])
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

// Store keeps per-user presence in Redis and pushes every row change on a
// per-user channel.
type Store struct {
	rdb        *redis.Client
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func NewStore(rdb *redis.Client, logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		rdb:        rdb,
		staleAfter: model.DefaultStaleAfter,
		now:        time.Now,
		log:        logger.With().Str("component", "presence").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) StaleAfter() time.Duration { return s.staleAfter }

// Heartbeat marks the user online with last_seen = now.
func (s *Store) Heartbeat(ctx context.Context, userID string) (model.Presence, error) {
	if userID == "" {
		return model.Presence{}, ErrMissingUser
	}
	now := s.now()
	p := model.Presence{UserID: userID, IsOnline: true, LastSeen: now, UpdatedAt: now}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, presenceKey(userID), map[string]interface{}{
			"is_online":  "1",
			"last_seen":  now.UnixMilli(),
			"updated_at": now.UnixMilli(),
		})
		pipe.ZAdd(ctx, onlineSetKey, redis.Z{Score: float64(now.UnixMilli()), Member: userID})
		return nil
	})
	if err != nil {
		return model.Presence{}, apperr.Unavailable("presence backend unavailable", err)
	}
	metrics.PresenceHeartbeats.Inc()
	s.publish(ctx, p)
	return p, nil
}

// SetOffline flips the stored flag. last_seen keeps the last heartbeat.
func (s *Store) SetOffline(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	p, err := s.markOffline(ctx, userID)
	if err != nil {
		return apperr.Unavailable("presence backend unavailable", err)
	}
	s.publish(ctx, p)
	return nil
}

func (s *Store) markOffline(ctx context.Context, userID string) (model.Presence, error) {
	now := s.now()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, presenceKey(userID), map[string]interface{}{
			"is_online":  "0",
			"updated_at": now.UnixMilli(),
		})
		pipe.ZRem(ctx, onlineSetKey, userID)
		return nil
	})
	if err != nil {
		return model.Presence{}, err
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return model.Presence{UserID: userID, UpdatedAt: now}, nil
	}
	return p, nil
}

// Get returns the stored row. Users never seen come back offline with a zero
// last_seen.
func (s *Store) Get(ctx context.Context, userID string) (model.Presence, error) {
	if userID == "" {
		return model.Presence{}, ErrMissingUser
	}
	fields, err := s.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return model.Presence{}, apperr.Unavailable("presence backend unavailable", err)
	}
	return decodeRow(userID, fields), nil
}

// IsOnline applies the staleness window on top of the stored flag.
func (s *Store) IsOnline(ctx context.Context, userID string) (bool, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.EffectivelyOnline(s.now(), s.staleAfter), nil
}

// SweepStale flips every user whose last heartbeat fell out of the window
// to offline and notifies their subscribers.
func (s *Store) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter).UnixMilli()
	stale, err := s.rdb.ZRangeByScore(ctx, onlineSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, apperr.Unavailable("presence backend unavailable", err)
	}

	swept := 0
	for _, userID := range stale {
		flipped, err := sweepScript.Run(ctx, s.rdb,
			[]string{onlineSetKey, presenceKey(userID)},
			userID, cutoff, s.now().UnixMilli(),
		).Int()
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to sweep presence")
			continue
		}
		if flipped == 0 {
			continue
		}
		swept++
		p, err := s.Get(ctx, userID)
		if err != nil {
			p = model.Presence{UserID: userID}
		}
		s.publish(ctx, p)
	}
	metrics.PresenceSwept.Add(float64(swept))
	return swept, nil
}

func (s *Store) publish(ctx context.Context, p model.Presence) {
	payload, err := json.Marshal(p)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal presence")
		return
	}
	if err := s.rdb.Publish(ctx, presenceChannel(p.UserID), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("user_id", p.UserID).Msg("failed to publish presence")
	}
}

// Subscription is a live presence feed. Close is idempotent.
type Subscription interface {
	Close() error
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

func (r *redisSubscription) Close() error {
	select {
	case <-r.done:
		return nil
	default:
	}
	err := r.ps.Close()
	<-r.done
	return err
}

// Subscribe delivers every change to userID's row to fn until ctx is done or
// the subscription is closed. The subscription is confirmed before returning.
func (s *Store) Subscribe(ctx context.Context, userID string, fn func(model.Presence)) (Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	ps := s.rdb.Subscribe(ctx, presenceChannel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, apperr.Unavailable("presence backend unavailable", err)
	}
	return s.listen(ctx, ps, fn), nil
}

// SubscribeAll delivers changes for every user. The gateway uses it to fan
// presence out to websocket subscribers.
func (s *Store) SubscribeAll(ctx context.Context, fn func(model.Presence)) (Subscription, error) {
	ps := s.rdb.PSubscribe(ctx, ChannelPattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, apperr.Unavailable("presence backend unavailable", err)
	}
	return s.listen(ctx, ps, fn), nil
}

func (s *Store) listen(ctx context.Context, ps *redis.PubSub, fn func(model.Presence)) *redisSubscription {
	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				p, err := Decode([]byte(msg.Payload))
				if err != nil {
					s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed presence payload")
					continue
				}
				fn(p)
			}
		}
	}()
	return sub
}

// Decode parses a presence payload published on a presence channel.
func Decode(b []byte) (model.Presence, error) {
	var p model.Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Presence{}, err
	}
	if p.UserID == "" {
		return model.Presence{}, errors.New("presence payload without user_id")
	}
	return p, nil
}

// ChannelPattern matches every per-user presence channel.
const ChannelPattern = channelPrefix + "*"

// UserFromChannel extracts the user id from a presence channel name.
func UserFromChannel(channel string) (string, error) {
	if len(channel) <= len(channelPrefix) || channel[:len(channelPrefix)] != channelPrefix {
		return "", fmt.Errorf("not a presence channel: %q", channel)
	}
	return channel[len(channelPrefix):], nil
}

func decodeRow(userID string, fields map[string]string) model.Presence {
	p := model.Presence{UserID: userID, IsOnline: fields["is_online"] == "1"}
	if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
		p.LastSeen = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		p.UpdatedAt = time.UnixMilli(ms)
	}
	return p
}
