package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindah89/barter/pkg/model"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*Store, *clock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := &clock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(rdb, zerolog.Nop(), WithClock(c.Now)), c, mr
}

func TestIsOnlineHonoursStalenessWindow(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Heartbeat(ctx, "u3")
	require.NoError(t, err)

	c.Advance(90 * time.Second)
	online, err := s.IsOnline(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, online)

	c.Advance(60 * time.Second)
	online, err = s.IsOnline(ctx, "u3")
	require.NoError(t, err)
	assert.False(t, online, "stored flag is still true but the heartbeat is stale")

	p, err := s.Get(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, p.IsOnline)
}

func TestSetOfflineKeepsLastSeen(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()

	beat, err := s.Heartbeat(ctx, "u1")
	require.NoError(t, err)

	c.Advance(10 * time.Second)
	require.NoError(t, s.SetOffline(ctx, "u1"))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
	assert.Equal(t, beat.LastSeen.UnixMilli(), p.LastSeen.UnixMilli())
	assert.Equal(t, c.Now().UnixMilli(), p.UpdatedAt.UnixMilli())

	online, err := s.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestUnknownUserIsOffline(t *testing.T) {
	s, _, _ := newTestStore(t)

	online, err := s.IsOnline(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, online)

	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestSweepStaleFlipsOnlyExpiredUsers(t *testing.T) {
	s, c, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Heartbeat(ctx, "old")
	require.NoError(t, err)
	c.Advance(100 * time.Second)
	_, err = s.Heartbeat(ctx, "fresh")
	require.NoError(t, err)
	c.Advance(30 * time.Second)

	n, err := s.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	old, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, old.IsOnline)

	fresh, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, fresh.IsOnline)

	n, err = s.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUserNamedOnlineDoesNotClashWithOnlineSet(t *testing.T) {
	s, _, mr := newTestStore(t)
	ctx := context.Background()

	_, err := s.Heartbeat(ctx, "online")
	require.NoError(t, err)
	online, err := s.IsOnline(ctx, "online")
	require.NoError(t, err)
	assert.True(t, online)

	_, err = s.Heartbeat(ctx, "u1")
	require.NoError(t, err)
	members, err := mr.ZMembers(onlineSetKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"online", "u1"}, members)
}

// beatAfterScan heartbeats a user right after the sweeper has read the
// stale set and before it flips anyone.
type beatAfterScan struct {
	store  *Store
	userID string
	once   sync.Once
}

func (h *beatAfterScan) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *beatAfterScan) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "zrangebyscore" {
			h.once.Do(func() { _, _ = h.store.Heartbeat(ctx, h.userID) })
		}
		return err
	}
}

func (h *beatAfterScan) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestSweepStaleSparesHeartbeatDuringSweep(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c := &clock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStore(rdb, zerolog.Nop(), WithClock(c.Now))
	ctx := context.Background()

	_, err := s.Heartbeat(ctx, "u3")
	require.NoError(t, err)
	c.Advance(3 * time.Minute)

	rdb.AddHook(&beatAfterScan{store: s, userID: "u3"})

	n, err := s.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	online, err := s.IsOnline(ctx, "u3")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestSubscribeReceivesRowChanges(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	got := make(chan model.Presence, 4)
	sub, err := s.Subscribe(ctx, "u2", func(p model.Presence) { got <- p })
	require.NoError(t, err)

	_, err = s.Heartbeat(ctx, "u2")
	require.NoError(t, err)
	_, err = s.Heartbeat(ctx, "someone-else")
	require.NoError(t, err)
	require.NoError(t, s.SetOffline(ctx, "u2"))

	first := waitPresence(t, got)
	assert.Equal(t, "u2", first.UserID)
	assert.True(t, first.IsOnline)

	second := waitPresence(t, got)
	assert.Equal(t, "u2", second.UserID)
	assert.False(t, second.IsOnline)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}

func TestSubscribeAllSeesEveryUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	got := make(chan model.Presence, 4)
	sub, err := s.SubscribeAll(ctx, func(p model.Presence) { got <- p })
	require.NoError(t, err)
	defer sub.Close()

	_, err = s.Heartbeat(ctx, "u1")
	require.NoError(t, err)
	_, err = s.Heartbeat(ctx, "u2")
	require.NoError(t, err)

	seen := map[string]bool{}
	seen[waitPresence(t, got).UserID] = true
	seen[waitPresence(t, got).UserID] = true
	assert.Equal(t, map[string]bool{"u1": true, "u2": true}, seen)
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	s, _, mr := newTestStore(t)
	mr.Close()

	_, err := s.Heartbeat(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presence backend unavailable")
}

func waitPresence(t *testing.T, ch <-chan model.Presence) model.Presence {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence change")
		return model.Presence{}
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	beats   int
	offline int
	failOff bool
}

func (w *recordingWriter) Heartbeat(context.Context, string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.beats++
	return nil
}

func (w *recordingWriter) SetOffline(context.Context, string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.offline++
	if w.failOff {
		return errors.New("network gone")
	}
	return nil
}

func (w *recordingWriter) counts() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.beats, w.offline
}

func TestHeartbeaterBeatsAndGoesOfflineOnStop(t *testing.T) {
	w := &recordingWriter{}
	h := NewHeartbeater(w, "u1", 10*time.Millisecond, zerolog.Nop())
	h.Start(context.Background())

	require.Eventually(t, func() bool {
		beats, _ := w.counts()
		return beats >= 3
	}, 2*time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()

	_, offline := w.counts()
	assert.Equal(t, 1, offline)
}

func TestHeartbeaterStopsOnContextCancelEvenIfOfflineFails(t *testing.T) {
	w := &recordingWriter{failOff: true}
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHeartbeater(w, "u1", time.Hour, zerolog.Nop())
	h.Start(ctx)

	require.Eventually(t, func() bool {
		beats, _ := w.counts()
		return beats == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	h.Stop()

	beats, offline := w.counts()
	assert.Equal(t, 1, beats)
	assert.Equal(t, 1, offline)
}

func TestStoreWriterDrivesStore(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	w := StoreWriter{s}

	require.NoError(t, w.Heartbeat(ctx, "u9"))
	online, err := s.IsOnline(ctx, "u9")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, w.SetOffline(ctx, "u9"))
	online, err = s.IsOnline(ctx, "u9")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestUserFromChannel(t *testing.T) {
	uid, err := UserFromChannel("presence:u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	_, err = UserFromChannel("room:abc")
	assert.Error(t, err)
}
