package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/events"
	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/snowflake"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type noProfiles struct{}

func (noProfiles) Profiles(context.Context, []string) (map[string]model.Profile, error) {
	return map[string]model.Profile{}, nil
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

// busRealtime exposes the in-memory bus as a Realtime and lets tests push
// presence changes.
type busRealtime struct {
	bus *events.MemoryBus

	mu       sync.Mutex
	presence map[string]func(model.Presence)
}

func (r *busRealtime) SubscribeRoom(_ context.Context, roomID string, fn func(model.MessageEvent)) (Subscription, error) {
	return closeFunc(r.bus.SubscribeRoom(roomID, fn)), nil
}

func (r *busRealtime) SubscribePresence(_ context.Context, userID string, fn func(model.Presence)) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presence == nil {
		r.presence = make(map[string]func(model.Presence))
	}
	r.presence[userID] = fn
	return closeFunc(func() {
		r.mu.Lock()
		delete(r.presence, userID)
		r.mu.Unlock()
	}), nil
}

func (r *busRealtime) pushPresence(p model.Presence) {
	r.mu.Lock()
	fn := r.presence[p.UserID]
	r.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (r *busRealtime) presenceSubs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.presence)
}

type staticPresence struct{ p model.Presence }

func (s staticPresence) Get(context.Context, string) (model.Presence, error) { return s.p, nil }

type fakeUploader struct {
	mu    sync.Mutex
	fail  error
	calls int
}

func (u *fakeUploader) Upload(_ context.Context, category media.Category, filename, _ string, r io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.fail != nil {
		return "", u.fail
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return "https://cdn.example/" + string(category) + "/" + filename, nil
}

type flakyPipeline struct {
	Pipeline
	mu       sync.Mutex
	failures int
}

func (p *flakyPipeline) Send(ctx context.Context, req model.SendRequest) (*model.Message, error) {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return nil, errors.New("network unreachable")
	}
	p.mu.Unlock()
	return p.Pipeline.Send(ctx, req)
}

type fakeRecorder struct {
	mu        sync.Mutex
	starts    int
	cancelled int
}

func (r *fakeRecorder) Start(context.Context) error {
	r.mu.Lock()
	r.starts++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (Attachment, error) {
	clip := BytesAttachment("note.m4a", "audio/mp4", model.TypeVoice, []byte("aac"))
	clip.Duration = 3 * time.Second
	return clip, nil
}

func (r *fakeRecorder) Cancel() error {
	r.mu.Lock()
	r.cancelled++
	r.mu.Unlock()
	return nil
}

type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	stopped int
}

func (p *fakePlayer) Play(_ context.Context, uri string) error {
	p.mu.Lock()
	p.played = append(p.played, uri)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	p.stopped++
	p.mu.Unlock()
	return nil
}

type blockingDirectory struct {
	Directory
	release chan struct{}
}

func (d blockingDirectory) ResolveOrCreateRoom(ctx context.Context, ids []string) (*model.ChatRoom, error) {
	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return d.Directory.ResolveOrCreateRoom(ctx, ids)
}

type failingDirectory struct{}

func (failingDirectory) ResolveOrCreateRoom(context.Context, []string) (*model.ChatRoom, error) {
	return nil, errors.New("backend unreachable")
}

type fixture struct {
	svc      *chat.Service
	bus      *events.MemoryBus
	realtime *busRealtime
	clock    *fakeClock
	uploader *fakeUploader
	recorder *fakeRecorder
	player   *fakePlayer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	node.WithClock(clock.Now)

	bus := events.NewMemoryBus()
	svc := chat.NewService(chat.NewMemoryRepository(), noProfiles{}, bus, node, zerolog.Nop(), chat.WithClock(clock.Now))
	return &fixture{
		svc:      svc,
		bus:      bus,
		realtime: &busRealtime{bus: bus},
		clock:    clock,
		uploader: &fakeUploader{},
		recorder: &fakeRecorder{},
		player:   &fakePlayer{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Directory: f.svc,
		Pipeline:  f.svc,
		Uploader:  f.uploader,
		Realtime:  f.realtime,
		Recorder:  f.recorder,
		Player:    f.player,
	}
}

func (f *fixture) options(me, other string) Options {
	return Options{
		Session:       auth.Session{UserID: me},
		CounterpartID: other,
		Now:           f.clock.Now,
	}
}

func (f *fixture) open(t *testing.T, deps Deps, opts Options) *Controller {
	t.Helper()
	c, err := New(deps, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Open(context.Background()))
	require.Equal(t, StateReady, c.State())
	return c
}

func (f *fixture) advance() { f.clock.Advance(time.Second) }

func TestNewValidatesSessionAndCounterpart(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.deps(), Options{CounterpartID: "u2"})
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = New(f.deps(), Options{Session: auth.Session{UserID: "u1"}})
	assert.ErrorIs(t, err, ErrNoCounterpart)
}

func TestOpenLoadsHistoryAndSubscribes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.ResolveOrCreateRoom(ctx, []string{"u2", "u1"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, model.SendRequest{RoomID: room.ID, SenderID: "u2", Type: model.TypeText, Content: model.StringPtr("Hi")})
	require.NoError(t, err)

	c := f.open(t, f.deps(), f.options("u1", "u2"))

	assert.Equal(t, room.ID, c.Room().ID)
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi", *msgs[0].Message.Content)
	assert.Equal(t, EntrySent, msgs[0].State)
	assert.Equal(t, 1, f.bus.Subscribers(room.ID))
	assert.Equal(t, 1, f.realtime.presenceSubs())

	assert.ErrorIs(t, c.Open(ctx), ErrAlreadyOpen)
}

func TestSendTextShowsOptimisticEntryThenReconciles(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var firstLocal *Entry
	var c *Controller
	opts := f.options("u1", "u2")
	opts.OnChange = func() {
		if c == nil {
			return
		}
		msgs := c.Messages()
		mu.Lock()
		defer mu.Unlock()
		if firstLocal == nil && len(msgs) > 0 && msgs[0].ID.IsLocal() {
			e := msgs[0]
			firstLocal = &e
		}
	}
	c = f.open(t, f.deps(), opts)

	id, err := c.SendText(context.Background(), "Is the bike still available?")
	require.NoError(t, err)
	assert.False(t, id.IsLocal())

	mu.Lock()
	require.NotNil(t, firstLocal)
	assert.Equal(t, EntrySending, firstLocal.State)
	assert.Equal(t, "Is the bike still available?", *firstLocal.Message.Content)
	mu.Unlock()

	msgs := c.Messages()
	require.Len(t, msgs, 1, "the realtime echo and the send result must collapse into one entry")
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, EntrySent, msgs[0].State)
	assert.Equal(t, firstLocal.ID.Local(), msgs[0].Message.ClientRef())
}

func TestRealtimeEventsAreMergedIdempotentlyAndInOrder(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	roomID := c.Room().ID
	base := f.clock.Now()

	older := model.Message{ID: 100, ChatRoomID: roomID, SenderID: "u2", MessageType: model.TypeText, Content: model.StringPtr("first"), CreatedAt: base, UpdatedAt: base}
	newer := model.Message{ID: 200, ChatRoomID: roomID, SenderID: "u2", MessageType: model.TypeText, Content: model.StringPtr("second"), CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second)}

	ctx := context.Background()
	publish := func(typ model.EventType, m model.Message) {
		require.NoError(t, f.bus.PublishMessageEvent(ctx, model.MessageEvent{Type: typ, RoomID: roomID, Message: &m}))
	}
	publish(model.EventInsert, newer)
	publish(model.EventInsert, older)
	publish(model.EventInsert, newer)
	publish(model.EventInsert, older)
	// Events for other rooms are ignored.
	require.NoError(t, f.bus.PublishMessageEvent(ctx, model.MessageEvent{Type: model.EventInsert, RoomID: "elsewhere", Message: &older}))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ServerID(200), msgs[0].ID)
	assert.Equal(t, ServerID(100), msgs[1].ID)

	tomb := newer
	tomb.Tombstone(base.Add(2 * time.Second))
	publish(model.EventUpdate, tomb)
	// A late duplicate insert must not revive the deleted message.
	publish(model.EventInsert, newer)

	msgs = c.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Message.IsDeleted)
	assert.Nil(t, msgs[0].Message.Content)
	assert.Equal(t, model.TypeDeleted, msgs[0].Message.MessageType)
}

func TestFailedSendStaysVisibleAndCanBeRetried(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	flaky := &flakyPipeline{Pipeline: f.svc, failures: 1}
	deps.Pipeline = flaky
	c := f.open(t, deps, f.options("u1", "u2"))
	ctx := context.Background()

	id, err := c.SendText(ctx, "offer: my lamp for your chair")
	require.Error(t, err)
	require.True(t, id.IsLocal())

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EntryFailed, msgs[0].State)
	assert.Error(t, msgs[0].Err)

	serverID, err := c.Retry(ctx, id)
	require.NoError(t, err)
	assert.False(t, serverID.IsLocal())

	msgs = c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serverID, msgs[0].ID)
	assert.Equal(t, EntrySent, msgs[0].State)

	_, err = c.Retry(ctx, serverID)
	assert.ErrorIs(t, err, ErrNotFailed)
}

func TestDiscardRemovesOnlyFailedEntries(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.Pipeline = &flakyPipeline{Pipeline: f.svc, failures: 1}
	c := f.open(t, deps, f.options("u1", "u2"))
	ctx := context.Background()

	failed, err := c.SendText(ctx, "lost")
	require.Error(t, err)
	sent, err := c.SendText(ctx, "kept")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Discard(sent), ErrNotFailed)
	require.NoError(t, c.Discard(failed))
	assert.ErrorIs(t, c.Discard(failed), ErrEntryNotFound)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", *msgs[0].Message.Content)
}

func TestSeedMessageIsSentExactlyOnce(t *testing.T) {
	f := newFixture(t)
	opts := f.options("u1", "u2")
	opts.InitialMessage = "Hi! I'm interested in your trade offer."

	c := f.open(t, f.deps(), opts)
	assert.ErrorIs(t, c.Open(context.Background()), ErrAlreadyOpen)

	inserts := 0
	for _, ev := range f.bus.Published() {
		if ev.Type == model.EventInsert {
			inserts++
		}
	}
	assert.Equal(t, 1, inserts)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, opts.InitialMessage, *msgs[0].Message.Content)
}

func TestBootstrapTimeoutLeavesControllerConnecting(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	release := make(chan struct{})
	deps.Directory = blockingDirectory{Directory: f.svc, release: release}

	opts := f.options("u1", "u2")
	opts.BootstrapTimeout = 20 * time.Millisecond
	c, err := New(deps, opts)
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	require.NoError(t, c.Open(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateConnecting, c.State())

	_, err = c.SendText(context.Background(), "too early")
	assert.ErrorIs(t, err, ErrNotReady)

	close(release)
	require.Eventually(t, func() bool { return c.State() == StateReady }, 2*time.Second, 5*time.Millisecond)
}

func TestBootstrapFailureIsReported(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.Directory = failingDirectory{}

	c, err := New(deps, f.options("u1", "u2"))
	require.NoError(t, err)
	defer c.Close()

	require.Error(t, c.Open(context.Background()))
	assert.Equal(t, StateFailed, c.State())
	assert.Error(t, c.Err())
}

func TestOnlyOneRecordingAtATime(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()

	require.NoError(t, c.StartRecording(ctx))
	assert.True(t, c.Recording())
	assert.ErrorIs(t, c.StartRecording(ctx), ErrRecordingActive)

	clip, err := c.StopRecording(ctx)
	require.NoError(t, err)
	assert.False(t, c.Recording())
	_, err = c.StopRecording(ctx)
	assert.ErrorIs(t, err, ErrNotRecording)

	id, err := c.SendVoice(ctx, clip)
	require.NoError(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	m := msgs[0].Message
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, model.TypeVoice, m.MessageType)
	require.NotNil(t, m.Duration)
	assert.Equal(t, 3, *m.Duration)
	require.NotNil(t, m.MediaURI)
	assert.Equal(t, "https://cdn.example/voiceMessages/note.m4a", *m.MediaURI)

	require.NoError(t, c.StartRecording(ctx))
	require.NoError(t, c.CancelRecording())
	assert.Equal(t, 2, f.recorder.starts)
	assert.Equal(t, 1, f.recorder.cancelled)
}

func TestMediaUploadFailureMarksEntryAndRetryUploadsAgain(t *testing.T) {
	f := newFixture(t)
	f.uploader.fail = errors.New("upload timed out")
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()

	assert.ErrorIs(t, c.SelectMedia(Attachment{Type: model.TypeText}), ErrInvalidAttachment)
	require.NoError(t, c.SelectMedia(BytesAttachment("bike.jpg", "image/jpeg", model.TypeImage, []byte("jpeg"))))
	require.NoError(t, c.SelectMedia(BytesAttachment("lamp.jpg", "image/jpeg", model.TypeImage, []byte("jpeg"))))
	pending, ok := c.PendingMedia()
	require.True(t, ok)
	assert.Equal(t, "lamp.jpg", pending.Filename)

	id, err := c.SendSelectedMedia(ctx, "still available?")
	require.Error(t, err)
	_, ok = c.PendingMedia()
	assert.False(t, ok)

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EntryFailed, msgs[0].State)
	assert.Equal(t, media.StatusFailed, msgs[0].Upload)

	f.uploader.mu.Lock()
	f.uploader.fail = nil
	f.uploader.mu.Unlock()

	serverID, err := c.Retry(ctx, id)
	require.NoError(t, err)
	msgs = c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serverID, msgs[0].ID)
	assert.Equal(t, "https://cdn.example/chatImages/lamp.jpg", *msgs[0].Message.MediaURI)
	assert.Equal(t, "still available?", *msgs[0].Message.Content)
	assert.Equal(t, 2, f.uploader.calls)

	_, err = c.SendSelectedMedia(ctx, "")
	assert.ErrorIs(t, err, ErrNoMediaSelected)
}

func TestCounterpartPresenceHonoursStaleness(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	now := f.clock.Now()
	deps.Presence = staticPresence{p: model.Presence{UserID: "u2", IsOnline: true, LastSeen: now, UpdatedAt: now}}
	c := f.open(t, deps, f.options("u1", "u2"))

	assert.True(t, c.CounterpartOnline())
	f.clock.Advance(90 * time.Second)
	assert.True(t, c.CounterpartOnline())
	f.clock.Advance(60 * time.Second)
	assert.False(t, c.CounterpartOnline())

	beat := f.clock.Now()
	f.realtime.pushPresence(model.Presence{UserID: "u2", IsOnline: true, LastSeen: beat, UpdatedAt: beat})
	assert.True(t, c.CounterpartOnline())

	// An out-of-order older row does not overwrite the newer one.
	f.realtime.pushPresence(model.Presence{UserID: "u2", IsOnline: false, LastSeen: now, UpdatedAt: now})
	assert.True(t, c.CounterpartOnline())

	f.realtime.pushPresence(model.Presence{UserID: "u2", IsOnline: false, LastSeen: beat, UpdatedAt: beat.Add(time.Second)})
	assert.False(t, c.CounterpartOnline())
}

func TestDeleteOnlyOwnMessages(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()

	mine, err := c.SendText(ctx, "typo")
	require.NoError(t, err)
	f.advance()
	theirs, err := f.svc.Send(ctx, model.SendRequest{RoomID: c.Room().ID, SenderID: "u2", Type: model.TypeText, Content: model.StringPtr("ok")})
	require.NoError(t, err)

	assert.ErrorIs(t, c.Delete(ctx, ServerID(theirs.ID)), ErrNotOwnMessage)
	require.NoError(t, c.Delete(ctx, mine))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, ServerID(theirs.ID), msgs[0].ID)
	assert.True(t, msgs[1].Message.IsDeleted)
}

func TestReadEventsProjectReceipts(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()

	_, err := c.SendText(ctx, "deal?")
	require.NoError(t, err)
	assert.False(t, c.Messages()[0].Message.ReadByAll)

	require.NoError(t, f.svc.MarkRead(ctx, c.Room().ID, "u2"))

	m := c.Messages()[0].Message
	assert.True(t, m.ReadByAll)
	require.Len(t, m.ReadBy, 1)
	assert.Equal(t, "u2", m.ReadBy[0].UserID)

	require.NoError(t, c.MarkRead(ctx))
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()
	roomID := c.Room().ID

	require.NoError(t, c.StartRecording(ctx))
	clip := BytesAttachment("v.m4a", "audio/mp4", model.TypeVoice, []byte("aac"))
	voice, err := c.SendVoice(ctx, clip)
	require.NoError(t, err)
	require.NoError(t, c.PlayVoice(ctx, voice))
	assert.Equal(t, voice, c.Playing())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.Zero(t, f.bus.Subscribers(roomID))
	assert.Zero(t, f.realtime.presenceSubs())
	assert.Equal(t, 1, f.recorder.cancelled)
	assert.Equal(t, 1, f.player.stopped)

	_, err = c.SendText(ctx, "after close")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.StartRecording(ctx), ErrClosed)
	assert.ErrorIs(t, c.Open(ctx), ErrClosed)
}

func TestReconnectRecoversMissedMessages(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	dead := &busRealtime{bus: events.NewMemoryBus()}
	deps.Realtime = dead
	c := f.open(t, deps, f.options("u1", "u2"))
	ctx := context.Background()
	roomID := c.Room().ID

	_, err := f.svc.Send(ctx, model.SendRequest{RoomID: roomID, SenderID: "u2", Type: model.TypeText, Content: model.StringPtr("missed")})
	require.NoError(t, err)
	assert.Empty(t, c.Messages())

	require.NoError(t, c.Reconnect(ctx, f.realtime))
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "missed", *msgs[0].Message.Content)
	assert.Zero(t, dead.bus.Subscribers(roomID))
	assert.Zero(t, dead.presenceSubs())
	assert.Equal(t, 1, f.bus.Subscribers(roomID))

	f.advance()
	_, err = f.svc.Send(ctx, model.SendRequest{RoomID: roomID, SenderID: "u2", Type: model.TypeText, Content: model.StringPtr("live")})
	require.NoError(t, err)
	msgs = c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "live", *msgs[0].Message.Content)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Reconnect(ctx, f.realtime), ErrClosed)
}

func TestPlayVoiceSwitchesTracks(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, f.deps(), f.options("u1", "u2"))
	ctx := context.Background()

	a, err := c.SendVoice(ctx, BytesAttachment("a.m4a", "audio/mp4", model.TypeVoice, []byte("a")))
	require.NoError(t, err)
	f.advance()
	b, err := c.SendVoice(ctx, BytesAttachment("b.m4a", "audio/mp4", model.TypeVoice, []byte("b")))
	require.NoError(t, err)
	txt, err := c.SendText(ctx, "not audio")
	require.NoError(t, err)

	require.NoError(t, c.PlayVoice(ctx, a))
	require.NoError(t, c.PlayVoice(ctx, b))
	assert.ErrorIs(t, c.PlayVoice(ctx, txt), ErrNotPlayable)

	assert.Equal(t, b, c.Playing())
	assert.Equal(t, 1, f.player.stopped)
	require.NoError(t, c.StopPlayback())
	assert.True(t, c.Playing().IsZero())
}
