package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/chatclient"
	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/presence"
	"github.com/rindah89/barter/pkg/snowflake"
)

type gatewayFixture struct {
	hub    *Hub
	store  *presence.Store
	signer *auth.Signer
	srv    *httptest.Server
	room   *model.ChatRoom
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	logger := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := presence.NewStore(rdb, logger)

	repo := chat.NewMemoryRepository()
	room := &model.ChatRoom{ID: "room-1", ParticipantIDs: []string{"alice", "bob"}, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	repo.InsertRoom(room)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(repo, store, logger)
	go hub.Run(ctx)

	signer := auth.NewSigner("test-secret", time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, signer, logger, w, r)
	}))
	t.Cleanup(srv.Close)

	return &gatewayFixture{hub: hub, store: store, signer: signer, srv: srv, room: room}
}

func (f *gatewayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *gatewayFixture) dial(t *testing.T, userID string) *chatclient.Realtime {
	t.Helper()
	token, err := f.signer.GenerateToken(userID)
	require.NoError(t, err)
	rt, err := chatclient.DialRealtime(context.Background(), f.wsURL(), token, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRoomEventsReachParticipants(t *testing.T) {
	f := newGatewayFixture(t)
	rt := f.dial(t, "alice")

	got := make(chan model.MessageEvent, 1)
	_, err := rt.SubscribeRoom(context.Background(), f.room.ID, func(ev model.MessageEvent) { got <- ev })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.hub.Subscribers(model.RoomTopic(f.room.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := &model.Message{ID: snowflake.ID(42), ChatRoomID: f.room.ID, SenderID: "bob", MessageType: model.TypeText, Content: model.StringPtr("hi")}
	f.hub.PublishMessageEvent(model.MessageEvent{Type: model.EventInsert, RoomID: f.room.ID, Message: msg})
	f.hub.PublishMessageEvent(model.MessageEvent{Type: model.EventInsert, RoomID: "other-room", Message: msg})

	select {
	case ev := <-got:
		assert.Equal(t, model.EventInsert, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, snowflake.ID(42), ev.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("room event not delivered")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected event for %s", ev.RoomID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNonParticipantCannotSubscribe(t *testing.T) {
	f := newGatewayFixture(t)
	token, err := f.signer.GenerateToken("mallory")
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	require.NoError(t, err)
	defer conn.Close()

	topic := model.RoomTopic(f.room.ID)
	require.NoError(t, conn.WriteJSON(model.Frame{Op: model.OpSubscribe, Topic: topic}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply model.Frame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, topic, reply.Topic)
	assert.NotEmpty(t, reply.Error)
	assert.Zero(t, f.hub.Subscribers(topic))
}

func TestMissingRoomIsRejected(t *testing.T) {
	f := newGatewayFixture(t)
	token, err := f.signer.GenerateToken("alice")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL()+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(model.Frame{Op: model.OpSubscribe, Topic: model.RoomTopic("nope")}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply model.Frame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.NotEmpty(t, reply.Error)
}

func TestConnectionDrivesPresence(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	rt := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		online, err := f.store.IsOnline(ctx, "alice")
		return err == nil && online
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.Close())

	require.Eventually(t, func() bool {
		p, err := f.store.Get(ctx, "alice")
		return err == nil && !p.IsOnline && !p.LastSeen.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceFanout(t *testing.T) {
	f := newGatewayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := f.store.SubscribeAll(ctx, f.hub.PublishPresence)
	require.NoError(t, err)
	defer sub.Close()

	rt := f.dial(t, "bob")
	got := make(chan model.Presence, 4)
	_, err = rt.SubscribePresence(ctx, "alice", func(p model.Presence) { got <- p })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.hub.Subscribers(model.PresenceTopic("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.store.Heartbeat(ctx, "alice")
	require.NoError(t, err)

	select {
	case p := <-got:
		assert.Equal(t, "alice", p.UserID)
		assert.True(t, p.IsOnline)
	case <-time.After(2 * time.Second):
		t.Fatal("presence change not delivered")
	}
}

func TestServeWsRequiresToken(t *testing.T) {
	f := newGatewayFixture(t)
	resp, err := http.Get(f.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(f.wsURL()+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
