package chatclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/model"
	"github.com/rindah89/barter/pkg/session"
)

const writeWait = 10 * time.Second

// Realtime is a websocket connection to the gateway multiplexing room and
// presence topics.
type Realtime struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int
	rooms    map[string]map[int]func(model.MessageEvent)
	presence map[string]map[int]func(model.Presence)
	done     chan struct{}
	closeErr error
	once     sync.Once
}

var _ session.Realtime = (*Realtime)(nil)

// DialRealtime connects to the gateway's /ws endpoint. gatewayURL is the
// ws:// or wss:// base.
func DialRealtime(ctx context.Context, gatewayURL, token string, logger zerolog.Logger) (*Realtime, error) {
	u, err := url.Parse(strings.TrimRight(gatewayURL, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}

	r := &Realtime{
		conn:     conn,
		log:      logger.With().Str("component", "realtime").Logger(),
		rooms:    make(map[string]map[int]func(model.MessageEvent)),
		presence: make(map[string]map[int]func(model.Presence)),
		done:     make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Realtime) SubscribeRoom(_ context.Context, roomID string, fn func(model.MessageEvent)) (session.Subscription, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	first := len(r.rooms[roomID]) == 0
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[int]func(model.MessageEvent))
	}
	r.rooms[roomID][id] = fn
	r.mu.Unlock()

	topic := model.RoomTopic(roomID)
	if first {
		if err := r.send(model.Frame{Op: model.OpSubscribe, Topic: topic}); err != nil {
			r.dropRoom(roomID, id)
			return nil, err
		}
	}
	return &subscription{close: func() error {
		if r.dropRoom(roomID, id) {
			return r.send(model.Frame{Op: model.OpUnsubscribe, Topic: topic})
		}
		return nil
	}}, nil
}

func (r *Realtime) SubscribePresence(_ context.Context, userID string, fn func(model.Presence)) (session.Subscription, error) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	first := len(r.presence[userID]) == 0
	if r.presence[userID] == nil {
		r.presence[userID] = make(map[int]func(model.Presence))
	}
	r.presence[userID][id] = fn
	r.mu.Unlock()

	topic := model.PresenceTopic(userID)
	if first {
		if err := r.send(model.Frame{Op: model.OpSubscribe, Topic: topic}); err != nil {
			r.dropPresence(userID, id)
			return nil, err
		}
	}
	return &subscription{close: func() error {
		if r.dropPresence(userID, id) {
			return r.send(model.Frame{Op: model.OpUnsubscribe, Topic: topic})
		}
		return nil
	}}, nil
}

// dropRoom removes one handler and reports whether it was the topic's last.
func (r *Realtime) dropRoom(roomID string, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := hs[id]; !ok {
		return false
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(r.rooms, roomID)
		return true
	}
	return false
}

func (r *Realtime) dropPresence(userID string, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.presence[userID]
	if !ok {
		return false
	}
	if _, ok := hs[id]; !ok {
		return false
	}
	delete(hs, id)
	if len(hs) == 0 {
		delete(r.presence, userID)
		return true
	}
	return false
}

func (r *Realtime) send(f model.Frame) error {
	select {
	case <-r.done:
		// Connection gone; nothing to tell the server.
		return nil
	default:
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(f)
}

func (r *Realtime) readLoop() {
	defer close(r.done)
	for {
		var f model.Frame
		if err := r.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn().Err(err).Msg("realtime connection lost")
			}
			return
		}
		r.dispatch(f)
	}
}

func (r *Realtime) dispatch(f model.Frame) {
	if f.Error != "" {
		r.log.Warn().Str("topic", f.Topic).Str("error", f.Error).Msg("gateway rejected frame")
		return
	}
	kind, id, ok := model.ParseTopic(f.Topic)
	if !ok {
		return
	}

	r.mu.Lock()
	var roomFns []func(model.MessageEvent)
	var presenceFns []func(model.Presence)
	switch {
	case kind == "room" && f.MessageEvent != nil:
		for _, fn := range r.rooms[id] {
			roomFns = append(roomFns, fn)
		}
	case kind == "presence" && f.Presence != nil:
		for _, fn := range r.presence[id] {
			presenceFns = append(presenceFns, fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range roomFns {
		fn(*f.MessageEvent)
	}
	for _, fn := range presenceFns {
		fn(*f.Presence)
	}
}

// Done is closed when the connection drops.
func (r *Realtime) Done() <-chan struct{} { return r.done }

func (r *Realtime) Close() error {
	r.once.Do(func() {
		r.writeMu.Lock()
		r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		r.writeMu.Unlock()
		r.closeErr = r.conn.Close()
		<-r.done
	})
	return r.closeErr
}

type subscription struct {
	once  sync.Once
	close func() error
	err   error
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.err = s.close() })
	return s.err
}
