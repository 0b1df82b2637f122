package main

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/chat"
	"github.com/rindah89/barter/pkg/metrics"
	"github.com/rindah89/barter/pkg/model"
)

const presenceWriteTimeout = 3 * time.Second

// RoomLookup resolves rooms for subscription checks. chat.Repository
// satisfies it.
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*model.ChatRoom, error)
}

// PresenceWriter records connection-driven presence.
type PresenceWriter interface {
	Heartbeat(ctx context.Context, userID string) (model.Presence, error)
	SetOffline(ctx context.Context, userID string) error
}

// Hub tracks websocket clients and the topics they follow, and fans room and
// presence events out to them.
type Hub struct {
	topics      map[string]map[*Client]bool // topic -> clients
	userClients map[string]map[*Client]bool // user_id -> clients
	register    chan *Client
	unregister  chan *Client
	done        chan struct{}
	mu          sync.RWMutex
	rooms       RoomLookup
	presence    PresenceWriter
	log         zerolog.Logger
}

func NewHub(rooms RoomLookup, presence PresenceWriter, logger zerolog.Logger) *Hub {
	return &Hub{
		topics:      make(map[string]map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		rooms:       rooms,
		presence:    presence,
		log:         logger.With().Str("component", "hub").Logger(),
	}
}

// Run processes connects and disconnects until ctx is done. A user's first
// connection marks them online and their last one marks them offline.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			first := len(h.userClients[client.UserID]) == 0
			if h.userClients[client.UserID] == nil {
				h.userClients[client.UserID] = make(map[*Client]bool)
			}
			h.userClients[client.UserID][client] = true
			h.mu.Unlock()

			metrics.WebsocketConnections.Inc()
			h.log.Info().Str("user_id", client.UserID).Msg("client registered")
			if first {
				h.touch(client.UserID)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			clients, ok := h.userClients[client.UserID]
			if !ok || !clients[client] {
				h.mu.Unlock()
				continue
			}
			delete(clients, client)
			last := len(clients) == 0
			if last {
				delete(h.userClients, client.UserID)
			}
			for topic := range client.topics {
				h.removeLocked(topic, client)
			}
			close(client.send)
			h.mu.Unlock()

			metrics.WebsocketConnections.Dec()
			h.log.Info().Str("user_id", client.UserID).Msg("client unregistered")
			if last {
				h.offline(client.UserID)
			}
		}
	}
}

func (h *Hub) touch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if _, err := h.presence.Heartbeat(ctx, userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user online")
	}
}

func (h *Hub) offline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
	defer cancel()
	if err := h.presence.SetOffline(ctx, userID); err != nil {
		h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to mark user offline")
	}
}

// Subscribe adds client to topic. Room topics are limited to the room's
// participants; presence topics are open to any authenticated user.
func (h *Hub) Subscribe(ctx context.Context, client *Client, topic string) error {
	kind, id, ok := model.ParseTopic(topic)
	if !ok {
		return errUnknownTopic
	}
	if kind == "room" {
		room, err := h.rooms.GetRoom(ctx, id)
		if err != nil {
			return err
		}
		if !room.HasParticipant(client.UserID) {
			return chat.ErrNotParticipant
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
	client.topics[topic] = true
	return nil
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, client)
	delete(client.topics, topic)
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers returns the number of clients following topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// PublishMessageEvent forwards a room event to the room's subscribers.
func (h *Hub) PublishMessageEvent(ev model.MessageEvent) {
	h.broadcast(model.Frame{Topic: model.RoomTopic(ev.RoomID), MessageEvent: &ev}, "room")
}

// PublishPresence forwards a presence change to the user's watchers.
func (h *Hub) PublishPresence(p model.Presence) {
	h.broadcast(model.Frame{Topic: model.PresenceTopic(p.UserID), Presence: &p}, "presence")
}

func (h *Hub) broadcast(f model.Frame, kind string) {
	payload, err := json.Marshal(f)
	if err != nil {
		h.log.Error().Err(err).Str("topic", f.Topic).Msg("failed to marshal frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[f.Topic] {
		select {
		case client.send <- payload:
			metrics.RealtimeEventsFanout.WithLabelValues(kind).Inc()
		default:
			// Slow consumer. Dropping the connection makes readPump unregister it.
			h.log.Warn().Str("user_id", client.UserID).Msg("send buffer full, closing connection")
			client.conn.Close()
		}
	}
}
