package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rindah89/barter/pkg/apperr"
	"github.com/rindah89/barter/pkg/auth"
	"github.com/rindah89/barter/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	subscribeTimeout = 5 * time.Second
)

var errUnknownTopic = apperr.InvalidArg("unknown topic")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	UserID string

	// Topics this client follows. Guarded by hub.mu.
	topics map[string]bool

	log zerolog.Logger
}

// readPump handles subscribe and unsubscribe frames from the peer. Every pong
// refreshes the user's presence so an open socket keeps them online.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.touch(c.UserID)
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected close")
			}
			break
		}

		var f model.Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.reply(model.Frame{Error: "malformed frame"})
			continue
		}

		switch f.Op {
		case model.OpSubscribe:
			ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
			err := c.hub.Subscribe(ctx, c, f.Topic)
			cancel()
			if err != nil {
				c.log.Info().Err(err).Str("topic", f.Topic).Msg("subscribe rejected")
				c.reply(model.Frame{Topic: f.Topic, Error: apperr.Message(err)})
			}
		case model.OpUnsubscribe:
			c.hub.Unsubscribe(c, f.Topic)
		default:
			c.reply(model.Frame{Topic: f.Topic, Error: "unknown op"})
		}
	}
}

func (c *Client) reply(f model.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// writePump pumps frames from the hub to the websocket connection, one
// frame per websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates the peer and attaches it to the hub. The token comes
// from the Authorization header or, for browser clients, the token query
// parameter.
func serveWs(hub *Hub, signer *auth.Signer, logger zerolog.Logger, w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := signer.ValidateToken(token)
	if err != nil {
		logger.Info().Err(err).Msg("rejected websocket token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: claims.UserID,
		topics: make(map[string]bool),
		log:    logger.With().Str("user_id", claims.UserID).Logger(),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
