package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"petchat/internal/app/dto"
	domainchat "petchat/internal/domain/chat"
)

// Client is one authenticated websocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(h *Hub, userID string, conn *websocket.Conn) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close detaches the client from the hub and closes the connection once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env dto.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.reply(dto.EventError, dto.LiveError{Message: "malformed frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("live read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		c.handle(env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(env dto.Envelope) {
	switch env.Event {
	case dto.EventJoinRoom:
		c.join(env)
	case dto.EventLeaveRoom:
		var key string
		if err := env.Decode(&key); err != nil {
			c.reply(dto.EventError, dto.LiveError{Message: err.Error()})
			return
		}
		c.hub.Leave(key, c)
	case dto.EventChatMessage:
		c.relay(env)
	default:
		c.reply(dto.EventError, dto.LiveError{Message: "unknown event " + env.Event})
	}
}

func (c *Client) join(env dto.Envelope) {
	var key string
	if err := env.Decode(&key); err != nil {
		c.reply(dto.EventError, dto.LiveError{Message: err.Error()})
		return
	}
	roomID, ok := domainchat.RoomIDFromKey(key)
	if !ok {
		c.reply(dto.EventError, dto.LiveError{Message: "invalid room key"})
		return
	}
	if c.hub.rooms != nil {
		ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
		defer cancel()
		if _, err := c.hub.rooms.GetRoom(ctx, c.userID, roomID); err != nil {
			c.hub.logger.Info("live join refused", "user_id", c.userID, "room_id", roomID, "error", err)
			c.reply(dto.EventError, dto.LiveError{Message: "cannot join " + key})
			return
		}
	}
	c.hub.Join(key, c)
}

// relay forwards an advisory preview to the other members of the room. It is
// never persisted.
func (c *Client) relay(env dto.Envelope) {
	var in dto.LiveChatMessage
	if err := env.Decode(&in); err != nil {
		c.reply(dto.EventError, dto.LiveError{Message: err.Error()})
		return
	}
	content := strings.TrimSpace(in.Content)
	key := domainchat.RoomKey(in.ChatRoomID)
	if content == "" || in.ChatRoomID == "" || !c.hub.isMember(key, c) {
		c.reply(dto.EventError, dto.LiveError{Message: "chat_message requires a joined room and content"})
		return
	}
	c.hub.fanOut(key, dto.EventChatMessage, dto.ChatMessage{
		CorrelationID:     in.CorrelationID,
		ChatRoomID:        in.ChatRoomID,
		Content:           content,
		SenderID:          c.userID,
		AdoptionListingID: in.AdoptionListingID,
		Type:              string(domainchat.KindText),
		Status:            string(domainchat.StatusSent),
		Timestamp:         time.Now().UTC(),
		Advisory:          true,
	}, c)
}

func (c *Client) reply(event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	if !c.enqueue(frame) {
		go c.Close()
	}
}
