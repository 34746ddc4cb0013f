package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/dto"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
	authorizeWait  = 5 * time.Second
)

// RoomAuthorizer resolves a room for a user, failing when the user is not a
// participant.
type RoomAuthorizer interface {
	GetRoom(ctx context.Context, actorID, roomID string) (appchat.RoomSummary, error)
}

// Hub tracks live connections per user and subscriptions per room key, and
// fans events out to them.
type Hub struct {
	rooms  RoomAuthorizer
	logger *slog.Logger

	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
	users   map[string]map[*Client]struct{}
	clients map[*Client]struct{}
}

func NewHub(rooms RoomAuthorizer, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		rooms:   rooms,
		logger:  logger,
		members: make(map[string]map[*Client]struct{}),
		users:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

func (h *Hub) Join(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[key] == nil {
		h.members[key] = make(map[*Client]struct{})
	}
	h.members[key][c] = struct{}{}
}

func (h *Hub) Leave(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(key, c)
}

func (h *Hub) leaveLocked(key string, c *Client) {
	if m := h.members[key]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.members, key)
		}
	}
}

// unregister drops c from every room.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.members {
		h.leaveLocked(key, c)
	}
	if conns := h.users[c.userID]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
	delete(h.clients, c)
}

func (h *Hub) isMember(key string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.members[key][c]
	return ok
}

// Subscribers reports how many clients joined key.
func (h *Hub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members[key])
}

// Connections reports how many live connections userID has open.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// BroadcastToRoom sends event to every client subscribed to roomKey.
func (h *Hub) BroadcastToRoom(roomKey, event string, payload any) {
	h.fanOut(roomKey, event, payload, nil)
}

// SendToUser sends event to every connection of userID, joined or not.
func (h *Hub) SendToUser(userID, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("live frame encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	slow := enqueueAll(frame, h.users[userID], nil)
	h.mu.RUnlock()
	h.dropSlow(slow, "user:"+userID)
}

func (h *Hub) fanOut(roomKey, event string, payload any, except *Client) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("live frame encode failed", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	slow := enqueueAll(frame, h.members[roomKey], except)
	h.mu.RUnlock()
	h.dropSlow(slow, roomKey)
}

// enqueueAll offers frame to every client in set and returns those whose
// buffers were full. The caller holds h.mu.
func enqueueAll(frame []byte, set map[*Client]struct{}, except *Client) []*Client {
	var slow []*Client
	for c := range set {
		if c == except {
			continue
		}
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	return slow
}

func (h *Hub) dropSlow(slow []*Client, target string) {
	for _, c := range slow {
		h.logger.Warn("dropping slow live client", "user_id", c.userID, "target", target)
		c.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	env, err := dto.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

var _ appchat.Broadcaster = (*Hub)(nil)
