// Package rooms keeps the signed-in user's list of conversations.
package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"petchat/internal/app/dto"
	"petchat/internal/client/store"
)

type Room = dto.ChatRoom

// Directory caches the rooms returned by the store and tracks the selected
// one. Store failures are returned wrapped; errors.As recovers *store.Error.
type Directory struct {
	store  store.Adapter
	logger *slog.Logger

	mu       sync.Mutex
	rooms    []Room
	selected string
	seen     map[string]map[string]struct{}
}

func New(adapter store.Adapter, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{store: adapter, logger: logger, seen: make(map[string]map[string]struct{})}
}

// Refresh replaces the cached list with the store's, in the store's order.
func (d *Directory) Refresh(ctx context.Context, userID string) ([]Room, error) {
	list, err := d.store.ListRooms(ctx, userID)
	if err != nil {
		d.logger.Warn("room refresh failed", "user_id", userID, "error", err, "retryable", store.IsRetryable(err))
		return nil, fmt.Errorf("rooms: refresh: %w", err)
	}
	d.mu.Lock()
	d.rooms = append([]Room(nil), list...)
	d.mu.Unlock()
	return list, nil
}

// CreateOrGet resolves the room for a listing and an interested user and
// upserts it locally. Repeated calls yield the same room.
func (d *Directory) CreateOrGet(ctx context.Context, listingID, counterpartyID string) (Room, error) {
	room, err := d.store.CreateOrGetRoom(ctx, listingID, counterpartyID)
	if err != nil {
		d.logger.Warn("room create failed", "listing_id", listingID, "error", err)
		return Room{}, fmt.Errorf("rooms: create or get: %w", err)
	}
	d.mu.Lock()
	d.upsert(room)
	d.mu.Unlock()
	return room, nil
}

func (d *Directory) upsert(room Room) {
	for i := range d.rooms {
		if d.rooms[i].ID == room.ID {
			d.rooms[i] = room
			return
		}
	}
	d.rooms = append(d.rooms, room)
}

// Select marks roomID as the open room. It reports false for unknown rooms.
func (d *Directory) Select(roomID string) (Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(roomID)
	if i < 0 {
		return Room{}, false
	}
	d.selected = roomID
	return d.rooms[i], true
}

func (d *Directory) Selected() (Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(d.selected)
	if i < 0 {
		return Room{}, false
	}
	return d.rooms[i], true
}

func (d *Directory) Rooms() []Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Room(nil), d.rooms...)
}

// MarkRoomRead zeroes the local unread count and returns the previous value.
func (d *Directory) MarkRoomRead(roomID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(roomID)
	if i < 0 {
		return 0
	}
	prev := d.rooms[i].UnreadCount
	d.rooms[i].UnreadCount = 0
	return prev
}

// ApplyMessage folds a live message into the room preview. Canonical
// messages from the counterparty bump the unread count unless the room is
// open. It reports whether the room is known.
func (d *Directory) ApplyMessage(msg dto.ChatMessage, userID string, open bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.index(msg.ChatRoomID)
	if i < 0 {
		return false
	}
	if !msg.Advisory && msg.ID != "" {
		ids := d.seen[msg.ChatRoomID]
		if ids == nil {
			ids = make(map[string]struct{})
			d.seen[msg.ChatRoomID] = ids
		}
		if _, dup := ids[msg.ID]; dup {
			return true
		}
		ids[msg.ID] = struct{}{}
	}
	room := &d.rooms[i]
	room.LastMessage = msg.Content
	if !msg.Timestamp.IsZero() {
		at := msg.Timestamp
		room.LastMessageTime = &at
	}
	if !msg.Advisory && !open && msg.SenderID != userID {
		room.UnreadCount++
	}
	return true
}

// Deactivate closes a room on the store and flags it inactive locally.
func (d *Directory) Deactivate(ctx context.Context, roomID string) error {
	if err := d.store.DeactivateRoom(ctx, roomID); err != nil {
		return fmt.Errorf("rooms: deactivate: %w", err)
	}
	d.mu.Lock()
	if i := d.index(roomID); i >= 0 {
		d.rooms[i].IsActive = false
	}
	d.mu.Unlock()
	return nil
}

func (d *Directory) index(roomID string) int {
	if roomID == "" {
		return -1
	}
	for i := range d.rooms {
		if d.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}
