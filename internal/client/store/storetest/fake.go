// Package storetest provides an in-memory store.Adapter for tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"petchat/internal/app/dto"
	"petchat/internal/client/store"
)

// Fake is a scripted store.Adapter. Errors in Fail are returned (once per
// entry) by the operation of the same name; channels in Hold block that
// operation until closed.
type Fake struct {
	mu       sync.Mutex
	rooms    []dto.ChatRoom
	messages map[string][]dto.ChatMessage
	unread   int
	calls    map[string]int
	fail     map[string][]error
	hold     map[string]chan struct{}
	seq      int
	now      time.Time
}

func New() *Fake {
	return &Fake{
		messages: make(map[string][]dto.ChatMessage),
		calls:    make(map[string]int),
		fail:     make(map[string][]error),
		hold:     make(map[string]chan struct{}),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddRoom seeds a room.
func (f *Fake) AddRoom(r dto.ChatRoom) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, r)
}

// AddMessage seeds a stored message.
func (f *Fake) AddMessage(m dto.ChatMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ChatRoomID] = append(f.messages[m.ChatRoomID], m)
}

func (f *Fake) SetUnread(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread = n
}

// Fail queues err for the next call of op.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], err)
}

// Hold blocks op until release is called.
func (f *Fake) Hold(op string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.hold[op] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.hold, op)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Stored returns the stored messages of a room.
func (f *Fake) Stored(roomID string) []dto.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.ChatMessage(nil), f.messages[roomID]...)
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	hold := f.hold[op]
	var err error
	if q := f.fail[op]; len(q) > 0 {
		err, f.fail[op] = q[0], q[1:]
	}
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return &store.Error{Op: op, Kind: store.KindUnavailable, Err: ctx.Err()}
		}
	}
	return err
}

func (f *Fake) CreateOrGetRoom(ctx context.Context, listingID, interestedUserID string) (dto.ChatRoom, error) {
	if err := f.enter(ctx, "CreateOrGetRoom"); err != nil {
		return dto.ChatRoom{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.AdoptionListingID == listingID && r.InterestedUserID == interestedUserID {
			return r, nil
		}
	}
	f.seq++
	r := dto.ChatRoom{
		ID:                fmt.Sprintf("room-%d", f.seq),
		AdoptionListingID: listingID,
		InterestedUserID:  interestedUserID,
		CreatedAt:         f.now,
		IsActive:          true,
	}
	f.rooms = append(f.rooms, r)
	return r, nil
}

func (f *Fake) ListRooms(ctx context.Context, userID string) ([]dto.ChatRoom, error) {
	if err := f.enter(ctx, "ListRooms"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.ChatRoom
	for _, r := range f.rooms {
		if r.OwnerID == userID || r.InterestedUserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *Fake) ListMessages(ctx context.Context, roomID, userID string) ([]dto.ChatMessage, error) {
	if err := f.enter(ctx, "ListMessages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dto.ChatMessage(nil), f.messages[roomID]...), nil
}

func (f *Fake) MarkRead(ctx context.Context, roomID, userID string) (int, error) {
	if err := f.enter(ctx, "MarkRead"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for i, m := range f.messages[roomID] {
		if m.ReceiverID == userID && !m.IsRead {
			f.messages[roomID][i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *Fake) SendMessage(ctx context.Context, roomID string, req dto.SendMessageRequest) (dto.ChatMessage, error) {
	if err := f.enter(ctx, "SendMessage"); err != nil {
		return dto.ChatMessage{}, err
	}
	return f.save(roomID, req), nil
}

func (f *Fake) save(roomID string, req dto.SendMessageRequest) dto.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[roomID] {
		if req.CorrelationID != "" && m.CorrelationID == req.CorrelationID && m.SenderID == req.SenderID {
			return m
		}
	}
	var listingID string
	for _, r := range f.rooms {
		if r.ID == roomID {
			listingID = r.AdoptionListingID
		}
	}
	f.seq++
	kind := req.Type
	if kind == "" {
		kind = "TEXT"
	}
	m := dto.ChatMessage{
		ID:                fmt.Sprintf("msg-%d", f.seq),
		CorrelationID:     req.CorrelationID,
		ChatRoomID:        roomID,
		Content:           req.Content,
		SenderID:          req.SenderID,
		AdoptionListingID: listingID,
		Type:              kind,
		Status:            "SENT",
		Timestamp:         f.now.Add(time.Duration(f.seq) * time.Second),
	}
	f.messages[roomID] = append(f.messages[roomID], m)
	return m
}

func (f *Fake) DeactivateRoom(ctx context.Context, roomID string) error {
	if err := f.enter(ctx, "DeactivateRoom"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rooms {
		if r.ID == roomID {
			f.rooms[i].IsActive = false
		}
	}
	return nil
}

func (f *Fake) UploadAttachment(ctx context.Context, roomID string, file store.Attachment) (dto.ChatMessage, error) {
	if err := f.enter(ctx, "UploadAttachment"); err != nil {
		return dto.ChatMessage{}, err
	}
	return f.save(roomID, dto.SendMessageRequest{Content: "https://cdn.test/" + file.Filename, CorrelationID: file.CorrelationID, Type: "FILE"}), nil
}

func (f *Fake) UnreadCount(ctx context.Context, userID string) (int, error) {
	if err := f.enter(ctx, "UnreadCount"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func (f *Fake) ListNotifications(ctx context.Context, userID string) ([]dto.Notification, error) {
	return nil, f.enter(ctx, "ListNotifications")
}

func (f *Fake) ListUnreadNotifications(ctx context.Context, userID string) ([]dto.Notification, error) {
	return nil, f.enter(ctx, "ListUnreadNotifications")
}

func (f *Fake) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return f.enter(ctx, "MarkNotificationRead")
}

func (f *Fake) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	return 0, f.enter(ctx, "MarkAllNotificationsRead")
}

func (f *Fake) DeleteNotification(ctx context.Context, id, userID string) error {
	return f.enter(ctx, "DeleteNotification")
}

var _ store.Adapter = (*Fake)(nil)
