package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainnotification "petchat/internal/domain/notification"
)

type NotificationRepository struct {
	mu     sync.RWMutex
	items  map[string]domainnotification.Notification
	dedupe map[string]string
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		items:  make(map[string]domainnotification.Notification),
		dedupe: make(map[string]string),
	}
}

func (r *NotificationRepository) Insert(ctx context.Context, n domainnotification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.DedupeKey != "" {
		key := n.UserID + "|" + n.DedupeKey
		if _, ok := r.dedupe[key]; ok {
			return domainnotification.ErrDuplicate
		}
		r.dedupe[key] = n.ID
	}
	r.items[n.ID] = n
	return nil
}

func (r *NotificationRepository) ByID(ctx context.Context, id string) (domainnotification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok {
		return domainnotification.Notification{}, domainnotification.ErrNotFound
	}
	return n, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domainnotification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainnotification.Notification, 0)
	for _, n := range r.items {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return domainnotification.ErrNotFound
	}
	n.MarkRead(at)
	r.items[id] = n
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	return r.markWhere(at, func(n domainnotification.Notification) bool { return n.UserID == userID })
}

func (r *NotificationRepository) MarkRoomRead(ctx context.Context, userID, roomID string, at time.Time) (int, error) {
	return r.markWhere(at, func(n domainnotification.Notification) bool {
		return n.UserID == userID && n.RoomID == roomID && n.Type == domainnotification.TypeNewMessage
	})
}

func (r *NotificationRepository) markWhere(at time.Time, match func(domainnotification.Notification) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	marked := 0
	for id, n := range r.items {
		if !match(n) {
			continue
		}
		if n.MarkRead(at) {
			r.items[id] = n
			marked++
		}
	}
	return marked, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domainnotification.ErrNotFound
	}
	// the dedupe entry stays so a redelivered message does not resurrect it
	delete(r.items, id)
	return nil
}
