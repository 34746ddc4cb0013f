// Package unread keeps the unread notification badge in step with the
// store while applying local reads immediately.
package unread

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"petchat/internal/app/dto"
	"petchat/internal/client/store"
)

const DefaultInterval = 30 * time.Second

// Reconciler holds the badge count. It starts unknown; the first successful
// poll makes it known. Local mutations apply immediately and a poll issued
// before the latest local mutation is discarded.
type Reconciler struct {
	store    store.Adapter
	userID   string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	count     int
	known     bool
	version   uint64
	listeners map[int]func(int)
	nextID    int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(adapter store.Adapter, userID string, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		store:     adapter,
		userID:    userID,
		interval:  interval,
		logger:    logger,
		listeners: make(map[int]func(int)),
	}
}

// Count returns the current count and whether it is known.
func (r *Reconciler) Count() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, r.known
}

// Subscribe registers fn for count changes and returns its cancel func.
func (r *Reconciler) Subscribe(fn func(int)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Refresh polls the store once. A failed poll keeps the last count.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	issued := r.version
	r.mu.Unlock()

	n, err := r.store.UnreadCount(ctx, r.userID)
	if err != nil {
		r.logger.Warn("unread poll failed", "user_id", r.userID, "error", err)
		return fmt.Errorf("unread: poll: %w", err)
	}

	r.mu.Lock()
	if r.version != issued {
		r.mu.Unlock()
		r.logger.Debug("stale unread poll discarded", "count", n)
		return nil
	}
	fns := r.set(n)
	r.mu.Unlock()
	notify(fns, n)
	return nil
}

// set stores n under r.mu and returns the listeners to notify, none when
// the count did not change.
func (r *Reconciler) set(n int) []func(int) {
	if r.known && r.count == n {
		return nil
	}
	r.count, r.known = n, true
	fns := make([]func(int), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(int), n int) {
	for _, fn := range fns {
		fn(n)
	}
}

// OnLocalRead lowers the count by n, floored at zero. While the count is
// unknown there is nothing to lower and an in-flight poll still applies.
func (r *Reconciler) OnLocalRead(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	if !r.known {
		r.mu.Unlock()
		return
	}
	r.version++
	next := max(r.count-n, 0)
	fns := r.set(next)
	r.mu.Unlock()
	notify(fns, next)
}

// OnLocalDelete accounts for an unread notification removed locally.
func (r *Reconciler) OnLocalDelete() { r.OnLocalRead(1) }

// Start polls now and then every interval until Stop or ctx ends. A second
// Start while running is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			_ = r.Refresh(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels polling and waits for the loop to exit. Safe to call
// repeatedly.
func (r *Reconciler) Stop() {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Notifications lists the user's notifications, unread ones only when
// unreadOnly is set.
func (r *Reconciler) Notifications(ctx context.Context, unreadOnly bool) ([]dto.Notification, error) {
	var (
		list []dto.Notification
		err  error
	)
	if unreadOnly {
		list, err = r.store.ListUnreadNotifications(ctx, r.userID)
	} else {
		list, err = r.store.ListNotifications(ctx, r.userID)
	}
	if err != nil {
		return nil, fmt.Errorf("unread: list notifications: %w", err)
	}
	return list, nil
}

// MarkRead marks one notification read and lowers the count.
func (r *Reconciler) MarkRead(ctx context.Context, id string) error {
	if err := r.store.MarkNotificationRead(ctx, id, r.userID); err != nil {
		return fmt.Errorf("unread: mark read: %w", err)
	}
	r.OnLocalRead(1)
	return nil
}

func (r *Reconciler) MarkAllRead(ctx context.Context) error {
	n, err := r.store.MarkAllNotificationsRead(ctx, r.userID)
	if err != nil {
		return fmt.Errorf("unread: mark all read: %w", err)
	}
	r.OnLocalRead(n)
	return nil
}

// Delete removes a notification; wasUnread lowers the count.
func (r *Reconciler) Delete(ctx context.Context, id string, wasUnread bool) error {
	if err := r.store.DeleteNotification(ctx, id, r.userID); err != nil {
		return fmt.Errorf("unread: delete: %w", err)
	}
	if wasUnread {
		r.OnLocalDelete()
	}
	return nil
}
