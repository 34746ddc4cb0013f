// Package session binds the client components to one signed-in user for
// the lifetime of a view.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"petchat/internal/app/dto"
	"petchat/internal/client/live"
	"petchat/internal/client/rooms"
	"petchat/internal/client/store"
	"petchat/internal/client/stream"
	"petchat/internal/client/unread"
)

var (
	ErrUnknownRoom = errors.New("session: unknown room")
	ErrClosed      = errors.New("session: closed")
)

type Config struct {
	LiveURL      string
	Token        string
	UserID       string
	PollInterval time.Duration
}

// State is the connectivity of the live channel.
type State struct {
	Connected     bool
	LastError     string
	Subscriptions []string
}

// View owns the live connection, the room directory, the unread badge and
// at most one open message stream.
type View struct {
	Rooms  *rooms.Directory
	Unread *unread.Reconciler

	cfg     Config
	store   store.Adapter
	manager *live.Manager
	logger  *slog.Logger

	mu       sync.Mutex
	active   *stream.Stream
	closed   bool
	onChange func()

	closeOnce sync.Once
}

// Open connects the live channel and starts unread polling. It returns a
// usable View even when the live handshake fails; State reports the error.
func Open(ctx context.Context, cfg Config, adapter store.Adapter, dialer live.Dialer, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := &View{
		Rooms:  rooms.New(adapter, logger),
		Unread: unread.New(adapter, cfg.UserID, cfg.PollInterval, logger),
		cfg:    cfg,
		store:  adapter,
		logger: logger,
	}
	opts := []live.Option{live.WithLogger(logger)}
	if dialer != nil {
		opts = append(opts, live.WithDialer(dialer))
	}
	v.manager = live.Open(ctx, live.Config{URL: cfg.LiveURL, Token: cfg.Token}, v.handle, opts...)
	v.Unread.Start(ctx)
	return v
}

// OnChange registers fn to run after any live event changed view state.
func (v *View) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *View) handle(ev live.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	active, changed := v.active, v.onChange
	v.mu.Unlock()

	switch e := ev.(type) {
	case live.MessageReceived:
		open := active != nil && active.Room().ID == e.Message.ChatRoomID
		if active != nil {
			active.Deliver(e.Name, e.Message)
		}
		if e.Name == dto.EventMessage && !e.Message.Advisory {
			v.Rooms.ApplyMessage(e.Message, v.cfg.UserID, open)
		}
	case live.Disconnected:
		v.logger.Warn("live channel lost", "error", e.Err)
	case live.ConnectError:
		v.logger.Warn("live channel unavailable", "error", e.Err)
	}
	if changed != nil {
		changed()
	}
}

func (v *View) State() State {
	return State{
		Connected:     v.manager.Connected(),
		LastError:     v.manager.LastError(),
		Subscriptions: v.manager.Subscriptions(),
	}
}

// Active returns the open stream, or nil.
func (v *View) Active() *stream.Stream {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// OpenRoom switches to a room already in the directory.
func (v *View) OpenRoom(ctx context.Context, roomID string) (*stream.Stream, error) {
	room, ok := v.Rooms.Select(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}
	return v.switchTo(ctx, room)
}

// Contact opens the conversation between counterpartyID and the owner of
// listingID, creating it on first contact.
func (v *View) Contact(ctx context.Context, listingID, counterpartyID string) (*stream.Stream, error) {
	room, err := v.Rooms.CreateOrGet(ctx, listingID, counterpartyID)
	if err != nil {
		return nil, err
	}
	v.Rooms.Select(room.ID)
	return v.switchTo(ctx, room)
}

// switchTo closes the previous stream, subscribes the new one and loads its
// history. A mark-read failure still leaves the stream open; any other
// history failure closes it and leaves no room active.
func (v *View) switchTo(ctx context.Context, room rooms.Room) (*stream.Stream, error) {
	s := stream.New(v.store, v.manager, stream.Config{
		Room:   room,
		UserID: v.cfg.UserID,
		Logger: v.logger,
		OnRead: func(n int) {
			v.Rooms.MarkRoomRead(room.ID)
			v.Unread.OnLocalRead(n)
		},
	})

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrClosed
	}
	prev := v.active
	v.active = s
	v.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	if err := s.Subscribe(nil); err != nil {
		v.logger.Info("room opened without live updates", "room_id", room.ID, "error", err)
	}
	if _, err := s.LoadHistory(ctx); err != nil {
		if errors.Is(err, stream.ErrMarkReadFailed) {
			return s, err
		}
		v.mu.Lock()
		if v.active == s {
			v.active = nil
		}
		v.mu.Unlock()
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the stream, stops polling and closes the live connection.
func (v *View) Close() error {
	var err error
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		active := v.active
		v.active = nil
		v.mu.Unlock()
		if active != nil {
			active.Close()
		}
		v.Unread.Stop()
		err = v.manager.Close()
	})
	return err
}
