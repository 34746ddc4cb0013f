package chat

import (
	"context"
	"fmt"
	"log/slog"

	"petchat/internal/app/dto"
	domainchat "petchat/internal/domain/chat"
)

// Broadcaster pushes events to live subscribers of a room key and to every
// connection of one user.
type Broadcaster interface {
	BroadcastToRoom(roomKey, event string, payload any)
	SendToUser(userID, event string, payload any)
}

// Notifier keeps the recipient's notification inbox in step with chat traffic.
type Notifier interface {
	NotifyMessage(ctx context.Context, msg domainchat.Message) error
	MarkRoomRead(ctx context.Context, userID, roomID string) (int, error)
}

// Delivery decorates a Messaging with the side effects that follow a durable
// write: the canonical live broadcast and recipient notifications.
type Delivery struct {
	Messaging
	Broadcaster Broadcaster
	Notifier    Notifier
	Logger      *slog.Logger
}

func (d Delivery) SendMessage(ctx context.Context, params SendParams) (domainchat.Message, error) {
	msg, err := d.Messaging.SendMessage(ctx, params)
	if err != nil {
		return domainchat.Message{}, err
	}
	if d.Broadcaster != nil {
		// the recipient also gets it on their own connections so rooms
		// they have not opened still update; clients dedupe by id
		payload := dto.MessageFromDomain(msg)
		d.Broadcaster.BroadcastToRoom(domainchat.RoomKey(msg.RoomID), dto.EventMessage, payload)
		if msg.RecipientID != "" {
			d.Broadcaster.SendToUser(msg.RecipientID, dto.EventMessage, payload)
		}
	}
	if d.Notifier != nil {
		if err := d.Notifier.NotifyMessage(ctx, msg); err != nil && d.Logger != nil {
			d.Logger.Warn("message notification failed", "message_id", msg.ID, "room_id", msg.RoomID, "error", err)
		}
	}
	return msg, nil
}

func (d Delivery) MarkRead(ctx context.Context, userID, roomID string) (int, error) {
	n, err := d.Messaging.MarkRead(ctx, userID, roomID)
	if err != nil {
		return 0, err
	}
	if d.Notifier != nil {
		// the unread badge is computed from notifications, so this failure
		// is the caller's to retry
		if _, err := d.Notifier.MarkRoomRead(ctx, userID, roomID); err != nil {
			return n, fmt.Errorf("mark room notifications read: %w", err)
		}
	}
	return n, nil
}

var _ Messaging = Delivery{}
