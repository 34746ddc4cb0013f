package store

import (
	"context"
	"io"

	"petchat/internal/app/dto"
)

// Adapter is the request/response path to the durable store. Implementations
// never retry; failures are *Error.
type Adapter interface {
	CreateOrGetRoom(ctx context.Context, listingID, interestedUserID string) (dto.ChatRoom, error)
	ListRooms(ctx context.Context, userID string) ([]dto.ChatRoom, error)
	ListMessages(ctx context.Context, roomID, userID string) ([]dto.ChatMessage, error)
	MarkRead(ctx context.Context, roomID, userID string) (int, error)
	SendMessage(ctx context.Context, roomID string, req dto.SendMessageRequest) (dto.ChatMessage, error)
	DeactivateRoom(ctx context.Context, roomID string) error
	UploadAttachment(ctx context.Context, roomID string, file Attachment) (dto.ChatMessage, error)

	UnreadCount(ctx context.Context, userID string) (int, error)
	ListNotifications(ctx context.Context, userID string) ([]dto.Notification, error)
	ListUnreadNotifications(ctx context.Context, userID string) ([]dto.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, id, userID string) error
}

// Attachment is a file sent as an IMAGE or FILE message.
type Attachment struct {
	Filename      string
	ContentType   string
	Body          io.Reader
	CorrelationID string
}
