package chat

import (
	"context"
	"time"

	domainchat "petchat/internal/domain/chat"
)

// RoomSummary is a room plus the viewer's unread count.
type RoomSummary struct {
	domainchat.Room
	Unread int
}

type SendParams struct {
	RoomID        string
	SenderID      string
	Content       string
	CorrelationID string
	Kind          domainchat.MessageKind
}

// Messaging is the chat use-case surface shared by the in-process service and
// the RPC client.
type Messaging interface {
	CreateOrGetRoom(ctx context.Context, actorID, listingID, interestedUserID string) (RoomSummary, error)
	GetRoom(ctx context.Context, actorID, roomID string) (RoomSummary, error)
	ListRooms(ctx context.Context, userID string) ([]RoomSummary, error)
	ListMessages(ctx context.Context, userID, roomID string) ([]domainchat.Message, error)
	SendMessage(ctx context.Context, params SendParams) (domainchat.Message, error)
	MarkRead(ctx context.Context, userID, roomID string) (int, error)
	DeactivateRoom(ctx context.Context, userID, roomID string) error
}

// Repository persists rooms and messages.
type Repository interface {
	RoomByID(ctx context.Context, id string) (domainchat.Room, error)
	RoomByPair(ctx context.Context, listingID, interestedUserID string) (domainchat.Room, error)
	// CreateRoom inserts room unless its (listing, interested user) pair
	// exists, in which case the stored room is returned with created=false.
	CreateRoom(ctx context.Context, room domainchat.Room) (stored domainchat.Room, created bool, err error)
	SaveRoom(ctx context.Context, room domainchat.Room) error
	RoomsForUser(ctx context.Context, userID string) ([]domainchat.Room, error)
	// AppendMessage inserts msg unless (room, sender, correlation id) exists,
	// in which case the stored message is returned with created=false.
	AppendMessage(ctx context.Context, msg domainchat.Message) (stored domainchat.Message, created bool, err error)
	Messages(ctx context.Context, roomID string) ([]domainchat.Message, error)
	MarkRead(ctx context.Context, roomID, readerID string, at time.Time) (int, error)
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

type Listing struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Image   string `json:"image"`
	OwnerID string `json:"ownerId"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Catalog resolves listing and user display data.
type Catalog interface {
	Listing(ctx context.Context, id string) (Listing, error)
	User(ctx context.Context, id string) (User, error)
}
