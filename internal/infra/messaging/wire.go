package messaging

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

// Room is the wire form of a room summary.
type Room struct {
	Id                 string                 `json:"id"`
	Name               string                 `json:"name"`
	ListingId          string                 `json:"listing_id"`
	ListingTitle       string                 `json:"listing_title,omitempty"`
	ListingImage       string                 `json:"listing_image,omitempty"`
	OwnerId            string                 `json:"owner_id"`
	OwnerName          string                 `json:"owner_name,omitempty"`
	InterestedUserId   string                 `json:"interested_user_id"`
	InterestedUserName string                 `json:"interested_user_name,omitempty"`
	LastMessage        string                 `json:"last_message,omitempty"`
	LastMessageAt      *timestamppb.Timestamp `json:"last_message_at,omitempty"`
	CreatedAt          *timestamppb.Timestamp `json:"created_at,omitempty"`
	Active             bool                   `json:"active"`
	Unread             int32                  `json:"unread"`
}

// Message is the wire form of a chat message.
type Message struct {
	Id            string                 `json:"id"`
	RoomId        string                 `json:"room_id"`
	CorrelationId string                 `json:"correlation_id,omitempty"`
	Content       string                 `json:"content"`
	SenderId      string                 `json:"sender_id"`
	SenderName    string                 `json:"sender_name,omitempty"`
	RecipientId   string                 `json:"recipient_id"`
	RecipientName string                 `json:"recipient_name,omitempty"`
	ListingId     string                 `json:"listing_id,omitempty"`
	Kind          string                 `json:"kind"`
	Status        string                 `json:"status"`
	CreatedAt     *timestamppb.Timestamp `json:"created_at,omitempty"`
	Read          bool                   `json:"read"`
	ReadAt        *timestamppb.Timestamp `json:"read_at,omitempty"`
}

type CreateOrGetRoomRequest struct {
	ActorId          string `json:"actor_id"`
	ListingId        string `json:"listing_id"`
	InterestedUserId string `json:"interested_user_id"`
}

type GetRoomRequest struct {
	ActorId string `json:"actor_id"`
	RoomId  string `json:"room_id"`
}

type RoomResponse struct {
	Room *Room `json:"room"`
}

type ListRoomsRequest struct {
	UserId string `json:"user_id"`
}

type ListRoomsResponse struct {
	Rooms []*Room `json:"rooms"`
}

type ListMessagesRequest struct {
	UserId string `json:"user_id"`
	RoomId string `json:"room_id"`
}

type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type SendMessageRequest struct {
	RoomId        string `json:"room_id"`
	SenderId      string `json:"sender_id"`
	Content       string `json:"content"`
	CorrelationId string `json:"correlation_id,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
}

type MarkReadRequest struct {
	UserId string `json:"user_id"`
	RoomId string `json:"room_id"`
}

type MarkReadResponse struct {
	Marked int32 `json:"marked"`
}

type DeactivateRoomRequest struct {
	UserId string `json:"user_id"`
	RoomId string `json:"room_id"`
}

type DeactivateRoomResponse struct{}

func toWireRoom(r appchat.RoomSummary) *Room {
	return &Room{
		Id:                 r.ID,
		Name:               r.Name,
		ListingId:          r.ListingID,
		ListingTitle:       r.ListingTitle,
		ListingImage:       r.ListingImage,
		OwnerId:            r.OwnerID,
		OwnerName:          r.OwnerName,
		InterestedUserId:   r.InterestedUserID,
		InterestedUserName: r.InterestedUserName,
		LastMessage:        r.LastMessage,
		LastMessageAt:      tsOrNil(r.LastMessageAt),
		CreatedAt:          tsOrNil(r.CreatedAt),
		Active:             r.Active,
		Unread:             int32(r.Unread),
	}
}

func mapRoom(r *Room) appchat.RoomSummary {
	if r == nil {
		return appchat.RoomSummary{}
	}
	return appchat.RoomSummary{
		Room: domainchat.Room{
			ID:                 r.Id,
			Name:               r.Name,
			ListingID:          r.ListingId,
			ListingTitle:       r.ListingTitle,
			ListingImage:       r.ListingImage,
			OwnerID:            r.OwnerId,
			OwnerName:          r.OwnerName,
			InterestedUserID:   r.InterestedUserId,
			InterestedUserName: r.InterestedUserName,
			LastMessage:        r.LastMessage,
			LastMessageAt:      timeOrZero(r.LastMessageAt),
			CreatedAt:          timeOrZero(r.CreatedAt),
			Active:             r.Active,
		},
		Unread: int(r.Unread),
	}
}

func toWireMessage(m domainchat.Message) *Message {
	return &Message{
		Id:            m.ID,
		RoomId:        m.RoomID,
		CorrelationId: m.CorrelationID,
		Content:       m.Content,
		SenderId:      m.SenderID,
		SenderName:    m.SenderName,
		RecipientId:   m.RecipientID,
		RecipientName: m.RecipientName,
		ListingId:     m.ListingID,
		Kind:          string(m.Kind),
		Status:        string(m.Status),
		CreatedAt:     tsOrNil(m.CreatedAt),
		Read:          m.Read,
		ReadAt:        tsOrNil(m.ReadAt),
	}
}

func mapMessage(m *Message) domainchat.Message {
	if m == nil {
		return domainchat.Message{}
	}
	return domainchat.Message{
		ID:            m.Id,
		RoomID:        m.RoomId,
		CorrelationID: m.CorrelationId,
		Content:       m.Content,
		SenderID:      m.SenderId,
		SenderName:    m.SenderName,
		RecipientID:   m.RecipientId,
		RecipientName: m.RecipientName,
		ListingID:     m.ListingId,
		Kind:          domainchat.MessageKind(m.Kind),
		Status:        domainchat.DeliveryStatus(m.Status),
		CreatedAt:     timeOrZero(m.CreatedAt),
		Read:          m.Read,
		ReadAt:        timeOrZero(m.ReadAt),
	}
}

func tsOrNil(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

func timeOrZero(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}
