package dto

import (
	"time"

	domainchat "petchat/internal/domain/chat"
)

// ChatRoom describes a conversation as seen by one participant.
type ChatRoom struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	AdoptionListingID    string     `json:"adoptionListingId"`
	AdoptionListingTitle string     `json:"adoptionListingTitle,omitempty"`
	AdoptionListingImage string     `json:"adoptionListingImage,omitempty"`
	OwnerID              string     `json:"ownerId"`
	OwnerName            string     `json:"ownerName,omitempty"`
	InterestedUserID     string     `json:"interestedUserId"`
	InterestedUserName   string     `json:"interestedUserName,omitempty"`
	LastMessage          string     `json:"lastMessage,omitempty"`
	LastMessageTime      *time.Time `json:"lastMessageTime,omitempty"`
	UnreadCount          int        `json:"unreadCount"`
	CreatedAt            time.Time  `json:"createdAt"`
	IsActive             bool       `json:"isActive"`
}

// ChatMessage is the message object carried by the REST API and the live channel.
// Advisory is set only on live previews that were never persisted.
type ChatMessage struct {
	ID                string    `json:"id,omitempty"`
	CorrelationID     string    `json:"correlationId,omitempty"`
	ChatRoomID        string    `json:"chatRoomId"`
	Content           string    `json:"content"`
	SenderID          string    `json:"senderId"`
	SenderName        string    `json:"senderName,omitempty"`
	ReceiverID        string    `json:"receiverId,omitempty"`
	ReceiverName      string    `json:"receiverName,omitempty"`
	AdoptionListingID string    `json:"adoptionListingId,omitempty"`
	Type              string    `json:"type,omitempty"`
	Status            string    `json:"status,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	IsRead            bool      `json:"isRead"`
	Advisory          bool      `json:"advisory,omitempty"`
}

// SendMessageRequest is the body of a durable send.
type SendMessageRequest struct {
	Content       string `json:"content"`
	SenderID      string `json:"senderId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Type          string `json:"type,omitempty"`
}

// MarkReadResponse reports how many messages flipped to read.
type MarkReadResponse struct {
	ChatRoomID string `json:"chatRoomId"`
	Marked     int    `json:"marked"`
}

func RoomFromDomain(room domainchat.Room, unread int) ChatRoom {
	out := ChatRoom{
		ID:                   room.ID,
		Name:                 room.Name,
		AdoptionListingID:    room.ListingID,
		AdoptionListingTitle: room.ListingTitle,
		AdoptionListingImage: room.ListingImage,
		OwnerID:              room.OwnerID,
		OwnerName:            room.OwnerName,
		InterestedUserID:     room.InterestedUserID,
		InterestedUserName:   room.InterestedUserName,
		LastMessage:          room.LastMessage,
		UnreadCount:          unread,
		CreatedAt:            room.CreatedAt,
		IsActive:             room.Active,
	}
	if !room.LastMessageAt.IsZero() {
		at := room.LastMessageAt
		out.LastMessageTime = &at
	}
	return out
}

func MessageFromDomain(msg domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:                msg.ID,
		CorrelationID:     msg.CorrelationID,
		ChatRoomID:        msg.RoomID,
		Content:           msg.Content,
		SenderID:          msg.SenderID,
		SenderName:        msg.SenderName,
		ReceiverID:        msg.RecipientID,
		ReceiverName:      msg.RecipientName,
		AdoptionListingID: msg.ListingID,
		Type:              string(msg.Kind),
		Status:            string(msg.Status),
		Timestamp:         msg.CreatedAt,
		IsRead:            msg.Read,
	}
}

func MessagesFromDomain(msgs []domainchat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageFromDomain(m))
	}
	return out
}
