package chat

import "time"

type RoomCreatedEvent struct {
	RoomID           string    `json:"room_id"`
	ListingID        string    `json:"listing_id"`
	OwnerID          string    `json:"owner_id"`
	InterestedUserID string    `json:"interested_user_id"`
	At               time.Time `json:"at"`
}

func (e RoomCreatedEvent) EventName() string     { return "chat.room_created" }
func (e RoomCreatedEvent) AggregateID() string   { return e.RoomID }
func (e RoomCreatedEvent) OccurredAt() time.Time { return e.At }

type MessageSentEvent struct {
	RoomID        string      `json:"room_id"`
	MessageID     string      `json:"message_id"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	SenderID      string      `json:"sender_id"`
	RecipientID   string      `json:"recipient_id"`
	ListingID     string      `json:"listing_id"`
	Kind          MessageKind `json:"kind"`
	At            time.Time   `json:"at"`
}

func (e MessageSentEvent) EventName() string     { return "chat.message_sent" }
func (e MessageSentEvent) AggregateID() string   { return e.RoomID }
func (e MessageSentEvent) OccurredAt() time.Time { return e.At }

type RoomReadEvent struct {
	RoomID string    `json:"room_id"`
	UserID string    `json:"user_id"`
	Count  int       `json:"count"`
	At     time.Time `json:"at"`
}

func (e RoomReadEvent) EventName() string     { return "chat.room_read" }
func (e RoomReadEvent) AggregateID() string   { return e.RoomID }
func (e RoomReadEvent) OccurredAt() time.Time { return e.At }
