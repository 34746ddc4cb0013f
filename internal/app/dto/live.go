package dto

import (
	"encoding/json"
	"fmt"
)

// Live channel event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventChatMessage = "chat_message"
	EventMessage     = "message"
	EventError       = "error"
)

// Envelope frames every live channel payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("live: encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("live: %s has no payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("live: decode %s payload: %w", e.Event, err)
	}
	return nil
}

// LiveChatMessage is the advisory send emitted by clients.
type LiveChatMessage struct {
	ChatRoomID        string `json:"chatRoomId"`
	Content           string `json:"content"`
	SenderID          string `json:"senderId"`
	AdoptionListingID string `json:"adoptionListingId"`
	CorrelationID     string `json:"correlationId,omitempty"`
}

type LiveError struct {
	Message string `json:"message"`
}
