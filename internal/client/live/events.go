package live

import "petchat/internal/app/dto"

// Event is one of Connected, Disconnected, ConnectError or MessageReceived.
type Event interface {
	isEvent()
}

type Connected struct{}

// Disconnected reports a dropped transport.
type Disconnected struct {
	Err error
}

// ConnectError reports a failed handshake.
type ConnectError struct {
	Err error
}

// MessageReceived carries a chat message pushed by the server. Name is the
// wire event: dto.EventChatMessage for advisory previews, dto.EventMessage
// for canonical messages.
type MessageReceived struct {
	Name    string
	Message dto.ChatMessage
}

func (Connected) isEvent()       {}
func (Disconnected) isEvent()    {}
func (ConnectError) isEvent()    {}
func (MessageReceived) isEvent() {}

// Handler receives events in arrival order from a single goroutine.
type Handler func(Event)
