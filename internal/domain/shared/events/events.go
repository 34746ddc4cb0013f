package events

import "time"

// DomainEvent is recorded by application services and relayed through the outbox.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}
