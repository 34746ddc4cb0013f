package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrEmptyContent = errors.New("chat: message content is required")

// MaxContentLength bounds a single message body in runes.
const MaxContentLength = 4000

type MessageKind string

const (
	KindText   MessageKind = "TEXT"
	KindImage  MessageKind = "IMAGE"
	KindFile   MessageKind = "FILE"
	KindSystem MessageKind = "SYSTEM"
)

// ParseKind maps a wire value to a kind, defaulting to text.
func ParseKind(raw string) (MessageKind, error) {
	switch MessageKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", KindText:
		return KindText, nil
	case KindImage:
		return KindImage, nil
	case KindFile:
		return KindFile, nil
	case KindSystem:
		return KindSystem, nil
	default:
		return "", fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, raw)
	}
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "SENT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusRead      DeliveryStatus = "READ"
)

// Message is a persisted chat message. CorrelationID is generated by the
// sending client and shared by the live and durable send paths.
type Message struct {
	ID            string
	RoomID        string
	CorrelationID string
	Content       string
	SenderID      string
	SenderName    string
	RecipientID   string
	RecipientName string
	ListingID     string
	Kind          MessageKind
	Status        DeliveryStatus
	CreatedAt     time.Time
	Read          bool
	ReadAt        time.Time
}

// NormalizeContent trims and validates a message body.
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if len([]rune(content)) > MaxContentLength {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidArgument, MaxContentLength)
	}
	return content, nil
}

// MarkRead flips the message to read. It reports whether anything changed.
func (m *Message) MarkRead(at time.Time) bool {
	if m.Read {
		return false
	}
	m.Read = true
	m.ReadAt = at.UTC()
	m.Status = StatusRead
	return true
}

// UnreadBy reports whether the message is still unread for userID.
func (m Message) UnreadBy(userID string) bool {
	return !m.Read && m.RecipientID == userID
}

// SortMessages orders messages by timestamp, ties broken by id.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
