package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("notification: not found")
	ErrForbidden       = errors.New("notification: belongs to another user")
	ErrInvalidArgument = errors.New("notification: invalid argument")
	ErrDuplicate       = errors.New("notification: duplicate dedupe key")
)

type Type string

const (
	TypeNewMessage         Type = "NEW_MESSAGE"
	TypeSystemAnnouncement Type = "SYSTEM_ANNOUNCEMENT"
	TypeAdoptionUpdate     Type = "ADOPTION_UPDATE"
)

// DefaultPageSize is used when a page request does not name a size.
const DefaultPageSize = 20

// Notification is a per-user inbox entry. RoomID is set for chat notifications.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      Type
	Read      bool
	ReadAt    time.Time
	SentAt    time.Time
	ActionURL string
	RoomID    string
	DedupeKey string
	CreatedAt time.Time
}

type NewParams struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      Type
	ActionURL string
	RoomID    string
	DedupeKey string
	Now       time.Time
}

func New(p NewParams) (Notification, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	p.Title = strings.TrimSpace(p.Title)
	if p.ID == "" || p.UserID == "" {
		return Notification{}, fmt.Errorf("%w: id and user are required", ErrInvalidArgument)
	}
	if p.Title == "" {
		return Notification{}, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if p.Type == "" {
		p.Type = TypeSystemAnnouncement
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	now := p.Now.UTC()
	return Notification{
		ID:        p.ID,
		UserID:    p.UserID,
		Title:     p.Title,
		Message:   strings.TrimSpace(p.Message),
		Type:      p.Type,
		ActionURL: p.ActionURL,
		RoomID:    p.RoomID,
		DedupeKey: p.DedupeKey,
		SentAt:    now,
		CreatedAt: now,
	}, nil
}

// MarkRead reports whether the notification changed.
func (n *Notification) MarkRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = at.UTC()
	return true
}

// Page describes a zero-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalized() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > 100 {
		p.Size = 100
	}
	return p
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

// PageResult is a slice of a user's notifications, newest first.
type PageResult struct {
	Items      []Notification
	Page       int
	Size       int
	Total      int
	TotalPages int
}

// Paginate cuts one page out of an already ordered list.
func Paginate(all []Notification, p Page) PageResult {
	p = p.Normalized()
	res := PageResult{Page: p.Number, Size: p.Size, Total: len(all)}
	res.TotalPages = (len(all) + p.Size - 1) / p.Size
	start := p.Offset()
	if start >= len(all) {
		res.Items = []Notification{}
		return res
	}
	end := start + p.Size
	if end > len(all) {
		end = len(all)
	}
	res.Items = append([]Notification(nil), all[start:end]...)
	return res
}
