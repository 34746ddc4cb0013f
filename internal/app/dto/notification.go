package dto

import (
	"time"

	domainnotification "petchat/internal/domain/notification"
)

type Notification struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Type       string     `json:"type"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	SentAt     time.Time  `json:"sentAt"`
	ActionURL  string     `json:"actionUrl,omitempty"`
	ActionData string     `json:"actionData,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// NotificationPage mirrors a zero-based page envelope.
type NotificationPage struct {
	Content       []Notification `json:"content"`
	Number        int            `json:"number"`
	Size          int            `json:"size"`
	TotalElements int            `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
}

type UnreadCount struct {
	Count int `json:"count"`
}

type MarkedCount struct {
	Marked int `json:"marked"`
}

func NotificationFromDomain(n domainnotification.Notification) Notification {
	out := Notification{
		ID:         n.ID,
		Title:      n.Title,
		Message:    n.Message,
		Type:       string(n.Type),
		IsRead:     n.Read,
		SentAt:     n.SentAt,
		ActionURL:  n.ActionURL,
		ActionData: n.RoomID,
		CreatedAt:  n.CreatedAt,
	}
	if !n.ReadAt.IsZero() {
		at := n.ReadAt
		out.ReadAt = &at
	}
	return out
}

func NotificationsFromDomain(items []domainnotification.Notification) []Notification {
	out := make([]Notification, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationFromDomain(n))
	}
	return out
}

func NotificationPageFromDomain(p domainnotification.PageResult) NotificationPage {
	return NotificationPage{
		Content:       NotificationsFromDomain(p.Items),
		Number:        p.Page,
		Size:          p.Size,
		TotalElements: p.Total,
		TotalPages:    p.TotalPages,
	}
}
