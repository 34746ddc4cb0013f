package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainchat "petchat/internal/domain/chat"
	domainnotification "petchat/internal/domain/notification"
)

// Repository persists notifications. List results are newest first.
type Repository interface {
	Insert(ctx context.Context, n domainnotification.Notification) error
	ByID(ctx context.Context, id string) (domainnotification.Notification, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domainnotification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	MarkRoomRead(ctx context.Context, userID, roomID string, at time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	Repo   Repository
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

func (s *Service) List(ctx context.Context, userID string) ([]domainnotification.Notification, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.Repo.ListByUser(ctx, userID, false)
}

func (s *Service) Page(ctx context.Context, userID string, page domainnotification.Page) (domainnotification.PageResult, error) {
	if err := requireUser(userID); err != nil {
		return domainnotification.PageResult{}, err
	}
	all, err := s.Repo.ListByUser(ctx, userID, false)
	if err != nil {
		return domainnotification.PageResult{}, err
	}
	return domainnotification.Paginate(all, page), nil
}

func (s *Service) Unread(ctx context.Context, userID string) ([]domainnotification.Notification, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.Repo.ListByUser(ctx, userID, true)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	return s.Repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	return s.Repo.MarkRead(ctx, id, s.now())
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	return s.Repo.MarkAllRead(ctx, userID, s.now())
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, id)
}

// CreateTest drops a system announcement into the user's inbox.
func (s *Service) CreateTest(ctx context.Context, userID, title, message string) (domainnotification.Notification, error) {
	if strings.TrimSpace(title) == "" {
		title = "Test notification"
	}
	if strings.TrimSpace(message) == "" {
		message = "This is a test notification."
	}
	n, err := domainnotification.New(domainnotification.NewParams{
		ID:      s.newID(),
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    domainnotification.TypeSystemAnnouncement,
		Now:     s.now(),
	})
	if err != nil {
		return domainnotification.Notification{}, err
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		return domainnotification.Notification{}, err
	}
	return n, nil
}

// NotifyMessage creates the recipient's NEW_MESSAGE entry. Redelivery of the
// same message is a no-op.
func (s *Service) NotifyMessage(ctx context.Context, msg domainchat.Message) error {
	if msg.RecipientID == "" || msg.ID == "" {
		return fmt.Errorf("%w: message recipient and id are required", domainnotification.ErrInvalidArgument)
	}
	sender := msg.SenderName
	if sender == "" {
		sender = "Someone"
	}
	n, err := domainnotification.New(domainnotification.NewParams{
		ID:        s.newID(),
		UserID:    msg.RecipientID,
		Title:     "New message from " + sender,
		Message:   domainchat.Snippet(msg.Content, 120),
		Type:      domainnotification.TypeNewMessage,
		ActionURL: "/chat/" + msg.RoomID,
		RoomID:    msg.RoomID,
		DedupeKey: msg.ID,
		Now:       s.now(),
	})
	if err != nil {
		return err
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		if errors.Is(err, domainnotification.ErrDuplicate) {
			return nil
		}
		return err
	}
	s.log().Debug("message notification created", "user_id", n.UserID, "room_id", n.RoomID, "message_id", msg.ID)
	return nil
}

// MarkRoomRead marks the user's chat notifications for one room read.
func (s *Service) MarkRoomRead(ctx context.Context, userID, roomID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	return s.Repo.MarkRoomRead(ctx, userID, roomID, s.now())
}

func (s *Service) owned(ctx context.Context, userID, id string) (domainnotification.Notification, error) {
	if err := requireUser(userID); err != nil {
		return domainnotification.Notification{}, err
	}
	n, err := s.Repo.ByID(ctx, id)
	if err != nil {
		return domainnotification.Notification{}, err
	}
	if n.UserID != userID {
		return domainnotification.Notification{}, domainnotification.ErrForbidden
	}
	return n, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", domainnotification.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}
