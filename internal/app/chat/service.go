package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "petchat/internal/app/outbox"
	domainchat "petchat/internal/domain/chat"
	"petchat/internal/domain/shared/events"
)

// Service implements Messaging on top of a Repository.
type Service struct {
	Repo    Repository
	Catalog Catalog
	Outbox  appoutbox.Outbox
	Encoder appoutbox.EventEncoder
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   func() string
}

func (s *Service) CreateOrGetRoom(ctx context.Context, actorID, listingID, interestedUserID string) (RoomSummary, error) {
	actorID = strings.TrimSpace(actorID)
	listingID = strings.TrimSpace(listingID)
	interestedUserID = strings.TrimSpace(interestedUserID)
	if listingID == "" || interestedUserID == "" {
		return RoomSummary{}, fmt.Errorf("%w: listing and interested user are required", domainchat.ErrInvalidArgument)
	}

	room, err := s.Repo.RoomByPair(ctx, listingID, interestedUserID)
	switch {
	case err == nil:
		if !room.HasParticipant(actorID) {
			return RoomSummary{}, domainchat.ErrNotParticipant
		}
		if !room.Active {
			room.Reactivate()
			if err := s.Repo.SaveRoom(ctx, room); err != nil {
				return RoomSummary{}, fmt.Errorf("reactivate room: %w", err)
			}
			s.log().Info("chat room reactivated", "room_id", room.ID)
		}
		return s.summarize(ctx, actorID, room)
	case !errors.Is(err, domainchat.ErrRoomNotFound):
		return RoomSummary{}, fmt.Errorf("lookup room: %w", err)
	}

	listing, err := s.Catalog.Listing(ctx, listingID)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("load listing %s: %w", listingID, err)
	}
	if actorID != listing.OwnerID && actorID != interestedUserID {
		return RoomSummary{}, domainchat.ErrNotParticipant
	}
	owner, err := s.Catalog.User(ctx, listing.OwnerID)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("load owner: %w", err)
	}
	interested, err := s.Catalog.User(ctx, interestedUserID)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("load interested user: %w", err)
	}

	candidate, err := domainchat.NewRoom(domainchat.NewRoomParams{
		ID:                 s.newID(),
		ListingID:          listing.ID,
		ListingTitle:       listing.Title,
		ListingImage:       listing.Image,
		OwnerID:            owner.ID,
		OwnerName:          owner.Name,
		InterestedUserID:   interested.ID,
		InterestedUserName: interested.Name,
		Now:                s.now(),
	})
	if err != nil {
		return RoomSummary{}, err
	}
	stored, created, err := s.Repo.CreateRoom(ctx, candidate)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("create room: %w", err)
	}
	if created {
		s.log().Info("chat room created", "room_id", stored.ID, "listing_id", stored.ListingID, "owner_id", stored.OwnerID, "interested_user_id", stored.InterestedUserID)
		s.record(ctx, domainchat.RoomCreatedEvent{
			RoomID:           stored.ID,
			ListingID:        stored.ListingID,
			OwnerID:          stored.OwnerID,
			InterestedUserID: stored.InterestedUserID,
			At:               stored.CreatedAt,
		})
	}
	return s.summarize(ctx, actorID, stored)
}

func (s *Service) GetRoom(ctx context.Context, actorID, roomID string) (RoomSummary, error) {
	room, err := s.participantRoom(ctx, actorID, roomID)
	if err != nil {
		return RoomSummary{}, err
	}
	return s.summarize(ctx, actorID, room)
}

// ListRooms returns the user's rooms, most recent activity first.
func (s *Service) ListRooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domainchat.ErrInvalidArgument)
	}
	rooms, err := s.Repo.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	unread, err := s.Repo.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].LastActivity().After(rooms[j].LastActivity())
	})
	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomSummary{Room: room, Unread: unread[room.ID]})
	}
	return out, nil
}

// ListMessages returns the room history in timestamp order. It does not mark
// anything read.
func (s *Service) ListMessages(ctx context.Context, userID, roomID string) ([]domainchat.Message, error) {
	if _, err := s.participantRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	msgs, err := s.Repo.Messages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	domainchat.SortMessages(msgs)
	return msgs, nil
}

// SendMessage persists a message. A repeated send with the same correlation id
// returns the message stored by the first call.
func (s *Service) SendMessage(ctx context.Context, params SendParams) (domainchat.Message, error) {
	content, err := domainchat.NormalizeContent(params.Content)
	if err != nil {
		return domainchat.Message{}, err
	}
	kind := params.Kind
	if kind == "" {
		kind = domainchat.KindText
	}
	room, err := s.participantRoom(ctx, params.SenderID, params.RoomID)
	if err != nil {
		return domainchat.Message{}, err
	}
	if !room.Active {
		return domainchat.Message{}, domainchat.ErrRoomInactive
	}
	senderID := strings.TrimSpace(params.SenderID)
	senderName := room.OwnerName
	if senderID == room.InterestedUserID {
		senderName = room.InterestedUserName
	}
	recipientID, recipientName := room.Counterparty(senderID)
	correlationID := strings.TrimSpace(params.CorrelationID)

	now := s.now()
	stored, created, err := s.Repo.AppendMessage(ctx, domainchat.Message{
		ID:            s.newID(),
		RoomID:        room.ID,
		CorrelationID: correlationID,
		Content:       content,
		SenderID:      senderID,
		SenderName:    senderName,
		RecipientID:   recipientID,
		RecipientName: recipientName,
		ListingID:     room.ListingID,
		Kind:          kind,
		Status:        domainchat.StatusSent,
		CreatedAt:     now,
	})
	if err != nil {
		return domainchat.Message{}, fmt.Errorf("append message: %w", err)
	}
	if !created {
		s.log().Debug("duplicate send collapsed", "room_id", room.ID, "correlation_id", correlationID, "message_id", stored.ID)
		return stored, nil
	}

	room.Touch(stored.Content, stored.CreatedAt)
	if err := s.Repo.SaveRoom(ctx, room); err != nil {
		s.log().Warn("failed to update room preview", "room_id", room.ID, "error", err)
	}
	s.record(ctx, domainchat.MessageSentEvent{
		RoomID:        room.ID,
		MessageID:     stored.ID,
		CorrelationID: stored.CorrelationID,
		SenderID:      stored.SenderID,
		RecipientID:   stored.RecipientID,
		ListingID:     stored.ListingID,
		Kind:          stored.Kind,
		At:            stored.CreatedAt,
	})
	return stored, nil
}

// MarkRead marks every message addressed to userID in the room as read and
// returns how many changed. Calling it again returns 0.
func (s *Service) MarkRead(ctx context.Context, userID, roomID string) (int, error) {
	room, err := s.participantRoom(ctx, userID, roomID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	n, err := s.Repo.MarkRead(ctx, room.ID, userID, now)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	if n > 0 {
		s.record(ctx, domainchat.RoomReadEvent{RoomID: room.ID, UserID: userID, Count: n, At: now})
	}
	return n, nil
}

func (s *Service) DeactivateRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.participantRoom(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !room.Active {
		return nil
	}
	room.Deactivate()
	if err := s.Repo.SaveRoom(ctx, room); err != nil {
		return fmt.Errorf("deactivate room: %w", err)
	}
	s.log().Info("chat room deactivated", "room_id", room.ID, "by", userID)
	return nil
}

func (s *Service) participantRoom(ctx context.Context, userID, roomID string) (domainchat.Room, error) {
	userID = strings.TrimSpace(userID)
	roomID = strings.TrimSpace(roomID)
	if userID == "" || roomID == "" {
		return domainchat.Room{}, fmt.Errorf("%w: room and user are required", domainchat.ErrInvalidArgument)
	}
	room, err := s.Repo.RoomByID(ctx, roomID)
	if err != nil {
		return domainchat.Room{}, err
	}
	if !room.HasParticipant(userID) {
		return domainchat.Room{}, domainchat.ErrNotParticipant
	}
	return room, nil
}

func (s *Service) summarize(ctx context.Context, userID string, room domainchat.Room) (RoomSummary, error) {
	counts, err := s.Repo.UnreadCounts(ctx, userID)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("count unread: %w", err)
	}
	return RoomSummary{Room: room, Unread: counts[room.ID]}, nil
}

// record appends events to the outbox. The chat write already happened, so a
// failure here is logged rather than returned.
func (s *Service) record(ctx context.Context, evs ...events.DomainEvent) {
	if err := appoutbox.RecordDomainEvents(ctx, s.Outbox, s.Encoder, evs...); err != nil {
		s.log().Error("outbox record failed", "error", err)
	}
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

var _ Messaging = (*Service)(nil)
