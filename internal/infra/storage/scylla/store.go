package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

var errNoSession = errors.New("scylla session not initialized")

const (
	roomColumns    = `id, name, listing_id, listing_title, listing_image, owner_id, owner_name, interested_user_id, interested_user_name, last_message, last_message_at, created_at, active`
	messageColumns = `room_id, created_at, message_id, correlation_id, content, sender_id, sender_name, recipient_id, recipient_name, listing_id, kind, status, read, read_at`
)

// Store persists rooms and messages in Scylla.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewStore builds a Store.
func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

func (s *Store) RoomByID(ctx context.Context, id string) (domainchat.Room, error) {
	if s.session == nil {
		return domainchat.Room{}, errNoSession
	}
	var r domainchat.Room
	err := s.session.
		Query(`SELECT `+roomColumns+` FROM rooms WHERE id = ? LIMIT 1`, id).
		WithContext(ctx).
		Scan(roomDest(&r)...)
	if err != nil {
		return domainchat.Room{}, notFound(err, domainchat.ErrRoomNotFound)
	}
	return r, nil
}

func (s *Store) RoomByPair(ctx context.Context, listingID, interestedUserID string) (domainchat.Room, error) {
	if s.session == nil {
		return domainchat.Room{}, errNoSession
	}
	var roomID string
	err := s.session.
		Query(`SELECT room_id FROM room_pairs WHERE listing_id = ? AND interested_user_id = ?`, listingID, interestedUserID).
		WithContext(ctx).
		Scan(&roomID)
	if err != nil {
		return domainchat.Room{}, notFound(err, domainchat.ErrRoomNotFound)
	}
	return s.RoomByID(ctx, roomID)
}

// CreateRoom writes the room row, then claims the (listing, interested user)
// pair with a lightweight transaction. Losing the claim removes the orphan row
// and returns the winner.
func (s *Store) CreateRoom(ctx context.Context, room domainchat.Room) (domainchat.Room, bool, error) {
	if s.session == nil {
		return domainchat.Room{}, false, errNoSession
	}
	if err := s.SaveRoom(ctx, room); err != nil {
		return domainchat.Room{}, false, err
	}
	existing := map[string]any{}
	applied, err := s.session.
		Query(`INSERT INTO room_pairs (listing_id, interested_user_id, room_id) VALUES (?, ?, ?) IF NOT EXISTS`,
			room.ListingID, room.InterestedUserID, room.ID).
		WithContext(ctx).
		MapScanCAS(existing)
	if err != nil {
		return domainchat.Room{}, false, fmt.Errorf("claim room pair: %w", err)
	}
	if !applied {
		if err := s.session.Query(`DELETE FROM rooms WHERE id = ?`, room.ID).WithContext(ctx).Exec(); err != nil && s.logger != nil {
			s.logger.Warn("failed to remove orphan room", "room_id", room.ID, "error", err)
		}
		winner, _ := existing["room_id"].(string)
		stored, err := s.RoomByID(ctx, winner)
		return stored, false, err
	}
	for _, userID := range []string{room.OwnerID, room.InterestedUserID} {
		if err := s.session.
			Query(`INSERT INTO rooms_by_user (user_id, room_id) VALUES (?, ?)`, userID, room.ID).
			WithContext(ctx).
			Exec(); err != nil {
			return domainchat.Room{}, false, fmt.Errorf("index room for user: %w", err)
		}
	}
	return room, true, nil
}

func (s *Store) SaveRoom(ctx context.Context, room domainchat.Room) error {
	if s.session == nil {
		return errNoSession
	}
	return s.session.
		Query(`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			room.ID, room.Name, room.ListingID, room.ListingTitle, room.ListingImage,
			room.OwnerID, room.OwnerName, room.InterestedUserID, room.InterestedUserName,
			room.LastMessage, nullTime(room.LastMessageAt), room.CreatedAt.UTC(), room.Active).
		WithContext(ctx).
		Exec()
}

func (s *Store) RoomsForUser(ctx context.Context, userID string) ([]domainchat.Room, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	ids, err := s.roomIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rooms := make([]domainchat.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.RoomByID(ctx, id)
		if errors.Is(err, domainchat.ErrRoomNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Store) roomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	iter := s.session.
		Query(`SELECT room_id FROM rooms_by_user WHERE user_id = ?`, userID).
		WithContext(ctx).
		Iter()
	var (
		ids []string
		id  string
	)
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendMessage claims (room, sender, correlation id) before writing so a
// retried send resolves to the first stored message.
func (s *Store) AppendMessage(ctx context.Context, msg domainchat.Message) (domainchat.Message, bool, error) {
	if s.session == nil {
		return domainchat.Message{}, false, errNoSession
	}
	if msg.CorrelationID != "" {
		existing := map[string]any{}
		applied, err := s.session.
			Query(`INSERT INTO message_correlations (room_id, sender_id, correlation_id, message_id, created_at) VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
				msg.RoomID, msg.SenderID, msg.CorrelationID, msg.ID, msg.CreatedAt.UTC()).
			WithContext(ctx).
			MapScanCAS(existing)
		if err != nil {
			return domainchat.Message{}, false, fmt.Errorf("claim correlation id: %w", err)
		}
		if !applied {
			return resolveClaim(ctx, s, msg, existing)
		}
	}
	if err := s.insertMessage(ctx, msg); err != nil {
		return domainchat.Message{}, false, err
	}
	return msg, true, nil
}

// messageRows is the message table as seen by a retried send.
type messageRows interface {
	loadMessage(ctx context.Context, roomID string, at time.Time, id string) (domainchat.Message, error)
	insertMessage(ctx context.Context, m domainchat.Message) error
}

// resolveClaim returns the message an earlier send claimed. When that send
// claimed the correlation id but never wrote its row, the retry is written
// under the claimed identity and reported as created. Rewriting the same
// primary key is idempotent.
func resolveClaim(ctx context.Context, rows messageRows, retry domainchat.Message, claim map[string]any) (domainchat.Message, bool, error) {
	id, _ := claim["message_id"].(string)
	at, _ := claim["created_at"].(time.Time)
	if id == "" || at.IsZero() {
		return domainchat.Message{}, false, fmt.Errorf("correlation %s has a malformed claim", retry.CorrelationID)
	}
	stored, err := rows.loadMessage(ctx, retry.RoomID, at, id)
	switch {
	case err == nil:
		return stored, false, nil
	case !errors.Is(err, gocql.ErrNotFound):
		return domainchat.Message{}, false, fmt.Errorf("load claimed message: %w", err)
	}
	retry.ID = id
	retry.CreatedAt = at.UTC()
	if err := rows.insertMessage(ctx, retry); err != nil {
		return domainchat.Message{}, false, fmt.Errorf("complete claimed message: %w", err)
	}
	return retry, true, nil
}

func (s *Store) loadMessage(ctx context.Context, roomID string, at time.Time, id string) (domainchat.Message, error) {
	var m domainchat.Message
	err := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE room_id = ? AND created_at = ? AND message_id = ?`, roomID, at, id).
		WithContext(ctx).
		Scan(messageDest(&m)...)
	return m, err
}

func (s *Store) insertMessage(ctx context.Context, m domainchat.Message) error {
	return s.session.
		Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.RoomID, m.CreatedAt.UTC(), m.ID, m.CorrelationID, m.Content,
			m.SenderID, m.SenderName, m.RecipientID, m.RecipientName, m.ListingID,
			string(m.Kind), string(m.Status), m.Read, nullTime(m.ReadAt)).
		WithContext(ctx).
		Exec()
}

// Messages returns the room history oldest first.
func (s *Store) Messages(ctx context.Context, roomID string) ([]domainchat.Message, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	iter := s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE room_id = ?`, roomID).
		WithContext(ctx).
		Iter()
	var (
		out []domainchat.Message
		m   domainchat.Message
	)
	for iter.Scan(messageDest(&m)...) {
		out = append(out, m)
		m = domainchat.Message{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, roomID, readerID string, at time.Time) (int, error) {
	msgs, err := s.Messages(ctx, roomID)
	if err != nil {
		return 0, err
	}
	at = at.UTC()
	marked := 0
	for _, m := range msgs {
		if !m.UnreadBy(readerID) {
			continue
		}
		if err := s.session.
			Query(`UPDATE messages SET read = true, read_at = ?, status = ? WHERE room_id = ? AND created_at = ? AND message_id = ?`,
				at, string(domainchat.StatusRead), roomID, m.CreatedAt, m.ID).
			WithContext(ctx).
			Exec(); err != nil {
			return marked, fmt.Errorf("mark message read: %w", err)
		}
		marked++
	}
	return marked, nil
}

func (s *Store) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	if s.session == nil {
		return nil, errNoSession
	}
	ids, err := s.roomIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		msgs, err := s.Messages(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m.UnreadBy(userID) {
				counts[id]++
			}
		}
	}
	return counts, nil
}

func roomDest(r *domainchat.Room) []any {
	return []any{
		&r.ID, &r.Name, &r.ListingID, &r.ListingTitle, &r.ListingImage,
		&r.OwnerID, &r.OwnerName, &r.InterestedUserID, &r.InterestedUserName,
		&r.LastMessage, &r.LastMessageAt, &r.CreatedAt, &r.Active,
	}
}

func messageDest(m *domainchat.Message) []any {
	return []any{
		&m.RoomID, &m.CreatedAt, &m.ID, &m.CorrelationID, &m.Content,
		&m.SenderID, &m.SenderName, &m.RecipientID, &m.RecipientName, &m.ListingID,
		(*string)(&m.Kind), (*string)(&m.Status), &m.Read, &m.ReadAt,
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return sentinel
	}
	return err
}

var _ appchat.Repository = (*Store)(nil)
