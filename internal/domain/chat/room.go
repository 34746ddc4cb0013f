package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRoomNotFound     = errors.New("chat: room not found")
	ErrRoomInactive     = errors.New("chat: room is not active")
	ErrNotParticipant   = errors.New("chat: user is not a room participant")
	ErrSelfConversation = errors.New("chat: cannot start a conversation with yourself")
	ErrListingNotFound  = errors.New("chat: listing not found")
	ErrUserNotFound     = errors.New("chat: user not found")
	ErrInvalidArgument  = errors.New("chat: invalid argument")
)

// RoomKeyPrefix prefixes room ids on the live channel.
const RoomKeyPrefix = "chat_"

// Room is a conversation about one adoption listing between its owner and one
// interested user.
type Room struct {
	ID                 string
	Name               string
	ListingID          string
	ListingTitle       string
	ListingImage       string
	OwnerID            string
	OwnerName          string
	InterestedUserID   string
	InterestedUserName string
	LastMessage        string
	LastMessageAt      time.Time
	CreatedAt          time.Time
	Active             bool
}

// NewRoomParams groups the data needed to open a room.
type NewRoomParams struct {
	ID                 string
	ListingID          string
	ListingTitle       string
	ListingImage       string
	OwnerID            string
	OwnerName          string
	InterestedUserID   string
	InterestedUserName string
	Now                time.Time
}

// NewRoom validates params and returns an active room.
func NewRoom(p NewRoomParams) (Room, error) {
	p.ListingID = strings.TrimSpace(p.ListingID)
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.InterestedUserID = strings.TrimSpace(p.InterestedUserID)
	if p.ID == "" || p.ListingID == "" || p.OwnerID == "" || p.InterestedUserID == "" {
		return Room{}, fmt.Errorf("%w: room id, listing, owner and interested user are required", ErrInvalidArgument)
	}
	if p.OwnerID == p.InterestedUserID {
		return Room{}, ErrSelfConversation
	}
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	return Room{
		ID:                 p.ID,
		Name:               roomName(p.ListingTitle, p.InterestedUserName),
		ListingID:          p.ListingID,
		ListingTitle:       p.ListingTitle,
		ListingImage:       p.ListingImage,
		OwnerID:            p.OwnerID,
		OwnerName:          p.OwnerName,
		InterestedUserID:   p.InterestedUserID,
		InterestedUserName: p.InterestedUserName,
		CreatedAt:          p.Now.UTC(),
		Active:             true,
	}, nil
}

func roomName(title, interested string) string {
	title = strings.TrimSpace(title)
	interested = strings.TrimSpace(interested)
	switch {
	case title == "":
		return interested
	case interested == "":
		return title
	default:
		return title + " - " + interested
	}
}

// Key is the live-channel subscription key for the room.
func (r Room) Key() string {
	return RoomKey(r.ID)
}

// RoomKey builds the live-channel key for a room id.
func RoomKey(roomID string) string {
	return RoomKeyPrefix + roomID
}

// RoomIDFromKey reverses RoomKey.
func RoomIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, RoomKeyPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, RoomKeyPrefix)
	return id, id != ""
}

// HasParticipant reports whether userID is the owner or the interested user.
func (r Room) HasParticipant(userID string) bool {
	return userID != "" && (r.OwnerID == userID || r.InterestedUserID == userID)
}

// Counterparty returns the other participant's id and name.
func (r Room) Counterparty(userID string) (string, string) {
	if r.OwnerID == userID {
		return r.InterestedUserID, r.InterestedUserName
	}
	return r.OwnerID, r.OwnerName
}

// Deactivate marks the room inactive. Rooms are never deleted.
func (r *Room) Deactivate() {
	r.Active = false
}

// Reactivate restores an inactive room for a new contact attempt.
func (r *Room) Reactivate() {
	r.Active = true
}

// Touch records the latest message preview.
func (r *Room) Touch(content string, at time.Time) {
	r.LastMessage = Snippet(content, 500)
	r.LastMessageAt = at.UTC()
}

// LastActivity is the last message time, or the creation time for empty rooms.
func (r Room) LastActivity() time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}

// Snippet trims text to at most max runes.
func Snippet(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
