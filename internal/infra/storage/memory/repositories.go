package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "petchat/internal/domain/chat"
)

// ChatRepository keeps rooms and messages in process memory.
type ChatRepository struct {
	mu           sync.RWMutex
	rooms        map[string]domainchat.Room
	pairs        map[pairKey]string
	messages     map[string][]domainchat.Message
	correlations map[correlationKey]string
}

type pairKey struct {
	listingID        string
	interestedUserID string
}

type correlationKey struct {
	roomID        string
	senderID      string
	correlationID string
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		rooms:        make(map[string]domainchat.Room),
		pairs:        make(map[pairKey]string),
		messages:     make(map[string][]domainchat.Message),
		correlations: make(map[correlationKey]string),
	}
}

func (r *ChatRepository) RoomByID(ctx context.Context, id string) (domainchat.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return domainchat.Room{}, domainchat.ErrRoomNotFound
	}
	return room, nil
}

func (r *ChatRepository) RoomByPair(ctx context.Context, listingID, interestedUserID string) (domainchat.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pairs[pairKey{listingID, interestedUserID}]
	if !ok {
		return domainchat.Room{}, domainchat.ErrRoomNotFound
	}
	return r.rooms[id], nil
}

func (r *ChatRepository) CreateRoom(ctx context.Context, room domainchat.Room) (domainchat.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{room.ListingID, room.InterestedUserID}
	if id, ok := r.pairs[key]; ok {
		return r.rooms[id], false, nil
	}
	r.pairs[key] = room.ID
	r.rooms[room.ID] = room
	return room, true, nil
}

func (r *ChatRepository) SaveRoom(ctx context.Context, room domainchat.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; !ok {
		return domainchat.ErrRoomNotFound
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *ChatRepository) RoomsForUser(ctx context.Context, userID string) ([]domainchat.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainchat.Room, 0)
	for _, room := range r.rooms {
		if room.HasParticipant(userID) {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg domainchat.Message) (domainchat.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[msg.RoomID]; !ok {
		return domainchat.Message{}, false, domainchat.ErrRoomNotFound
	}
	var key correlationKey
	if msg.CorrelationID != "" {
		key = correlationKey{msg.RoomID, msg.SenderID, msg.CorrelationID}
		if id, ok := r.correlations[key]; ok {
			for _, existing := range r.messages[msg.RoomID] {
				if existing.ID == id {
					return existing, false, nil
				}
			}
		}
		r.correlations[key] = msg.ID
	}
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], msg)
	return msg, true, nil
}

func (r *ChatRepository) Messages(ctx context.Context, roomID string) ([]domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domainchat.Message(nil), r.messages[roomID]...), nil
}

func (r *ChatRepository) MarkRead(ctx context.Context, roomID, readerID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[roomID]
	marked := 0
	for i := range msgs {
		if msgs[i].RecipientID == readerID && msgs[i].MarkRead(at) {
			marked++
		}
	}
	return marked, nil
}

func (r *ChatRepository) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for roomID, msgs := range r.messages {
		for _, m := range msgs {
			if m.UnreadBy(userID) {
				counts[roomID]++
			}
		}
	}
	return counts, nil
}
