package chat_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/dto"
	domainchat "petchat/internal/domain/chat"
	"petchat/internal/infra/storage/memory"
)

type fixture struct {
	svc    *appchat.Service
	repo   *memory.ChatRepository
	outbox *memory.Outbox
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	catalog := memory.NewCatalog()
	catalog.Load(memory.CatalogFixtures{
		Listings: []appchat.Listing{{ID: "listing-max", Title: "Max", OwnerID: "owner"}},
		Users: []appchat.User{
			{ID: "owner", Name: "Alice"},
			{ID: "adopter", Name: "Bob"},
			{ID: "stranger", Name: "Eve"},
		},
	})
	repo := memory.NewChatRepository()
	box := memory.NewOutbox()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	seq := 0
	svc := &appchat.Service{
		Repo:    repo,
		Catalog: catalog,
		Outbox:  box,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	}
	return fixture{svc: svc, repo: repo, outbox: box}
}

func TestService_CreateOrGetRoomIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)
	assert.Equal(t, "Max - Bob", first.Name)
	assert.Equal(t, "owner", first.OwnerID)
	assert.Equal(t, "Alice", first.OwnerName)

	second, err := f.svc.CreateOrGetRoom(ctx, "owner", "listing-max", "adopter")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rooms, err := f.svc.ListRooms(ctx, "adopter")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)

	names := eventNames(f.outbox)
	assert.Equal(t, []string{"chat.room_created"}, names)
}

func TestService_CreateOrGetRoomRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      string
		listing    string
		interested string
		wantErr    error
	}{
		{"self conversation", "owner", "listing-max", "owner", domainchat.ErrSelfConversation},
		{"unknown listing", "adopter", "nope", "adopter", domainchat.ErrListingNotFound},
		{"unknown user", "ghost", "listing-max", "ghost", domainchat.ErrUserNotFound},
		{"outsider", "stranger", "listing-max", "adopter", domainchat.ErrNotParticipant},
		{"missing listing", "adopter", "", "adopter", domainchat.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrGetRoom(ctx, tt.actor, tt.listing, tt.interested)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestService_CreateOrGetRoomReactivatesInactiveRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeactivateRoom(ctx, "owner", room.ID))

	_, err = f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "adopter", Content: "hello"})
	assert.ErrorIs(t, err, domainchat.ErrRoomInactive)

	again, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
	assert.True(t, again.Active)
}

func TestService_SendMessageCollapsesRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	params := appchat.SendParams{RoomID: room.ID, SenderID: "adopter", Content: "Is Max still available?", CorrelationID: "corr-1"}
	first, err := f.svc.SendMessage(ctx, params)
	require.NoError(t, err)
	retry, err := f.svc.SendMessage(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)

	history, err := f.svc.ListMessages(ctx, "owner", room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "adopter", history[0].SenderID)
	assert.Equal(t, "Bob", history[0].SenderName)
	assert.Equal(t, "owner", history[0].RecipientID)
	assert.Equal(t, "listing-max", history[0].ListingID)
	assert.Equal(t, domainchat.KindText, history[0].Kind)

	stored, err := f.repo.RoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Is Max still available?", stored.LastMessage)

	assert.Equal(t, []string{"chat.room_created", "chat.message_sent"}, eventNames(f.outbox))
}

func TestService_SendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "adopter", Content: "  "})
	assert.ErrorIs(t, err, domainchat.ErrEmptyContent)

	_, err = f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "stranger", Content: "hi"})
	assert.ErrorIs(t, err, domainchat.ErrNotParticipant)

	_, err = f.svc.SendMessage(ctx, appchat.SendParams{RoomID: "missing", SenderID: "adopter", Content: "hi"})
	assert.ErrorIs(t, err, domainchat.ErrRoomNotFound)
}

func TestService_HistoryIsOrderedBySendTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	want := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		sender := "adopter"
		if i%2 == 1 {
			sender = "owner"
		}
		content := fmt.Sprintf("message %d", i)
		want = append(want, content)
		_, err := f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: sender, Content: content})
		require.NoError(t, err)
	}

	history, err := f.svc.ListMessages(ctx, "adopter", room.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(history))
	for i, m := range history {
		got = append(got, m.Content)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(history[i-1].CreatedAt))
		}
	}
	assert.Equal(t, want, got)
}

func TestService_MarkReadOnlyCountsIncoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.svc.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	for _, c := range []string{"one", "two"} {
		_, err := f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "adopter", Content: c})
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "owner", Content: "reply"})
	require.NoError(t, err)

	rooms, err := f.svc.ListRooms(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].Unread)

	n, err := f.svc.MarkRead(ctx, "owner", room.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.MarkRead(ctx, "owner", room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	summary, err := f.svc.GetRoom(ctx, "adopter", room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unread)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	last   any
}

func (b *recordingBroadcaster) BroadcastToRoom(roomKey, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, roomKey+"/"+event)
	b.last = payload
}

func (b *recordingBroadcaster) SendToUser(userID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, "user:"+userID+"/"+event)
}

type recordingNotifier struct {
	notified []string
	read     []string
	readErr  error
}

func (n *recordingNotifier) NotifyMessage(ctx context.Context, msg domainchat.Message) error {
	n.notified = append(n.notified, msg.RecipientID+":"+msg.ID)
	return nil
}

func (n *recordingNotifier) MarkRoomRead(ctx context.Context, userID, roomID string) (int, error) {
	n.read = append(n.read, userID+":"+roomID)
	return 1, n.readErr
}

func TestDelivery_BroadcastsCanonicalMessageAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broadcaster := &recordingBroadcaster{}
	notifier := &recordingNotifier{}
	delivery := appchat.Delivery{Messaging: f.svc, Broadcaster: broadcaster, Notifier: notifier}

	room, err := delivery.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	msg, err := delivery.SendMessage(ctx, appchat.SendParams{RoomID: room.ID, SenderID: "adopter", Content: "hi", CorrelationID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"chat_" + room.ID + "/message", "user:owner/message"}, broadcaster.events)
	payload, ok := broadcaster.last.(dto.ChatMessage)
	require.True(t, ok)
	assert.Equal(t, msg.ID, payload.ID)
	assert.Equal(t, "c1", payload.CorrelationID)
	assert.False(t, payload.Advisory)
	assert.Equal(t, []string{"owner:" + msg.ID}, notifier.notified)

	_, err = delivery.MarkRead(ctx, "owner", room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner:" + room.ID}, notifier.read)
}

func TestDelivery_MarkReadSurfacesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &recordingNotifier{readErr: assert.AnError}
	delivery := appchat.Delivery{Messaging: f.svc, Notifier: notifier}

	room, err := delivery.CreateOrGetRoom(ctx, "adopter", "listing-max", "adopter")
	require.NoError(t, err)

	_, err = delivery.MarkRead(ctx, "owner", room.ID)
	assert.ErrorIs(t, err, assert.AnError)
}

func eventNames(box *memory.Outbox) []string {
	records := box.Records()
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names
}
