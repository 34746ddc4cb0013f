package rooms_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/app/dto"
	"petchat/internal/client/rooms"
	"petchat/internal/client/store"
	"petchat/internal/client/store/storetest"
)

func TestCreateOrGetIsIdempotent(t *testing.T) {
	fake := storetest.New()
	dir := rooms.New(fake, nil)

	first, err := dir.CreateOrGet(context.Background(), "listing-max", "adopter")
	require.NoError(t, err)
	second, err := dir.CreateOrGet(context.Background(), "listing-max", "adopter")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, dir.Rooms(), 1)
}

func TestRefreshKeepsStoreOrder(t *testing.T) {
	fake := storetest.New()
	fake.AddRoom(dto.ChatRoom{ID: "b", OwnerID: "owner", InterestedUserID: "u1"})
	fake.AddRoom(dto.ChatRoom{ID: "a", OwnerID: "owner", InterestedUserID: "u2"})
	dir := rooms.New(fake, nil)

	list, err := dir.Refresh(context.Background(), "owner")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestRefreshFailureIsTyped(t *testing.T) {
	fake := storetest.New()
	fake.Fail("ListRooms", &store.Error{Op: "list rooms", Kind: store.KindUnavailable})
	dir := rooms.New(fake, nil)

	_, err := dir.Refresh(context.Background(), "owner")
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
}

func TestSelectIsLocal(t *testing.T) {
	fake := storetest.New()
	fake.AddRoom(dto.ChatRoom{ID: "r1", OwnerID: "owner"})
	dir := rooms.New(fake, nil)
	_, err := dir.Refresh(context.Background(), "owner")
	require.NoError(t, err)

	_, ok := dir.Select("missing")
	assert.False(t, ok)
	room, ok := dir.Select("r1")
	require.True(t, ok)
	assert.Equal(t, "r1", room.ID)
	sel, ok := dir.Selected()
	require.True(t, ok)
	assert.Equal(t, "r1", sel.ID)
	assert.Equal(t, 1, fake.Calls("ListRooms"))
}

func TestApplyMessageAndMarkRead(t *testing.T) {
	fake := storetest.New()
	fake.AddRoom(dto.ChatRoom{ID: "r1", OwnerID: "owner", InterestedUserID: "adopter"})
	dir := rooms.New(fake, nil)
	_, err := dir.Refresh(context.Background(), "owner")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := dto.ChatMessage{ID: "m1", ChatRoomID: "r1", SenderID: "adopter", Content: "hello", Timestamp: at}
	assert.True(t, dir.ApplyMessage(msg, "owner", false))
	assert.True(t, dir.ApplyMessage(msg, "owner", false))
	assert.True(t, dir.ApplyMessage(dto.ChatMessage{ChatRoomID: "r1", SenderID: "adopter", Content: "typing", Advisory: true}, "owner", false))
	assert.True(t, dir.ApplyMessage(dto.ChatMessage{ID: "m2", ChatRoomID: "r1", SenderID: "owner", Content: "hi"}, "owner", false))
	assert.False(t, dir.ApplyMessage(dto.ChatMessage{ID: "m3", ChatRoomID: "other"}, "owner", false))

	room := dir.Rooms()[0]
	assert.Equal(t, 1, room.UnreadCount)
	assert.Equal(t, "hi", room.LastMessage)
	require.NotNil(t, room.LastMessageTime)
	assert.Equal(t, at, *room.LastMessageTime)

	assert.Equal(t, 1, dir.MarkRoomRead("r1"))
	assert.Equal(t, 0, dir.MarkRoomRead("r1"))
	assert.Equal(t, 0, dir.MarkRoomRead("missing"))

	assert.True(t, dir.ApplyMessage(dto.ChatMessage{ID: "m4", ChatRoomID: "r1", SenderID: "adopter"}, "owner", true))
	assert.Equal(t, 0, dir.Rooms()[0].UnreadCount)
}

func TestInterleavedRedeliveryCountsOnce(t *testing.T) {
	fake := storetest.New()
	fake.AddRoom(dto.ChatRoom{ID: "r1", OwnerID: "owner", InterestedUserID: "adopter"})
	dir := rooms.New(fake, nil)
	_, err := dir.Refresh(context.Background(), "owner")
	require.NoError(t, err)

	a := dto.ChatMessage{ID: "m1", ChatRoomID: "r1", SenderID: "adopter", Content: "first"}
	b := dto.ChatMessage{ID: "m2", ChatRoomID: "r1", SenderID: "adopter", Content: "second"}
	for _, msg := range []dto.ChatMessage{a, b, a, b} {
		dir.ApplyMessage(msg, "owner", false)
	}
	room := dir.Rooms()[0]
	assert.Equal(t, 2, room.UnreadCount)
	assert.Equal(t, "second", room.LastMessage)
}

func TestDeactivate(t *testing.T) {
	fake := storetest.New()
	room, err := rooms.New(fake, nil).CreateOrGet(context.Background(), "listing-max", "adopter")
	require.NoError(t, err)
	dir := rooms.New(fake, nil)
	_, err = dir.CreateOrGet(context.Background(), "listing-max", "adopter")
	require.NoError(t, err)

	require.NoError(t, dir.Deactivate(context.Background(), room.ID))
	assert.False(t, dir.Rooms()[0].IsActive)

	fake.Fail("DeactivateRoom", &store.Error{Kind: store.KindForbidden})
	err = dir.Deactivate(context.Background(), room.ID)
	assert.Equal(t, store.KindForbidden, store.KindOf(err))
}
