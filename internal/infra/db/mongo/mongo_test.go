package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	appoutbox "petchat/internal/app/outbox"
	domainnotification "petchat/internal/domain/notification"
)

func TestNotificationRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("duplicate dedupe key", func(mt *mtest.T) {
		repo := &NotificationRepository{col: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}))
		err := repo.Insert(ctx, domainnotification.Notification{ID: "n1", UserID: "owner", DedupeKey: "m1", CreatedAt: now})
		assert.ErrorIs(mt, err, domainnotification.ErrDuplicate)
	})

	mt.Run("by id", func(mt *mtest.T) {
		repo := &NotificationRepository{col: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "n1"},
			{Key: "user_id", Value: "owner"},
			{Key: "title", Value: "New message from Bob"},
			{Key: "type", Value: "NEW_MESSAGE"},
			{Key: "room_id", Value: "room-1"},
			{Key: "read", Value: false},
			{Key: "created_at", Value: now},
		}))
		n, err := repo.ByID(ctx, "n1")
		require.NoError(mt, err)
		assert.Equal(mt, "owner", n.UserID)
		assert.Equal(mt, domainnotification.TypeNewMessage, n.Type)
		assert.True(mt, n.ReadAt.IsZero())
		assert.True(mt, now.Equal(n.CreatedAt))

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		_, err = repo.ByID(ctx, "missing")
		assert.ErrorIs(mt, err, domainnotification.ErrNotFound)
	})

	mt.Run("mark read counts", func(mt *mtest.T) {
		repo := &NotificationRepository{col: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}, bson.E{Key: "nModified", Value: 3}))
		marked, err := repo.MarkRoomRead(ctx, "owner", "room-1", now)
		require.NoError(mt, err)
		assert.Equal(mt, 3, marked)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		assert.ErrorIs(mt, repo.MarkRead(ctx, "missing", now), domainnotification.ErrNotFound)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		assert.ErrorIs(mt, repo.Delete(ctx, "missing"), domainnotification.ErrNotFound)
	})
}

func TestNotificationDocumentRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := domainnotification.Notification{
		ID:        "n1",
		UserID:    "owner",
		Title:     "t",
		Type:      domainnotification.TypeNewMessage,
		Read:      true,
		ReadAt:    at,
		RoomID:    "room-1",
		DedupeKey: "m1",
		CreatedAt: at,
		SentAt:    at,
	}
	assert.Equal(t, n, newNotificationDocument(n).toDomain())

	unread := newNotificationDocument(domainnotification.Notification{ID: "n2"})
	assert.Nil(t, unread.ReadAt)
}

func TestOutboxStoreClaim(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("empty queue", func(mt *mtest.T) {
		store := &OutboxStore{col: mt.Coll, now: time.Now}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))
		claimed, err := store.Claim(ctx, "worker-1")
		require.NoError(mt, err)
		assert.Nil(mt, claimed)
	})

	mt.Run("claims record", func(mt *mtest.T) {
		store := &OutboxStore{col: mt.Coll, now: time.Now}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: "evt-1"},
			{Key: "name", Value: "chat.message_sent"},
			{Key: "payload", Value: []byte(`{"room_id":"room-1"}`)},
			{Key: "aggregate", Value: "room-1"},
			{Key: "state", Value: stateClaimed},
			{Key: "attempts", Value: 2},
		}}))
		claimed, err := store.Claim(ctx, "worker-1")
		require.NoError(mt, err)
		require.NotNil(mt, claimed)
		assert.Equal(mt, appoutbox.EventRecord{
			ID:        "evt-1",
			Name:      "chat.message_sent",
			Payload:   []byte(`{"room_id":"room-1"}`),
			Aggregate: "room-1",
		}, claimed.Record)
		assert.Equal(mt, 2, claimed.Attempts)
	})

	mt.Run("duplicate add is ignored", func(mt *mtest.T) {
		store := &OutboxStore{col: mt.Coll, now: time.Now}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}))
		assert.NoError(mt, store.Add(ctx, appoutbox.EventRecord{ID: "evt-1", Name: "chat.room_created"}))
	})
}
