package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appnotifications "petchat/internal/app/notifications"
	domainnotification "petchat/internal/domain/notification"
)

// NotificationRepository stores notifications in the "notifications"
// collection. Deletes are soft so the dedupe index keeps rejecting
// redelivered messages.
type NotificationRepository struct {
	col *mongo.Collection
}

func NewNotificationRepository(ctx context.Context, db *mongo.Database) (*NotificationRepository, error) {
	col := db.Collection("notifications")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "dedupe_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"dedupe_key": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return nil, err
	}
	return &NotificationRepository{col: col}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, n domainnotification.Notification) error {
	_, err := r.col.InsertOne(ctx, newNotificationDocument(n))
	if mongo.IsDuplicateKeyError(err) {
		return domainnotification.ErrDuplicate
	}
	return err
}

func (r *NotificationRepository) ByID(ctx context.Context, id string) (domainnotification.Notification, error) {
	var doc notificationDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id, "deleted": bson.M{"$ne": true}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domainnotification.Notification{}, domainnotification.ErrNotFound
	}
	if err != nil {
		return domainnotification.Notification{}, err
	}
	return doc.toDomain(), nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domainnotification.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.col.Find(ctx, userFilter(userID, unreadOnly), opts)
	if err != nil {
		return nil, err
	}
	var docs []notificationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domainnotification.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := r.col.CountDocuments(ctx, userFilter(userID, true))
	return int(n), err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": bson.M{"$ne": true}},
		bson.A{bson.M{"$set": bson.M{
			"read":    true,
			"read_at": bson.M{"$ifNull": bson.A{"$read_at", at.UTC()}},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainnotification.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	return r.markWhere(ctx, userFilter(userID, true), at)
}

func (r *NotificationRepository) MarkRoomRead(ctx context.Context, userID, roomID string, at time.Time) (int, error) {
	filter := userFilter(userID, true)
	filter["room_id"] = roomID
	filter["type"] = string(domainnotification.TypeNewMessage)
	return r.markWhere(ctx, filter, at)
}

func (r *NotificationRepository) markWhere(ctx context.Context, filter bson.M, at time.Time) (int, error) {
	res, err := r.col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true, "read_at": at.UTC()}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"deleted": true}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainnotification.ErrNotFound
	}
	return nil
}

func userFilter(userID string, unreadOnly bool) bson.M {
	filter := bson.M{"user_id": userID, "deleted": bson.M{"$ne": true}}
	if unreadOnly {
		filter["read"] = false
	}
	return filter
}

type notificationDocument struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	Title     string     `bson:"title"`
	Message   string     `bson:"message"`
	Type      string     `bson:"type"`
	Read      bool       `bson:"read"`
	ReadAt    *time.Time `bson:"read_at,omitempty"`
	SentAt    time.Time  `bson:"sent_at"`
	ActionURL string     `bson:"action_url,omitempty"`
	RoomID    string     `bson:"room_id,omitempty"`
	DedupeKey string     `bson:"dedupe_key,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	Deleted   bool       `bson:"deleted"`
}

func newNotificationDocument(n domainnotification.Notification) notificationDocument {
	doc := notificationDocument{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		Read:      n.Read,
		SentAt:    n.SentAt.UTC(),
		ActionURL: n.ActionURL,
		RoomID:    n.RoomID,
		DedupeKey: n.DedupeKey,
		CreatedAt: n.CreatedAt.UTC(),
	}
	if !n.ReadAt.IsZero() {
		at := n.ReadAt.UTC()
		doc.ReadAt = &at
	}
	return doc
}

func (d notificationDocument) toDomain() domainnotification.Notification {
	n := domainnotification.Notification{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		Message:   d.Message,
		Type:      domainnotification.Type(d.Type),
		Read:      d.Read,
		SentAt:    d.SentAt,
		ActionURL: d.ActionURL,
		RoomID:    d.RoomID,
		DedupeKey: d.DedupeKey,
		CreatedAt: d.CreatedAt,
	}
	if d.ReadAt != nil {
		n.ReadAt = *d.ReadAt
	}
	return n
}

var _ appnotifications.Repository = (*NotificationRepository)(nil)
