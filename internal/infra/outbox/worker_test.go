package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "petchat/internal/app/outbox"
	"petchat/internal/infra/storage/memory"
)

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	sent []published
	fail error
}

func (p *fakeProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestDrainPublishesCloudEvents(t *testing.T) {
	box := memory.NewOutbox()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{
		ID: "evt-1", Name: "chat.message_sent", Payload: []byte(`{"room_id":"room-1"}`),
		OccurredAt: at, Aggregate: "room-1", Headers: map[string]string{"traceparent": "00-abc-01"},
	}))
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "evt-2", Name: "chat.room_read", Payload: []byte(`{}`), Aggregate: "room-1"}))

	producer := &fakeProducer{}
	w := &Worker{Queue: box, Producer: producer, TopicPrefix: "dev."}
	require.NoError(t, w.Drain(ctx))

	require.Len(t, producer.sent, 2)
	first := producer.sent[0]
	assert.Equal(t, "dev.chat.events.v1", first.topic)
	assert.Equal(t, "room-1", first.key)
	assert.Equal(t, "application/cloudevents+json", first.headers["content-type"])
	assert.Equal(t, "00-abc-01", first.headers["traceparent"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(first.payload, &evt))
	assert.Equal(t, "chat.message_sent.v1", evt["type"])
	assert.Equal(t, "evt-1", evt["id"])
	assert.Equal(t, "app://petchat", evt["source"])
	assert.Equal(t, map[string]any{"room_id": "room-1"}, evt["data"])
	assert.Zero(t, box.Pending())
}

func TestFailedPublishIsRetriedLater(t *testing.T) {
	box := memory.NewOutbox()
	ctx := context.Background()
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "evt-1", Name: "chat.room_created", Payload: []byte(`{}`)}))

	producer := &fakeProducer{fail: errors.New("broker down")}
	w := &Worker{Queue: box, Producer: producer, Backoff: []time.Duration{time.Hour}}
	require.NoError(t, w.Drain(ctx))
	assert.Equal(t, 1, box.Pending())

	producer.fail = nil
	require.NoError(t, w.Drain(ctx))
	assert.Empty(t, producer.sent, "record is not due until its backoff elapses")
}

func TestMalformedPayloadIsMarkedFailed(t *testing.T) {
	box := memory.NewOutbox()
	ctx := context.Background()
	require.NoError(t, box.Add(ctx, appoutbox.EventRecord{ID: "evt-1", Name: "chat.room_created", Payload: []byte(`not json`)}))

	producer := &fakeProducer{}
	w := &Worker{Queue: box, Producer: producer}
	require.NoError(t, w.Drain(ctx))
	assert.Empty(t, producer.sent)
	assert.Equal(t, 1, box.Pending())
}

func TestNextRetryUsesBackoffSchedule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Worker{Backoff: []time.Duration{time.Second, time.Minute}, Now: func() time.Time { return now }}
	assert.Equal(t, now.Add(time.Second), w.nextRetry(0))
	assert.Equal(t, now.Add(time.Minute), w.nextRetry(1))
	assert.Equal(t, now.Add(time.Minute), w.nextRetry(7))

	bare := &Worker{Now: func() time.Time { return now }}
	assert.Equal(t, now.Add(5*time.Second), bare.nextRetry(0))
}

func TestRunRequiresDependencies(t *testing.T) {
	assert.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &Worker{Queue: memory.NewOutbox(), Producer: &fakeProducer{}, Interval: time.Millisecond}
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}

type brokenQueue struct{ claims int }

func (q *brokenQueue) Claim(context.Context, string) (*appoutbox.Claimed, error) {
	q.claims++
	return nil, errors.New("mongo down")
}
func (q *brokenQueue) MarkSent(context.Context, string) error { return nil }
func (q *brokenQueue) MarkFailed(context.Context, string, time.Time, string) error {
	return nil
}

func TestRunSurvivesQueueErrors(t *testing.T) {
	q := &brokenQueue{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w := &Worker{Queue: q, Producer: &fakeProducer{}, Interval: 5 * time.Millisecond}
	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
	assert.Greater(t, q.claims, 1)
}
