package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	appoutbox "petchat/internal/app/outbox"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker relays outbox records to the broker as CloudEvents.
type Worker struct {
	Queue       appoutbox.Queue
	Producer    Producer
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Run relays due records now and then on every tick until ctx ends. Queue
// errors are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	if w.Queue == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		if err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.log().Error("outbox queue unavailable", "worker_id", w.ID, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain relays due records until the queue has none left.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		processed, err := w.processOnce(ctx)
		if err != nil || !processed {
			return err
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) (bool, error) {
	claimed, err := w.Queue.Claim(ctx, w.workerID())
	if err != nil || claimed == nil {
		return false, err
	}
	rec := claimed.Record
	payload, headers, err := w.formatPayload(rec)
	if err == nil {
		err = w.Producer.Publish(ctx, w.topicFor(rec.Name), rec.Aggregate, payload, headers)
	}
	if err != nil {
		w.log().Warn("outbox relay failed", "event_id", rec.ID, "event", rec.Name, "attempts", claimed.Attempts+1, "error", err)
		if markErr := w.Queue.MarkFailed(ctx, rec.ID, w.nextRetry(claimed.Attempts), err.Error()); markErr != nil {
			return false, markErr
		}
		return true, nil
	}
	return true, w.Queue.MarkSent(ctx, rec.ID)
}

// cloudEvent is the structured-mode CloudEvents 1.0 envelope.
type cloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            string          `json:"time,omitempty"`
	DataContentType string          `json:"datacontenttype"`
	TraceParent     string          `json:"traceparent,omitempty"`
	RequestID       string          `json:"requestid,omitempty"`
	Data            json.RawMessage `json:"data"`
}

func (w *Worker) formatPayload(rec appoutbox.EventRecord) ([]byte, map[string]string, error) {
	if !json.Valid(rec.Payload) {
		return nil, nil, fmt.Errorf("outbox: event %s has a malformed payload", rec.ID)
	}
	evt := cloudEvent{
		SpecVersion:     "1.0",
		ID:              rec.ID,
		Type:            rec.Name + ".v1",
		Source:          w.source(),
		Subject:         rec.Aggregate,
		DataContentType: "application/json",
		TraceParent:     rec.Headers["traceparent"],
		RequestID:       rec.Headers["X-Request-ID"],
		Data:            rec.Payload,
	}
	if !rec.OccurredAt.IsZero() {
		evt.Time = rec.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, fmt.Errorf("outbox: encode event %s: %w", rec.ID, err)
	}
	headers := map[string]string{"content-type": "application/cloudevents+json"}
	maps.Copy(headers, rec.Headers)
	return payload, headers, nil
}

// topicFor maps "chat.message_sent" to "<prefix>chat.events.v1".
func (w *Worker) topicFor(name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	topic := base + ".events.v1"
	if w.TopicPrefix != "" {
		topic = w.TopicPrefix + topic
	}
	return topic
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) nextRetry(attempts int) time.Time {
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}
	if attempts < len(w.Backoff) {
		return now.Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return now.Add(w.Backoff[len(w.Backoff)-1])
	}
	return now.Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://petchat"
}

func (w *Worker) log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.New(slog.DiscardHandler)
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")
