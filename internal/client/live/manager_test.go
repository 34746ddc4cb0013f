package live_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/app/dto"
	"petchat/internal/client/live"
	"petchat/internal/client/live/livetest"
)

type recorder struct {
	mu     sync.Mutex
	events []live.Event
}

func (r *recorder) handle(ev live.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []live.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]live.Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []live.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func TestOpenSendsBearerAndConnects(t *testing.T) {
	conn := livetest.NewConn()
	dialer := &livetest.Dialer{Conn: conn}
	rec := &recorder{}

	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws", Token: "tok"}, rec.handle, live.WithDialer(dialer))
	defer m.Close()

	assert.True(t, m.Connected())
	assert.Empty(t, m.LastError())
	require.Len(t, dialer.Headers(), 1)
	assert.Equal(t, "Bearer tok", dialer.Headers()[0].Get("Authorization"))
	assert.Equal(t, []live.Event{live.Connected{}}, rec.snapshot())
}

func TestHandshakeFailureReportsConnectError(t *testing.T) {
	boom := errors.New("401 unauthorized")
	rec := &recorder{}
	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws"}, rec.handle, live.WithDialer(&livetest.Dialer{Err: boom}))

	assert.False(t, m.Connected())
	assert.Equal(t, boom.Error(), m.LastError())
	assert.Equal(t, []live.Event{live.ConnectError{Err: boom}}, rec.snapshot())

	assert.False(t, m.Send(dto.EventChatMessage, dto.LiveChatMessage{Content: "hi"}))
	assert.False(t, m.JoinRoom("chat_r1"))
	assert.Empty(t, m.Subscriptions())
	assert.NoError(t, m.Close())
}

func TestInboundMessagesArriveInOrder(t *testing.T) {
	conn := livetest.NewConn()
	rec := &recorder{}
	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws"}, rec.handle, live.WithDialer(&livetest.Dialer{Conn: conn}))
	defer m.Close()

	conn.Push(dto.EventChatMessage, dto.ChatMessage{ChatRoomID: "r1", Content: "preview", CorrelationID: "c1", Advisory: true})
	conn.Push(dto.EventError, dto.LiveError{Message: "ignored"})
	conn.Push(dto.EventMessage, dto.ChatMessage{ID: "m1", ChatRoomID: "r1", Content: "canonical", CorrelationID: "c1"})

	events := rec.waitFor(t, 3)
	require.Len(t, events, 3)
	first, ok := events[1].(live.MessageReceived)
	require.True(t, ok)
	assert.Equal(t, dto.EventChatMessage, first.Name)
	assert.True(t, first.Message.Advisory)
	second := events[2].(live.MessageReceived)
	assert.Equal(t, dto.EventMessage, second.Name)
	assert.Equal(t, "m1", second.Message.ID)
}

func TestJoinLeaveTracksSubscriptions(t *testing.T) {
	conn := livetest.NewConn()
	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws"}, nil, live.WithDialer(&livetest.Dialer{Conn: conn}))
	defer m.Close()

	require.True(t, m.JoinRoom("chat_r1"))
	require.True(t, m.JoinRoom("chat_r1"))
	require.True(t, m.JoinRoom("chat_r2"))
	assert.Equal(t, []string{"chat_r1", "chat_r2"}, m.Subscriptions())

	require.True(t, m.LeaveRoom("chat_r1"))
	assert.Equal(t, []string{"chat_r2"}, m.Subscriptions())
	assert.Equal(t, []string{"chat_r1", "chat_r1", "chat_r2"}, conn.Keys(dto.EventJoinRoom))
	assert.Equal(t, []string{"chat_r1"}, conn.Keys(dto.EventLeaveRoom))
}

func TestTransportDropReportsDisconnected(t *testing.T) {
	conn := livetest.NewConn()
	rec := &recorder{}
	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws"}, rec.handle, live.WithDialer(&livetest.Dialer{Conn: conn}))
	require.True(t, m.JoinRoom("chat_r1"))

	conn.Drop()
	events := rec.waitFor(t, 2)
	_, ok := events[1].(live.Disconnected)
	assert.True(t, ok)
	assert.False(t, m.Connected())
	assert.NotEmpty(t, m.LastError())
	assert.Empty(t, m.Subscriptions())
	assert.False(t, m.Send(dto.EventChatMessage, nil))
	require.NoError(t, m.Close())
}

func TestCloseIsIdempotentAndSilent(t *testing.T) {
	conn := livetest.NewConn()
	rec := &recorder{}
	m := live.Open(context.Background(), live.Config{URL: "ws://chat/ws"}, rec.handle, live.WithDialer(&livetest.Dialer{Conn: conn}))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, 1, conn.CloseCalls())
	assert.False(t, m.Connected())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []live.Event{live.Connected{}}, rec.snapshot())
}
