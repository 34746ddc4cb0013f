package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/dto"
	domainchat "petchat/internal/domain/chat"
	"petchat/internal/infra/security"
)

type participantsOnly map[string][]string

func (p participantsOnly) GetRoom(ctx context.Context, actorID, roomID string) (appchat.RoomSummary, error) {
	for _, id := range p[roomID] {
		if id == actorID {
			return appchat.RoomSummary{Room: domainchat.Room{ID: roomID}}, nil
		}
	}
	return appchat.RoomSummary{}, domainchat.ErrNotParticipant
}

type harness struct {
	hub    *Hub
	server *httptest.Server
	jwt    *security.JWT
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := security.NewJWT("secret", "petchat")
	require.NoError(t, err)
	hub := NewHub(participantsOnly{"r1": {"owner", "adopter"}}, nil)
	router := gin.New()
	router.GET("/ws", NewHandler(hub, tokens, []string{"*"}).Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return harness{hub: hub, server: srv, jwt: tokens}
}

func (h harness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := h.jwt.Sign(userID, "", time.Hour)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(h.server), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	env, err := dto.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func receive(t *testing.T, conn *websocket.Conn) dto.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env dto.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandshakeRequiresToken(t *testing.T) {
	h := newHarness(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(h.server), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer forged")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(h.server), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinChecksParticipants(t *testing.T) {
	h := newHarness(t)
	stranger := h.dial(t, "stranger")

	send(t, stranger, dto.EventJoinRoom, "chat_r1")
	env := receive(t, stranger)
	assert.Equal(t, dto.EventError, env.Event)
	assert.Zero(t, h.hub.Subscribers("chat_r1"))

	send(t, stranger, dto.EventJoinRoom, "room-r1")
	env = receive(t, stranger)
	assert.Equal(t, dto.EventError, env.Event)
}

func TestAdvisoryRelayAndCanonicalBroadcast(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "owner")
	adopter := h.dial(t, "adopter")

	send(t, owner, dto.EventJoinRoom, "chat_r1")
	send(t, adopter, dto.EventJoinRoom, "chat_r1")
	require.Eventually(t, func() bool { return h.hub.Subscribers("chat_r1") == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, adopter, dto.EventChatMessage, dto.LiveChatMessage{
		ChatRoomID:        "r1",
		Content:           "Is Max still available?",
		SenderID:          "owner",
		AdoptionListingID: "listing-max",
		CorrelationID:     "corr-1",
	})

	env := receive(t, owner)
	require.Equal(t, dto.EventChatMessage, env.Event)
	var preview dto.ChatMessage
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.True(t, preview.Advisory)
	assert.Equal(t, "adopter", preview.SenderID)
	assert.Equal(t, "corr-1", preview.CorrelationID)
	assert.Empty(t, preview.ID)

	h.hub.BroadcastToRoom("chat_r1", dto.EventMessage, dto.ChatMessage{ID: "m1", ChatRoomID: "r1", CorrelationID: "corr-1"})
	for _, conn := range []*websocket.Conn{adopter, owner} {
		env := receive(t, conn)
		require.Equal(t, dto.EventMessage, env.Event)
		var canonical dto.ChatMessage
		require.NoError(t, json.Unmarshal(env.Data, &canonical))
		assert.Equal(t, "m1", canonical.ID)
	}
}

func TestRelayRequiresJoinedRoom(t *testing.T) {
	h := newHarness(t)
	adopter := h.dial(t, "adopter")

	send(t, adopter, dto.EventChatMessage, dto.LiveChatMessage{ChatRoomID: "r1", Content: "hi"})
	env := receive(t, adopter)
	assert.Equal(t, dto.EventError, env.Event)
}

func TestLeaveAndDisconnectReleaseSubscriptions(t *testing.T) {
	h := newHarness(t)
	owner := h.dial(t, "owner")
	adopter := h.dial(t, "adopter")

	send(t, owner, dto.EventJoinRoom, "chat_r1")
	send(t, adopter, dto.EventJoinRoom, "chat_r1")
	require.Eventually(t, func() bool { return h.hub.Subscribers("chat_r1") == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, owner, dto.EventLeaveRoom, "chat_r1")
	require.Eventually(t, func() bool { return h.hub.Subscribers("chat_r1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, adopter.Close())
	require.Eventually(t, func() bool { return h.hub.Subscribers("chat_r1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSendToUserReachesUnjoinedConnections(t *testing.T) {
	h := newHarness(t)
	phone := h.dial(t, "owner")
	laptop := h.dial(t, "owner")
	adopter := h.dial(t, "adopter")
	require.Eventually(t, func() bool { return h.hub.Connections("owner") == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, h.hub.Subscribers("chat_r1"))

	h.hub.SendToUser("owner", dto.EventMessage, dto.ChatMessage{ID: "m1", ChatRoomID: "r1", SenderID: "adopter"})
	for _, conn := range []*websocket.Conn{phone, laptop} {
		env := receive(t, conn)
		require.Equal(t, dto.EventMessage, env.Event)
		var msg dto.ChatMessage
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, "m1", msg.ID)
	}

	require.NoError(t, adopter.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var env dto.Envelope
	assert.Error(t, adopter.ReadJSON(&env), "other users get nothing")

	require.NoError(t, phone.Close())
	require.Eventually(t, func() bool { return h.hub.Connections("owner") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://pets.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://pets.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
