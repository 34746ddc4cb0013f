package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/dto"
	"petchat/internal/app/notifications"
	"petchat/internal/infra/config"
	"petchat/internal/infra/obs"
	"petchat/internal/infra/security"
	"petchat/internal/infra/storage/memory"
)

type fakeUploader struct {
	keys []string
	body []byte
}

func (u *fakeUploader) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	u.keys = append(u.keys, key)
	u.body, _ = io.ReadAll(r)
	return "https://cdn.example.com/" + key, nil
}

type apiHarness struct {
	router   http.Handler
	jwt      *security.JWT
	uploader *fakeUploader
}

func newAPI(t *testing.T) apiHarness {
	t.Helper()
	catalog := memory.NewCatalog()
	catalog.Load(memory.CatalogFixtures{
		Listings: []appchat.Listing{{ID: "listing-max", Title: "Max", OwnerID: "owner"}},
		Users:    []appchat.User{{ID: "owner", Name: "Alice"}, {ID: "adopter", Name: "Bob"}, {ID: "stranger", Name: "Eve"}},
	})
	notes := &notifications.Service{Repo: memory.NewNotificationRepository()}
	messaging := appchat.Delivery{
		Messaging: &appchat.Service{Repo: memory.NewChatRepository(), Catalog: catalog, Outbox: memory.NewOutbox()},
		Notifier:  notes,
	}
	tokens, err := security.NewJWT("secret", "petchat")
	require.NoError(t, err)
	uploader := &fakeUploader{}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Messaging: messaging, Uploader: uploader},
		Notifications:  NotificationHandler{Service: notes},
		AuthMiddleware: AuthMiddleware{Tokens: tokens}.Handle,
	})
	return apiHarness{router: router, jwt: tokens, uploader: uploader}
}

func (a apiHarness) do(t *testing.T, user, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := a.jwt.Sign(user, "", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a apiHarness) createRoom(t *testing.T) dto.ChatRoom {
	t.Helper()
	rec := a.do(t, "adopter", http.MethodPost, "/api/chat/rooms?adoptionListingId=listing-max&interestedUserId=adopter", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.ChatRoom](t, rec)
}

func TestAuthRequired(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, "", http.MethodGet, "/api/chat/rooms", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, "adopter", http.MethodGet, "/api/chat/rooms?userId=owner", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateOrGetRoomIsIdempotent(t *testing.T) {
	api := newAPI(t)
	first := api.createRoom(t)
	assert.Equal(t, "Max - Bob", first.Name)
	assert.True(t, first.IsActive)

	rec := api.do(t, "owner", http.MethodPost, "/api/chat/rooms?adoptionListingId=listing-max&interestedUserId=adopter", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[dto.ChatRoom](t, rec).ID)

	rec = api.do(t, "owner", http.MethodGet, "/api/chat/rooms?userId=owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.ChatRoom](t, rec), 1)

	rec = api.do(t, "owner", http.MethodPost, "/api/chat/rooms?adoptionListingId=listing-max&interestedUserId=owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, "adopter", http.MethodPost, "/api/chat/rooms?adoptionListingId=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(t, "adopter", http.MethodPost, "/api/chat/rooms", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendHistoryAndRead(t *testing.T) {
	api := newAPI(t)
	room := api.createRoom(t)
	base := "/api/chat/rooms/" + room.ID

	body := dto.SendMessageRequest{Content: "Is Max still available?", SenderID: "adopter", CorrelationID: "corr-1"}
	rec := api.do(t, "adopter", http.MethodPost, base+"/messages", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sent := decode[dto.ChatMessage](t, rec)
	assert.Equal(t, "corr-1", sent.CorrelationID)
	assert.Equal(t, "owner", sent.ReceiverID)

	rec = api.do(t, "adopter", http.MethodPost, base+"/messages", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, sent.ID, decode[dto.ChatMessage](t, rec).ID)

	rec = api.do(t, "adopter", http.MethodPost, base+"/messages", dto.SendMessageRequest{Content: "spoof", SenderID: "owner"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, "adopter", http.MethodPost, base+"/messages", dto.SendMessageRequest{Content: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, "stranger", http.MethodGet, base+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "owner", http.MethodGet, base+"/messages?userId=owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]dto.ChatMessage](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "Is Max still available?", history[0].Content)
	assert.False(t, history[0].IsRead)

	rec = api.do(t, "owner", http.MethodGet, "/api/notifications/unread/count?userId=owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.UnreadCount](t, rec).Count)

	rec = api.do(t, "owner", http.MethodPost, base+"/read?userId=owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[dto.MarkReadResponse](t, rec).Marked)

	rec = api.do(t, "owner", http.MethodPost, base+"/read?userId=owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[dto.MarkReadResponse](t, rec).Marked)

	rec = api.do(t, "owner", http.MethodGet, "/api/notifications/unread/count", nil)
	assert.Zero(t, decode[dto.UnreadCount](t, rec).Count)
}

func TestDeactivatedRoomRejectsSends(t *testing.T) {
	api := newAPI(t)
	room := api.createRoom(t)
	base := "/api/chat/rooms/" + room.ID

	rec := api.do(t, "owner", http.MethodPost, base+"/deactivate", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, "adopter", http.MethodPost, base+"/messages", dto.SendMessageRequest{Content: "hello?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, "adopter", http.MethodGet, "/api/chat/rooms/missing/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, "owner", http.MethodPost, "/api/notifications/test?userId=owner&title=Hello", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[dto.Notification](t, rec)
	assert.Equal(t, "Hello", created.Title)

	rec = api.do(t, "owner", http.MethodGet, "/api/notifications/paginated?page=0&size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[dto.NotificationPage](t, rec)
	assert.Equal(t, 1, page.TotalElements)
	assert.Equal(t, 5, page.Size)

	rec = api.do(t, "adopter", http.MethodPut, "/api/notifications/"+created.ID+"/read", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, "owner", http.MethodPut, "/api/notifications/"+created.ID+"/read", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, "owner", http.MethodGet, "/api/notifications/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]dto.Notification](t, rec))

	rec = api.do(t, "owner", http.MethodPut, "/api/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[dto.MarkedCount](t, rec).Marked)

	rec = api.do(t, "owner", http.MethodDelete, "/api/notifications/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, "owner", http.MethodDelete, "/api/notifications/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, "owner", http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]dto.Notification](t, rec))
}

func (a apiHarness) upload(t *testing.T, user, roomID, filename, correlationID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="` + filename + `"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	if correlationID != "" {
		require.NoError(t, form.WriteField("correlationId", correlationID))
	}
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/rooms/"+roomID+"/attachments", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	token, err := a.jwt.Sign(user, "", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadAttachmentSendsImageMessage(t *testing.T) {
	api := newAPI(t)
	room := api.createRoom(t)

	rec := api.upload(t, "adopter", room.ID, "max.png", "corr-img")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[dto.ChatMessage](t, rec)
	assert.Equal(t, "IMAGE", msg.Type)
	assert.Equal(t, "corr-img", msg.CorrelationID)
	require.Len(t, api.uploader.keys, 1)
	assert.Equal(t, "https://cdn.example.com/"+api.uploader.keys[0], msg.Content)
	assert.Equal(t, []byte("png-bytes"), api.uploader.body)
}

func TestUploadRetryReusesObjectAndMessage(t *testing.T) {
	api := newAPI(t)
	room := api.createRoom(t)

	rec := api.upload(t, "adopter", room.ID, "max.png", "corr-img")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[dto.ChatMessage](t, rec)

	rec = api.upload(t, "adopter", room.ID, "max.png", "corr-img")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	again := decode[dto.ChatMessage](t, rec)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Content, again.Content)
	require.Len(t, api.uploader.keys, 2)
	assert.Equal(t, api.uploader.keys[0], api.uploader.keys[1])

	rec = api.do(t, "adopter", http.MethodGet, "/api/chat/rooms/"+room.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.ChatMessage](t, rec), 1)
}

func TestUploadToInactiveRoomStoresNothing(t *testing.T) {
	api := newAPI(t)
	room := api.createRoom(t)
	rec := api.do(t, "owner", http.MethodPost, "/api/chat/rooms/"+room.ID+"/deactivate", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.upload(t, "adopter", room.ID, "max.png", "corr-img")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, api.uploader.keys)
}
