package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"petchat/internal/app/dto"
)

// HTTPAdapter talks to the REST API under BaseURL (e.g. http://host/api).
type HTTPAdapter struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPAdapter(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (a *HTTPAdapter) CreateOrGetRoom(ctx context.Context, listingID, interestedUserID string) (dto.ChatRoom, error) {
	q := url.Values{"adoptionListingId": {listingID}}
	if interestedUserID != "" {
		q.Set("interestedUserId", interestedUserID)
	}
	var room dto.ChatRoom
	err := a.do(ctx, "create room", http.MethodPost, "/chat/rooms", q, nil, &room)
	return room, err
}

func (a *HTTPAdapter) ListRooms(ctx context.Context, userID string) ([]dto.ChatRoom, error) {
	var rooms []dto.ChatRoom
	err := a.do(ctx, "list rooms", http.MethodGet, "/chat/rooms", userQuery(userID), nil, &rooms)
	return rooms, err
}

func (a *HTTPAdapter) ListMessages(ctx context.Context, roomID, userID string) ([]dto.ChatMessage, error) {
	var msgs []dto.ChatMessage
	err := a.do(ctx, "list messages", http.MethodGet, roomPath(roomID, "messages"), userQuery(userID), nil, &msgs)
	return msgs, err
}

func (a *HTTPAdapter) MarkRead(ctx context.Context, roomID, userID string) (int, error) {
	var resp dto.MarkReadResponse
	err := a.do(ctx, "mark read", http.MethodPost, roomPath(roomID, "read"), userQuery(userID), nil, &resp)
	return resp.Marked, err
}

func (a *HTTPAdapter) SendMessage(ctx context.Context, roomID string, req dto.SendMessageRequest) (dto.ChatMessage, error) {
	var msg dto.ChatMessage
	err := a.do(ctx, "send message", http.MethodPost, roomPath(roomID, "messages"), nil, req, &msg)
	return msg, err
}

func (a *HTTPAdapter) DeactivateRoom(ctx context.Context, roomID string) error {
	return a.do(ctx, "deactivate room", http.MethodPost, roomPath(roomID, "deactivate"), nil, nil, nil)
}

func (a *HTTPAdapter) UploadAttachment(ctx context.Context, roomID string, file Attachment) (dto.ChatMessage, error) {
	const op = "upload attachment"
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := form.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Filename)},
		"Content-Type":        {contentType},
	})
	if err == nil {
		_, err = io.Copy(part, file.Body)
	}
	if err == nil && file.CorrelationID != "" {
		err = form.WriteField("correlationId", file.CorrelationID)
	}
	if err == nil {
		err = form.Close()
	}
	if err != nil {
		return dto.ChatMessage{}, &Error{Op: op, Kind: KindInvalid, Err: err}
	}
	req, err := a.newRequest(ctx, http.MethodPost, roomPath(roomID, "attachments"), nil, &buf)
	if err != nil {
		return dto.ChatMessage{}, &Error{Op: op, Kind: KindInvalid, Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	var msg dto.ChatMessage
	err = a.roundTrip(op, req, &msg)
	return msg, err
}

func (a *HTTPAdapter) UnreadCount(ctx context.Context, userID string) (int, error) {
	var resp dto.UnreadCount
	err := a.do(ctx, "unread count", http.MethodGet, "/notifications/unread/count", userQuery(userID), nil, &resp)
	return resp.Count, err
}

func (a *HTTPAdapter) ListNotifications(ctx context.Context, userID string) ([]dto.Notification, error) {
	var out []dto.Notification
	err := a.do(ctx, "list notifications", http.MethodGet, "/notifications", userQuery(userID), nil, &out)
	return out, err
}

func (a *HTTPAdapter) ListUnreadNotifications(ctx context.Context, userID string) ([]dto.Notification, error) {
	var out []dto.Notification
	err := a.do(ctx, "unread notifications", http.MethodGet, "/notifications/unread", userQuery(userID), nil, &out)
	return out, err
}

func (a *HTTPAdapter) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return a.do(ctx, "mark notification read", http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", userQuery(userID), nil, nil)
}

func (a *HTTPAdapter) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	var resp dto.MarkedCount
	err := a.do(ctx, "mark all notifications read", http.MethodPut, "/notifications/read-all", userQuery(userID), nil, &resp)
	return resp.Marked, err
}

func (a *HTTPAdapter) DeleteNotification(ctx context.Context, id, userID string) error {
	return a.do(ctx, "delete notification", http.MethodDelete, "/notifications/"+url.PathEscape(id), userQuery(userID), nil, nil)
}

func (a *HTTPAdapter) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: KindInvalid, Err: err}
		}
		reader = bytes.NewReader(raw)
	}
	req, err := a.newRequest(ctx, method, path, query, reader)
	if err != nil {
		return &Error{Op: op, Kind: KindInvalid, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.roundTrip(op, req, out)
}

func (a *HTTPAdapter) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	return req, nil
}

func (a *HTTPAdapter) roundTrip(op string, req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("store request failed", "op", op, "error", err)
		return &Error{Op: op, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		a.logger.Debug("store request rejected", "op", op, "status", resp.StatusCode, "error", apiErr.Error)
		return &Error{Op: op, Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Op: op, Kind: KindUnexpected, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func userQuery(userID string) url.Values {
	if userID == "" {
		return nil
	}
	return url.Values{"userId": {userID}}
}

func roomPath(roomID, action string) string {
	return "/chat/rooms/" + url.PathEscape(roomID) + "/" + action
}

var _ Adapter = (*HTTPAdapter)(nil)
