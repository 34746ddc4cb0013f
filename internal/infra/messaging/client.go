package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

// Config defines gRPC client settings.
type Config struct {
	Addr        string
	DialTimeout time.Duration
	CallTimeout time.Duration
}

// Client implements appchat.Messaging against a remote messaging service.
type Client struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewClient creates a lazily-connecting client for cfg.Addr.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("messaging: address required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	conn, err := grpc.NewClient(cfg.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: dialTimeout}),
	)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("messaging grpc client ready", "addr", cfg.Addr)
	}
	return NewClientConn(conn, cfg.CallTimeout, logger), nil
}

// NewClientConn wraps an existing connection.
func NewClientConn(conn *grpc.ClientConn, callTimeout time.Duration, logger *slog.Logger) *Client {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Client{conn: conn, callTimeout: callTimeout, logger: logger}
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) CreateOrGetRoom(ctx context.Context, actorID, listingID, interestedUserID string) (appchat.RoomSummary, error) {
	var resp RoomResponse
	req := &CreateOrGetRoomRequest{ActorId: actorID, ListingId: listingID, InterestedUserId: interestedUserID}
	if err := c.invoke(ctx, "CreateOrGetRoom", req, &resp); err != nil {
		return appchat.RoomSummary{}, err
	}
	return mapRoom(resp.Room), nil
}

func (c *Client) GetRoom(ctx context.Context, actorID, roomID string) (appchat.RoomSummary, error) {
	var resp RoomResponse
	if err := c.invoke(ctx, "GetRoom", &GetRoomRequest{ActorId: actorID, RoomId: roomID}, &resp); err != nil {
		return appchat.RoomSummary{}, err
	}
	return mapRoom(resp.Room), nil
}

func (c *Client) ListRooms(ctx context.Context, userID string) ([]appchat.RoomSummary, error) {
	var resp ListRoomsResponse
	if err := c.invoke(ctx, "ListRooms", &ListRoomsRequest{UserId: userID}, &resp); err != nil {
		return nil, err
	}
	items := make([]appchat.RoomSummary, 0, len(resp.Rooms))
	for _, r := range resp.Rooms {
		items = append(items, mapRoom(r))
	}
	return items, nil
}

func (c *Client) ListMessages(ctx context.Context, userID, roomID string) ([]domainchat.Message, error) {
	var resp ListMessagesResponse
	if err := c.invoke(ctx, "ListMessages", &ListMessagesRequest{UserId: userID, RoomId: roomID}, &resp); err != nil {
		return nil, err
	}
	items := make([]domainchat.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		items = append(items, mapMessage(m))
	}
	return items, nil
}

func (c *Client) SendMessage(ctx context.Context, params appchat.SendParams) (domainchat.Message, error) {
	req := &SendMessageRequest{
		RoomId:        params.RoomID,
		SenderId:      params.SenderID,
		Content:       params.Content,
		CorrelationId: params.CorrelationID,
		Kind:          string(params.Kind),
	}
	var resp SendMessageResponse
	if err := c.invoke(ctx, "SendMessage", req, &resp); err != nil {
		return domainchat.Message{}, err
	}
	return mapMessage(resp.Message), nil
}

func (c *Client) MarkRead(ctx context.Context, userID, roomID string) (int, error) {
	var resp MarkReadResponse
	if err := c.invoke(ctx, "MarkRead", &MarkReadRequest{UserId: userID, RoomId: roomID}, &resp); err != nil {
		return 0, err
	}
	return int(resp.Marked), nil
}

func (c *Client) DeactivateRoom(ctx context.Context, userID, roomID string) error {
	var resp DeactivateRoomResponse
	return c.invoke(ctx, "DeactivateRoom", &DeactivateRoomRequest{UserId: userID, RoomId: roomID}, &resp)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	callCtx, cancel := c.wrapCall(ctx)
	defer cancel()
	err := c.conn.Invoke(callCtx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		mapped := domainError(err)
		if c.logger != nil && (errors.Is(mapped, appchat.ErrUnavailable) || errors.Is(mapped, appchat.ErrUpstream)) {
			c.logger.Warn("messaging call failed", "method", method, "error", err)
		}
		return mapped
	}
	return nil
}

func (c *Client) wrapCall(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

var _ appchat.Messaging = (*Client)(nil)
