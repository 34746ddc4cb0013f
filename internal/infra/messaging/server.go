package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "petchat.messaging.v1.Messaging"

// MessagingServer is the server side of the messaging contract.
type MessagingServer interface {
	CreateOrGetRoom(context.Context, *CreateOrGetRoomRequest) (*RoomResponse, error)
	GetRoom(context.Context, *GetRoomRequest) (*RoomResponse, error)
	ListRooms(context.Context, *ListRoomsRequest) (*ListRoomsResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	DeactivateRoom(context.Context, *DeactivateRoomRequest) (*DeactivateRoomResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateOrGetRoom", MessagingServer.CreateOrGetRoom),
		unary("GetRoom", MessagingServer.GetRoom),
		unary("ListRooms", MessagingServer.ListRooms),
		unary("ListMessages", MessagingServer.ListMessages),
		unary("SendMessage", MessagingServer.SendMessage),
		unary("MarkRead", MessagingServer.MarkRead),
		unary("DeactivateRoom", MessagingServer.DeactivateRoom),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "petchat/messaging/v1/messaging.proto",
}

func unary[Req, Resp any](method string, call func(MessagingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(MessagingServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// RegisterMessagingServer attaches srv to a gRPC server.
func RegisterMessagingServer(r grpc.ServiceRegistrar, srv MessagingServer) {
	r.RegisterService(&serviceDesc, srv)
}

// Server exposes a chat Messaging implementation over gRPC.
type Server struct {
	Messaging appchat.Messaging
	Logger    *slog.Logger
}

func (s *Server) CreateOrGetRoom(ctx context.Context, req *CreateOrGetRoomRequest) (*RoomResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	room, err := s.Messaging.CreateOrGetRoom(ctx, strings.TrimSpace(req.ActorId), strings.TrimSpace(req.ListingId), strings.TrimSpace(req.InterestedUserId))
	if err != nil {
		return nil, statusError(err)
	}
	return &RoomResponse{Room: toWireRoom(room)}, nil
}

func (s *Server) GetRoom(ctx context.Context, req *GetRoomRequest) (*RoomResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	room, err := s.Messaging.GetRoom(ctx, req.ActorId, req.RoomId)
	if err != nil {
		return nil, statusError(err)
	}
	return &RoomResponse{Room: toWireRoom(room)}, nil
}

func (s *Server) ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	rooms, err := s.Messaging.ListRooms(ctx, req.UserId)
	if err != nil {
		return nil, statusError(err)
	}
	resp := &ListRoomsResponse{Rooms: make([]*Room, 0, len(rooms))}
	for _, r := range rooms {
		resp.Rooms = append(resp.Rooms, toWireRoom(r))
	}
	return resp, nil
}

func (s *Server) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	msgs, err := s.Messaging.ListMessages(ctx, req.UserId, req.RoomId)
	if err != nil {
		return nil, statusError(err)
	}
	resp := &ListMessagesResponse{Messages: make([]*Message, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toWireMessage(m))
	}
	return resp, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	kind, err := domainchat.ParseKind(req.Kind)
	if err != nil {
		return nil, statusError(err)
	}
	msg, err := s.Messaging.SendMessage(ctx, appchat.SendParams{
		RoomID:        req.RoomId,
		SenderID:      strings.TrimSpace(req.SenderId),
		Content:       req.Content,
		CorrelationID: req.CorrelationId,
		Kind:          kind,
	})
	if err != nil {
		return nil, statusError(err)
	}
	return &SendMessageResponse{Message: toWireMessage(msg)}, nil
}

func (s *Server) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	n, err := s.Messaging.MarkRead(ctx, req.UserId, req.RoomId)
	if err != nil {
		return nil, statusError(err)
	}
	return &MarkReadResponse{Marked: int32(n)}, nil
}

func (s *Server) DeactivateRoom(ctx context.Context, req *DeactivateRoomRequest) (*DeactivateRoomResponse, error) {
	if s.Messaging == nil {
		return nil, status.Error(codes.Unavailable, "store unavailable")
	}
	if err := s.Messaging.DeactivateRoom(ctx, req.UserId, req.RoomId); err != nil {
		return nil, statusError(err)
	}
	return &DeactivateRoomResponse{}, nil
}

// UnaryLogger logs each call with its status code and latency.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if logger != nil {
			code := status.Code(err)
			level := slog.LevelInfo
			if code == codes.Internal || code == codes.Unknown {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "grpc", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		}
		return resp, err
	}
}

var _ MessagingServer = (*Server)(nil)
