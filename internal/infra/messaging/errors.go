package messaging

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
)

const errorDomain = "chat.petchat"

// reasons pins each domain sentinel to a gRPC code and an ErrorInfo reason so
// the client can restore the exact sentinel.
var reasons = []struct {
	reason string
	code   codes.Code
	err    error
}{
	{"EMPTY_CONTENT", codes.InvalidArgument, domainchat.ErrEmptyContent},
	{"SELF_CONVERSATION", codes.InvalidArgument, domainchat.ErrSelfConversation},
	{"INVALID_ARGUMENT", codes.InvalidArgument, domainchat.ErrInvalidArgument},
	{"NOT_PARTICIPANT", codes.PermissionDenied, domainchat.ErrNotParticipant},
	{"ROOM_NOT_FOUND", codes.NotFound, domainchat.ErrRoomNotFound},
	{"LISTING_NOT_FOUND", codes.NotFound, domainchat.ErrListingNotFound},
	{"USER_NOT_FOUND", codes.NotFound, domainchat.ErrUserNotFound},
	{"ROOM_INACTIVE", codes.FailedPrecondition, domainchat.ErrRoomInactive},
}

// statusError converts a service error into a gRPC status.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	for _, r := range reasons {
		if !errors.Is(err, r.err) {
			continue
		}
		st := status.New(r.code, err.Error())
		if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: r.reason, Domain: errorDomain}); derr == nil {
			st = detailed
		}
		return st.Err()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, appchat.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}

// remoteError keeps the server's message while unwrapping to the sentinel.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

// domainError converts a gRPC status back into the sentinel the chat layer
// understands. Transport failures become appchat.ErrUnavailable and anything
// unrecognised becomes appchat.ErrUpstream.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", appchat.ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", appchat.ErrUpstream, err)
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != errorDomain {
			continue
		}
		for _, r := range reasons {
			if r.reason == info.GetReason() {
				return &remoteError{sentinel: r.err, msg: st.Message()}
			}
		}
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", appchat.ErrUnavailable, st.Message())
	case codes.InvalidArgument:
		return &remoteError{sentinel: domainchat.ErrInvalidArgument, msg: st.Message()}
	case codes.PermissionDenied:
		return &remoteError{sentinel: domainchat.ErrNotParticipant, msg: st.Message()}
	case codes.NotFound:
		return &remoteError{sentinel: domainchat.ErrRoomNotFound, msg: st.Message()}
	case codes.FailedPrecondition:
		return &remoteError{sentinel: domainchat.ErrRoomInactive, msg: st.Message()}
	default:
		return fmt.Errorf("%w: %s", appchat.ErrUpstream, st.Message())
	}
}
