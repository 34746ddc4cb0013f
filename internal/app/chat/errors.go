package chat

import "errors"

var (
	// ErrUnavailable means the messaging backend could not be reached.
	ErrUnavailable = errors.New("chat: messaging unavailable")
	// ErrUpstream means the messaging backend failed while handling a call.
	ErrUpstream = errors.New("chat: messaging backend failed")
)
