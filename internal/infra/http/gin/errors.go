package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	appchat "petchat/internal/app/chat"
	domainchat "petchat/internal/domain/chat"
	domainnotification "petchat/internal/domain/notification"
	"petchat/internal/infra/storage/s3"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domainchat.ErrInvalidArgument),
		errors.Is(err, domainchat.ErrEmptyContent),
		errors.Is(err, domainchat.ErrSelfConversation),
		errors.Is(err, domainnotification.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domainchat.ErrNotParticipant),
		errors.Is(err, domainnotification.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domainchat.ErrRoomNotFound),
		errors.Is(err, domainchat.ErrListingNotFound),
		errors.Is(err, domainchat.ErrUserNotFound),
		errors.Is(err, domainnotification.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, domainchat.ErrRoomInactive):
		return http.StatusConflict, "room is not active"
	case errors.Is(err, appchat.ErrUnavailable),
		errors.Is(err, s3.ErrNotConfigured),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, appchat.ErrUpstream):
		return http.StatusBadGateway, "upstream failure"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	code, msg := statusFor(err)
	if logger != nil {
		level := slog.LevelInfo
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request failed",
			append([]any{"action", action, "status", code, "error", err, "request_id", c.GetString("request_id")}, attrs...)...)
	}
	c.JSON(code, gin.H{"error": msg})
}
