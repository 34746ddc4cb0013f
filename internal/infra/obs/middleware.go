package obs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// UserIDKey is the gin context key the auth middleware stores the caller under.
	UserIDKey = "user_id"
	// RequestIDHeader is echoed on responses and copied onto outbox records.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
)

type Middleware struct {
	Logger *slog.Logger
}

// RequestID accepts a caller-supplied id or mints one, and makes it
// available to handlers through the request context.
func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

// LoggerMiddleware writes one access line per request. Health endpoints are
// skipped and the websocket upgrade is logged when the connection ends.
func (m Middleware) LoggerMiddleware() gin.HandlerFunc {
	if m.Logger == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log := m.Logger
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/livez", "/readyz":
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		}
		if user := c.GetString(UserIDKey); user != "" {
			attrs = append(attrs, "user_id", user)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		log.Log(c.Request.Context(), level, "http", attrs...)
	}
}

type ctxRequestID struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID{}).(string)
	return id
}
