package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"petchat/internal/app/dto"
	domainnotification "petchat/internal/domain/notification"
)

// NotificationService is the notification use-case surface.
type NotificationService interface {
	List(ctx context.Context, userID string) ([]domainnotification.Notification, error)
	Page(ctx context.Context, userID string, page domainnotification.Page) (domainnotification.PageResult, error)
	Unread(ctx context.Context, userID string) ([]domainnotification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, id string) error
	CreateTest(ctx context.Context, userID, title, message string) (domainnotification.Notification, error)
}

type NotificationHTTP interface {
	List(c *gin.Context)
	Page(c *gin.Context)
	Unread(c *gin.Context)
	UnreadCount(c *gin.Context)
	MarkRead(c *gin.Context)
	MarkAllRead(c *gin.Context)
	Delete(c *gin.Context)
	CreateTest(c *gin.Context)
}

type NotificationHandler struct {
	Service NotificationService
	Logger  *slog.Logger
}

func (h NotificationHandler) List(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	items, err := h.Service.List(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "list notifications", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.NotificationsFromDomain(items))
}

func (h NotificationHandler) Page(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	page := domainnotification.Page{
		Number: parseNonNegativeInt(c.Query("page"), 0),
		Size:   parseNonNegativeInt(c.Query("size"), domainnotification.DefaultPageSize),
	}
	result, err := h.Service.Page(c.Request.Context(), p.ID, page)
	if err != nil {
		respondError(c, h.Logger, err, "page notifications", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.NotificationPageFromDomain(result))
}

func (h NotificationHandler) Unread(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	items, err := h.Service.Unread(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "unread notifications", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.NotificationsFromDomain(items))
}

func (h NotificationHandler) UnreadCount(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	n, err := h.Service.UnreadCount(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "unread count", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCount{Count: n})
}

func (h NotificationHandler) MarkRead(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.Service.MarkRead(c.Request.Context(), p.ID, id); err != nil {
		respondError(c, h.Logger, err, "mark notification read", "notification_id", id, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h NotificationHandler) MarkAllRead(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllRead(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "mark all read", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MarkedCount{Marked: n})
}

func (h NotificationHandler) Delete(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.Service.Delete(c.Request.Context(), p.ID, id); err != nil {
		respondError(c, h.Logger, err, "delete notification", "notification_id", id, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h NotificationHandler) CreateTest(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	n, err := h.Service.CreateTest(c.Request.Context(), p.ID, c.Query("title"), c.Query("message"))
	if err != nil {
		respondError(c, h.Logger, err, "create test notification", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.NotificationFromDomain(n))
}

func parseNonNegativeInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return def
	}
	return value
}

var _ NotificationHTTP = NotificationHandler{}
