package ginserver

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	appchat "petchat/internal/app/chat"
	"petchat/internal/app/dto"
	domainchat "petchat/internal/domain/chat"
	"petchat/internal/infra/storage/s3"
)

// maxAttachmentSize bounds multipart uploads.
const maxAttachmentSize = 10 << 20

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	CreateOrGetRoom(c *gin.Context)
	ListRooms(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	Deactivate(c *gin.Context)
	UploadAttachment(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat Messaging port.
type ChatHandler struct {
	Messaging appchat.Messaging
	Uploader  s3.Uploader
	Logger    *slog.Logger
}

// CreateOrGetRoom returns the room for (adoptionListingId, interestedUserId),
// creating it on first contact.
func (h ChatHandler) CreateOrGetRoom(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Query("adoptionListingId"))
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "adoptionListingId is required"})
		return
	}
	interested := strings.TrimSpace(c.Query("interestedUserId"))
	if interested == "" {
		interested = p.ID
	}
	room, err := h.Messaging.CreateOrGetRoom(c.Request.Context(), p.ID, listingID, interested)
	if err != nil {
		respondError(c, h.Logger, err, "create room", "listing_id", listingID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.RoomFromDomain(room.Room, room.Unread))
}

func (h ChatHandler) ListRooms(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	rooms, err := h.Messaging.ListRooms(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.Logger, err, "list rooms", "user_id", p.ID)
		return
	}
	out := make([]dto.ChatRoom, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, dto.RoomFromDomain(r.Room, r.Unread))
	}
	c.JSON(http.StatusOK, out)
}

// ListMessages returns the room history. Reading history does not mark it
// read; clients call MarkRead afterwards.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	msgs, err := h.Messaging.ListMessages(c.Request.Context(), p.ID, roomID)
	if err != nil {
		respondError(c, h.Logger, err, "list messages", "room_id", roomID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MessagesFromDomain(msgs))
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.SenderID != "" && req.SenderID != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "senderId does not match the authenticated user"})
		return
	}
	kind, err := domainchat.ParseKind(req.Type)
	if err != nil {
		respondError(c, h.Logger, err, "send message")
		return
	}
	msg, err := h.Messaging.SendMessage(c.Request.Context(), appchat.SendParams{
		RoomID:        roomID,
		SenderID:      p.ID,
		Content:       req.Content,
		CorrelationID: req.CorrelationID,
		Kind:          kind,
	})
	if err != nil {
		respondError(c, h.Logger, err, "send message", "room_id", roomID, "user_id", p.ID, "correlation_id", req.CorrelationID)
		return
	}
	c.JSON(http.StatusCreated, dto.MessageFromDomain(msg))
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireSelf(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	n, err := h.Messaging.MarkRead(c.Request.Context(), p.ID, roomID)
	if err != nil {
		respondError(c, h.Logger, err, "mark read", "room_id", roomID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MarkReadResponse{ChatRoomID: roomID, Marked: n})
}

func (h ChatHandler) Deactivate(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	if err := h.Messaging.DeactivateRoom(c.Request.Context(), p.ID, roomID); err != nil {
		respondError(c, h.Logger, err, "deactivate room", "room_id", roomID, "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadAttachment stores the multipart "file" field and sends it as an IMAGE
// or FILE message whose content is the public URL. A retry with the same
// correlationId overwrites the same object and resolves to the first message.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	roomID := c.Param("id")
	summary, err := h.Messaging.GetRoom(c.Request.Context(), p.ID, roomID)
	if err != nil {
		respondError(c, h.Logger, err, "load room", "room_id", roomID, "user_id", p.ID)
		return
	}
	if !summary.Room.Active {
		respondError(c, h.Logger, domainchat.ErrRoomInactive, "upload attachment", "room_id", roomID, "user_id", p.ID)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAttachmentSize)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(fileExt(header.Filename)))
	}
	uploader := h.Uploader
	if uploader == nil {
		uploader = s3.NoopUploader{}
	}
	correlationID := strings.TrimSpace(c.PostForm("correlationId"))
	key := s3.AttachmentKey(roomID, p.ID, correlationID, header.Filename)
	url, err := uploader.Upload(c.Request.Context(), key, file, header.Size, contentType)
	if err != nil {
		respondError(c, h.Logger, err, "upload attachment", "room_id", roomID, "user_id", p.ID)
		return
	}
	kind := domainchat.KindFile
	if strings.HasPrefix(contentType, "image/") {
		kind = domainchat.KindImage
	}
	msg, err := h.Messaging.SendMessage(c.Request.Context(), appchat.SendParams{
		RoomID:        roomID,
		SenderID:      p.ID,
		Content:       url,
		CorrelationID: correlationID,
		Kind:          kind,
	})
	if err != nil {
		respondError(c, h.Logger, err, "send attachment", "room_id", roomID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MessageFromDomain(msg))
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

var _ ChatHTTP = ChatHandler{}
