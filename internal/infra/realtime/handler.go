package realtime

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"petchat/internal/infra/security"
)

// TokenVerifier validates bearer tokens presented at handshake.
type TokenVerifier interface {
	Parse(token string) (*security.Claims, error)
}

// Handler upgrades authenticated requests to live connections.
type Handler struct {
	Hub      *Hub
	Tokens   TokenVerifier
	Upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, tokens TokenVerifier, allowedOrigins []string) Handler {
	return Handler{
		Hub:    hub,
		Tokens: tokens,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Serve authenticates with the Authorization header, falling back to the
// token query parameter for browser clients.
func (h Handler) Serve(c *gin.Context) {
	token := bearer(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" || h.Tokens == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	claims, err := h.Tokens.Parse(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Hub.logger.Warn("live upgrade failed", "error", err)
		return
	}
	client := newClient(h.Hub, claims.UserID, conn)
	h.Hub.register(client)
	h.Hub.logger.Debug("live client connected", "user_id", claims.UserID)
	go client.writePump()
	go client.readPump()
}

func bearer(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
