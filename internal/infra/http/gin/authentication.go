package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"petchat/internal/infra/obs"
	"petchat/internal/infra/security"
)

const principalContextKey = "petchat.principal"

// principal is the caller named by a verified bearer token.
type principal struct {
	ID   string
	Name string
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Parse(token string) (*security.Claims, error)
}

type AuthMiddleware struct {
	Tokens TokenVerifier
	Logger *slog.Logger
}

// Handle attaches the principal when a valid bearer token is present.
// Endpoints decide whether authentication is required.
func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Tokens == nil {
		c.Next()
		return
	}
	claims, err := m.Tokens.Parse(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(principalContextKey, principal{ID: claims.UserID, Name: claims.Name})
	c.Set(obs.UserIDKey, claims.UserID)
	c.Next()
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

// requireSelf authenticates the caller and checks that the userId query
// parameter, when present, names the caller.
func requireSelf(c *gin.Context) (principal, bool) {
	p, ok := requireUser(c)
	if !ok {
		return principal{}, false
	}
	if userID := strings.TrimSpace(c.Query("userId")); userID != "" && userID != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match the authenticated user"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
