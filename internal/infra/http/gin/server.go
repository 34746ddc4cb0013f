package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"petchat/internal/infra/config"
	"petchat/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Notifications  NotificationHTTP
	Live           gin.HandlerFunc
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Live != nil {
		router.GET("/ws", h.Live)
	}

	api := router.Group("/api")
	if h.Chat != nil {
		rooms := api.Group("/chat/rooms")
		rooms.POST("", h.Chat.CreateOrGetRoom)
		rooms.GET("", h.Chat.ListRooms)
		rooms.GET("/:id/messages", h.Chat.ListMessages)
		rooms.POST("/:id/messages", h.Chat.SendMessage)
		rooms.POST("/:id/read", h.Chat.MarkRead)
		rooms.POST("/:id/deactivate", h.Chat.Deactivate)
		rooms.POST("/:id/attachments", h.Chat.UploadAttachment)
	}
	if h.Notifications != nil {
		n := api.Group("/notifications")
		n.GET("", h.Notifications.List)
		n.GET("/paginated", h.Notifications.Page)
		n.GET("/unread", h.Notifications.Unread)
		n.GET("/unread/count", h.Notifications.UnreadCount)
		n.PUT("/read-all", h.Notifications.MarkAllRead)
		n.PUT("/:id/read", h.Notifications.MarkRead)
		n.DELETE("/:id", h.Notifications.Delete)
		n.POST("/test", h.Notifications.CreateTest)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
