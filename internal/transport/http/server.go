package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/auth"
	"github.com/codehive/collab-server/internal/config"
	"github.com/codehive/collab-server/internal/core"
	"github.com/codehive/collab-server/internal/store"
)

// NewServer builds the HTTP server exposing the collaboration
// WebSocket endpoint and the REST surface around it.
func NewServer(hub *core.Hub, jwtCfg *auth.JWTConfig, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, jwtCfg, cfg, logger)))

	h := NewAPIHandlers(hub.Registry(), st, jwtCfg, logger)
	api := router.Group("/api")
	{
		api.POST("/session", h.CreateSession)
		api.GET("/stats", h.Stats)
		api.GET("/projects/:id/presence", h.Presence)
		api.GET("/projects/:id/activity", h.Activity)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
