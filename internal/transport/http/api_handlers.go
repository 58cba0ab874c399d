package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/auth"
	"github.com/codehive/collab-server/internal/core"
	"github.com/codehive/collab-server/internal/store"
)

// APIHandlers serves the REST surface around the live session layer:
// session tokens, presence, activity history, and server stats.
type APIHandlers struct {
	registry *core.Registry
	store    store.Store
	jwt      *auth.JWTConfig
	log      *zerolog.Logger
}

// NewAPIHandlers creates the REST handler set.
func NewAPIHandlers(registry *core.Registry, st store.Store, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		registry: registry,
		store:    st,
		jwt:      jwtCfg,
		log:      logger,
	}
}

// CreateSessionRequest is the session token request body.
type CreateSessionRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// CreateSessionResponse carries the signed session token.
type CreateSessionResponse struct {
	Token string `json:"token"`
}

// CreateSession issues a session token attributing events to a display name.
// POST /api/session
func (h *APIHandlers) CreateSession(c *gin.Context) {
	if h.jwt == nil || len(h.jwt.Secret) == 0 {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session tokens are not configured"})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is required (1-64 characters)"})
		return
	}

	token, err := auth.GenerateToken(h.jwt, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate session token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{Token: token})
}

// PresenceResponse describes who is currently in a project session.
type PresenceResponse struct {
	ProjectID  string   `json:"projectId"`
	TotalUsers int      `json:"totalUsers"`
	Users      []string `json:"users"`
}

// Presence reports the live membership of a project session.
// GET /api/projects/:id/presence
func (h *APIHandlers) Presence(c *gin.Context) {
	projectID := c.Param("id")
	users := h.registry.Users(projectID)
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, PresenceResponse{
		ProjectID:  projectID,
		TotalUsers: len(users),
		Users:      users,
	})
}

// ActivityEntry is one recorded membership change.
type ActivityEntry struct {
	User       string `json:"user"`
	Kind       string `json:"kind"`
	OccurredAt string `json:"occurredAt"`
}

// Activity returns recent joins and leaves for a project, newest first.
// GET /api/projects/:id/activity?limit=N
func (h *APIHandlers) Activity(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "activity log is not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	acts, err := h.store.RecentActivity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.log.Error().Err(err).Str("project_id", c.Param("id")).Msg("failed to load activity")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	entries := make([]ActivityEntry, 0, len(acts))
	for _, act := range acts {
		entries = append(entries, ActivityEntry{
			User:       act.User,
			Kind:       string(act.Kind),
			OccurredAt: act.OccurredAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"projectId": c.Param("id"), "activity": entries})
}

// StatsResponse summarizes the live session layer.
type StatsResponse struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

// Stats reports open rooms and total connected members.
// GET /api/stats
func (h *APIHandlers) Stats(c *gin.Context) {
	rooms, members := h.registry.Stats()
	c.JSON(http.StatusOK, StatsResponse{Rooms: rooms, Members: members})
}
