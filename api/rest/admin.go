package rest

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/game/social"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/session"
	"go.uber.org/zap"
)

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Admin-Key"

// AdminDeps groups what the operator endpoints inspect.
type AdminDeps struct {
	Sessions  *session.Manager
	Hooks     *hook.Center
	Delivery  *notify.Delivery
	Scheduler *scheduler.Scheduler
	Audit     *audit.Service
	Engine    *social.Engine
}

// AdminHandler serves /api/admin. Mount it behind AdminAuth.
type AdminHandler struct {
	deps   AdminDeps
	logger *zap.Logger
}

func NewAdminHandler(deps AdminDeps, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: logger}
}

// Register mounts every admin route on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.GET("/metrics", h.Metrics)
	g.GET("/players", h.ListPlayers)
	g.GET("/players/:id/relations", h.Relations)
	g.GET("/players/:id/audit", h.AuditHistory)
	g.POST("/kick/:id", h.KickPlayer)
	g.POST("/news/purge", h.PurgeNews)
	g.GET("/scheduler", h.ListSchedulerTasks)
}

// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_players":  h.deps.Sessions.Count(),
		"hook_deciders":   h.deps.Hooks.Len(),
		"scheduler_tasks": h.deps.Scheduler.ListTickers(),
	})
}

// GET /api/admin/players
func (h *AdminHandler) ListPlayers(c *gin.Context) {
	sessions := h.deps.Sessions.All()
	players := make([]social.Player, 0, len(sessions))
	for _, s := range sessions {
		players = append(players, social.Player{ID: s.ID, Name: s.Name})
	}
	c.JSON(http.StatusOK, gin.H{"players": players, "count": len(players)})
}

func playerID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// Relations returns any player's friends, requests and blocks.
// GET /api/admin/players/:id/relations
func (h *AdminHandler) Relations(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}
	snap, err := h.deps.Engine.Info(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("admin relations failed", zap.String("player", id.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AuditHistory lists the newest committed transitions touching a player.
// GET /api/admin/players/:id/audit?limit=50
func (h *AdminHandler) AuditHistory(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.deps.Audit.History(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("admin audit history failed", zap.String("player", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": rows})
}

// KickPlayer ends a player's event stream.
// POST /api/admin/kick/:id
func (h *AdminHandler) KickPlayer(c *gin.Context) {
	id, ok := playerID(c)
	if !ok {
		return
	}
	s := h.deps.Sessions.Get(id)
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online"})
		return
	}
	s.Close()
	h.logger.Info("admin kicked player", zap.String("player", id.String()), zap.String("name", s.Name))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PurgeNews deletes expired queued notifications without waiting for the
// scheduled purge.
// POST /api/admin/news/purge
func (h *AdminHandler) PurgeNews(c *gin.Context) {
	n, err := h.deps.Delivery.PurgeExpired(c.Request.Context())
	if err != nil {
		h.logger.Error("admin purge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "purged": n})
}

// ListSchedulerTasks reports each maintenance task with its run counters.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.deps.Scheduler.Tasks()})
}

// AdminAuth compares AdminKeyHeader against adminKey in constant time.
// An empty adminKey turns every admin route into a 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	want := []byte(adminKey)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		got := []byte(c.GetHeader(AdminKeyHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
