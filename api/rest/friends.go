package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/command"
	"github.com/kasuganosora/socialgraph/game/social"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"go.uber.org/zap"
)

// FriendsHandler exposes the friends command surface over HTTP. Command
// feedback is pushed to the player's SSE stream, not returned here.
type FriendsHandler struct {
	dispatcher *command.Dispatcher
	engine     *social.Engine
	logger     *zap.Logger
}

// NewFriendsHandler creates a new FriendsHandler.
func NewFriendsHandler(d *command.Dispatcher, engine *social.Engine, logger *zap.Logger) *FriendsHandler {
	return &FriendsHandler{dispatcher: d, engine: engine, logger: logger}
}

func source(c *gin.Context) (command.PlayerSource, bool) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return command.PlayerSource{}, false
	}
	return command.PlayerSource{
		P:     social.Player{ID: claims.PlayerUUID(), Name: claims.Name},
		Perms: claims.Permissions,
	}, true
}

// Command handles POST /api/friends/command.
func (h *FriendsHandler) Command(c *gin.Context) {
	src, ok := source(c)
	if !ok {
		return
	}
	var req struct {
		Input string `json:"input"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.dispatcher.Execute(c.Request.Context(), src, req.Input); err != nil {
		h.logger.Warn("friends command failed",
			zap.String("player", src.P.ID.String()),
			zap.String("input", req.Input),
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Suggest handles GET /api/friends/suggest?input=...
func (h *FriendsHandler) Suggest(c *gin.Context) {
	src, ok := source(c)
	if !ok {
		return
	}
	suggestions := h.dispatcher.Suggest(c.Request.Context(), src, c.Query("input"))
	if suggestions == nil {
		suggestions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Info handles GET /api/friends.
func (h *FriendsHandler) Info(c *gin.Context) {
	src, ok := source(c)
	if !ok {
		return
	}
	if !src.HasPermission(command.PermRoot) || !src.HasPermission(command.PermInfo) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	snap, err := h.engine.Info(c.Request.Context(), src.P.ID)
	if err != nil {
		h.logger.Error("friends info failed", zap.String("player", src.P.ID.String()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
