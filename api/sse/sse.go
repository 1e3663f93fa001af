package sse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/game/social"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/session"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Connector runs the connect flow for a newly registered player.
// *social.Engine satisfies it.
type Connector interface {
	OnConnect(ctx context.Context, p social.Player) error
}

// Handler handles the SSE endpoint.
type Handler struct {
	sm        *session.Manager
	connector Connector
	origins   []string
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler. An empty origins list allows every
// origin.
func NewHandler(sm *session.Manager, connector Connector, origins []string, logger *zap.Logger) *Handler {
	return &Handler{sm: sm, connector: connector, origins: origins, logger: logger}
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.origins) == 0 || origin == "" {
		return true
	}
	for _, o := range h.origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// ServeSSE handles GET /sse?token=<jwt>. It must run behind middleware.Auth.
// The stream is the player's session: messages for the player are written
// as "message" events until the client disconnects or the session is
// displaced by a newer one.
func (h *Handler) ServeSSE(c *gin.Context) {
	claims := mw.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if !h.originAllowed(c.GetHeader("Origin")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	p := social.Player{ID: claims.PlayerUUID(), Name: claims.Name}
	s := session.New(p.ID, p.Name)
	h.sm.Register(s)
	defer func() {
		h.sm.Unregister(s)
		s.Close()
	}()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	// Queued notifications may exceed the session buffer, so the connect
	// flow runs while the loop below is already draining.
	go func() {
		if err := h.connector.OnConnect(context.WithoutCancel(c.Request.Context()), p); err != nil {
			h.logger.Warn("connect flow failed", zap.String("player", p.ID.String()), zap.Error(err))
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.SendChan:
			writeEvent(c.Writer, "message", msg)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-s.Done:
			writeEvent(c.Writer, "closed", "session replaced")
			c.Writer.Flush()
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

// writeEvent writes one event; multi-line text becomes several data lines.
func writeEvent(w gin.ResponseWriter, event, text string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
