package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/game/social"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "sse-test-secret"

// greeter pushes a fixed two-line text on connect.
type greeter struct {
	sm *session.Manager
}

func (g greeter) OnConnect(_ context.Context, p social.Player) error {
	g.sm.Send(p.ID, "welcome "+p.Name+"\nsecond line")
	return nil
}

func newServer(t *testing.T, origins []string) (*httptest.Server, *session.Manager) {
	gin.SetMode(gin.TestMode)
	sm := session.NewManager(zap.NewNop())
	h := NewHandler(sm, greeter{sm: sm}, origins, zap.NewNop())
	r := gin.New()
	r.GET("/sse", mw.Auth(config.SecurityConfig{JWTSecret: secret}), h.ServeSSE)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sm
}

// readEvent reads lines up to the next blank line.
func readEvent(t *testing.T, rd *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestServeSSE_Unauthorized(t *testing.T) {
	srv, _ := newServer(t, nil)
	resp, err := http.Get(srv.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeSSE_ForbiddenOrigin(t *testing.T) {
	srv, _ := newServer(t, []string{"https://game.example"})
	tok, err := mw.GenerateToken(uuid.New(), "Alice", nil, secret, time.Hour)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sse?token="+tok, nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeSSE_SessionLifecycle(t *testing.T) {
	srv, sm := newServer(t, nil)
	id := uuid.New()
	tok, err := mw.GenerateToken(id, "Alice", nil, secret, time.Hour)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sse?token=" + tok)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	assert.Equal(t, []string{"event: connected", "data: {}"}, readEvent(t, rd))
	assert.Equal(t, []string{"event: message", "data: welcome Alice", "data: second line"}, readEvent(t, rd))
	assert.True(t, sm.IsOnline(id))

	assert.True(t, sm.Send(id, "ping"))
	assert.Equal(t, []string{"event: message", "data: ping"}, readEvent(t, rd))

	resp.Body.Close()
	assert.Eventually(t, func() bool { return !sm.IsOnline(id) }, 2*time.Second, 10*time.Millisecond)
}

func TestServeSSE_DisplacedSessionEnds(t *testing.T) {
	srv, sm := newServer(t, nil)
	id := uuid.New()
	tok, err := mw.GenerateToken(id, "Alice", nil, secret, time.Hour)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sse?token=" + tok)
	require.NoError(t, err)
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)
	readEvent(t, rd) // connected
	readEvent(t, rd) // welcome

	replacement := session.New(id, "Alice")
	sm.Register(replacement)

	assert.Equal(t, []string{"event: closed", "data: session replaced"}, readEvent(t, rd))
	// The old stream must not evict its replacement.
	time.Sleep(50 * time.Millisecond)
	assert.Same(t, replacement, sm.Get(id))
}
