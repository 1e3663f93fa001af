package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/api/rest"
	"github.com/kasuganosora/socialgraph/command"
	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/game/social"
	"github.com/kasuganosora/socialgraph/identity"
	"github.com/kasuganosora/socialgraph/message"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/notify"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/session"
	"github.com/kasuganosora/socialgraph/store"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "rest-test-secret"

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

// noLookup fails every external lookup; tests only target connected players.
type noLookup struct{}

func (noLookup) LookupByName(context.Context, string) (identity.Profile, error) {
	return identity.Profile{}, identity.ErrNotFound
}

func (noLookup) LookupByID(context.Context, uuid.UUID) (identity.Profile, error) {
	return identity.Profile{}, identity.ErrNotFound
}

type app struct {
	r        *gin.Engine
	sm       *session.Manager
	engine   *social.Engine
	delivery *notify.Delivery
	hooks    *hook.Center
}

func newApp(t *testing.T) *app {
	gin.SetMode(gin.TestMode)
	st := store.New(testutil.SetupTestDB(t))
	msgs, err := message.Load(nil, nil)
	require.NoError(t, err)
	sm := session.NewManager(nopLogger())
	hooks := hook.NewCenter()
	resolver := identity.NewResolver(sm, noLookup{}, testutil.SetupTestCache(t), time.Minute, nopLogger())
	delivery := notify.New(st, sm, 0, nopLogger())
	engine := social.New(st, hooks, msgs, delivery, resolver, nil, config.SocialConfig{CommandName: "friends"}, nopLogger())
	d := command.New(engine, resolver, sm, delivery, msgs, "friends", nopLogger())
	h := rest.NewFriendsHandler(d, engine, nopLogger())

	r := gin.New()
	r.Use(mw.TraceID())
	g := r.Group("/api/friends", mw.Auth(config.SecurityConfig{JWTSecret: secret}))
	g.GET("", h.Info)
	g.POST("/command", h.Command)
	g.GET("/suggest", h.Suggest)
	return &app{r: r, sm: sm, engine: engine, delivery: delivery, hooks: hooks}
}

// login connects a player and returns a token for it.
func (a *app) login(t *testing.T, name string, perms ...string) (social.Player, *session.Session, string) {
	t.Helper()
	if perms == nil {
		perms = []string{"friends.*"}
	}
	p := social.Player{ID: uuid.New(), Name: name}
	s := session.New(p.ID, name)
	a.sm.Register(s)
	tok, err := mw.GenerateToken(p.ID, name, perms, secret, time.Hour)
	require.NoError(t, err)
	return p, s, tok
}

func (a *app) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func pushed(s *session.Session) []string {
	var out []string
	for {
		select {
		case m := <-s.SendChan:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestCommand_Unauthorized(t *testing.T) {
	a := newApp(t)
	w := a.do(http.MethodPost, "/api/friends/command", "", map[string]string{"input": "info"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCommand_AddAndAccept(t *testing.T) {
	a := newApp(t)
	alice, sa, aliceTok := a.login(t, "Alice")
	bob, sb, bobTok := a.login(t, "Bob")

	w := a.do(http.MethodPost, "/api/friends/command", aliceTok, map[string]string{"input": "add Bob"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	require.Len(t, pushed(sa), 1)
	require.Len(t, pushed(sb), 1)

	w = a.do(http.MethodPost, "/api/friends/command", bobTok, map[string]string{"input": "/friends add alice"})
	require.Equal(t, http.StatusOK, w.Code)

	ok, err := a.engine.IsFriend(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"Bob accepted your friend request."}, pushed(sa))
}

func TestCommand_BadBody(t *testing.T) {
	a := newApp(t)
	_, _, tok := a.login(t, "Alice")
	req := httptest.NewRequest(http.MethodPost, "/api/friends/command", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommand_HookFailureReportsNotOK(t *testing.T) {
	a := newApp(t)
	_, _, tok := a.login(t, "Alice")
	a.login(t, "Bob")
	a.hooks.Register(0, "broken", hook.DeciderFunc(func(context.Context, hook.Transition) (hook.Decision, error) {
		return hook.Decision{}, assert.AnError
	}))

	w := a.do(http.MethodPost, "/api/friends/command", tok, map[string]string{"input": "add Bob"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":false}`, w.Body.String())
}

func TestSuggest(t *testing.T) {
	a := newApp(t)
	_, _, tok := a.login(t, "Alice")
	a.login(t, "Bob")
	a.login(t, "Bella")

	w := a.do(http.MethodGet, "/api/friends/suggest?input=add+b", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestions":["Bella","Bob"]}`, w.Body.String())

	w = a.do(http.MethodGet, "/api/friends/suggest?input=unblock+", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"suggestions":[]}`, w.Body.String())
}

func TestInfo(t *testing.T) {
	a := newApp(t)
	alice, _, tok := a.login(t, "Alice")
	bob, _, _ := a.login(t, "Bob")
	_, err := a.engine.Block(context.Background(), alice, bob)
	require.NoError(t, err)

	w := a.do(http.MethodGet, "/api/friends", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap social.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Empty(t, snap.Friends)
	assert.Equal(t, []social.Player{bob}, snap.Blocked)
}

func TestInfo_Forbidden(t *testing.T) {
	a := newApp(t)
	_, _, tok := a.login(t, "Alice", command.PermRoot)
	w := a.do(http.MethodGet, "/api/friends", tok, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
