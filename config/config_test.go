package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "security:\n  jwt_secret: s\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalGCInterval)
	assert.Equal(t, "socialgraph:", cfg.Cache.RedisPrefix)
	assert.Equal(t, 5*time.Second, cfg.Identity.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Identity.CacheTTL)
	assert.Equal(t, "friends", cfg.Social.CommandName)
	assert.Zero(t, cfg.Social.NewsExpiration)
	assert.Equal(t, 10*time.Minute, cfg.Social.NewsPurgeInterval)
	assert.Equal(t, []string{"player_friend_removed"}, cfg.Social.DisabledMessages)
	assert.Equal(t, "s", cfg.Security.JWTSecret)
}

func TestLoad_FileValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9000
  admin_key: k
social:
  command_name: f
  news_expiration: 24h
  max_friends: 50
  disabled_messages: []
messages:
  request_sent: "sent to {{.player}}"
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "k", cfg.Server.AdminKey)
	assert.Equal(t, "f", cfg.Social.CommandName)
	assert.Equal(t, 24*time.Hour, cfg.Social.NewsExpiration)
	assert.Equal(t, 50, cfg.Social.MaxFriends)
	assert.Empty(t, cfg.Social.DisabledMessages)
	assert.Equal(t, "sent to {{.player}}", cfg.Messages["request_sent"])
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SOCIAL_SERVER_PORT", "7777")
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
