package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-32bytes-padded!!"

func TestGenerateToken_Valid(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "Alice", nil, testSecret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
}

func TestParseToken_Valid(t *testing.T) {
	id := uuid.New()
	tok, err := GenerateToken(id, "Alice", []string{"friends.*"}, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, id, claims.PlayerUUID())
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, []string{"friends.*"}, claims.Permissions)
}

func TestParseToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "Alice", nil, testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "wrong-secret")
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	tok, err := GenerateToken(uuid.New(), "Alice", nil, testSecret, -time.Second)
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestParseToken_Malformed(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testSecret)
	assert.Error(t, err)
}

func TestParseToken_Empty(t *testing.T) {
	_, err := ParseToken("", testSecret)
	assert.Error(t, err)
}

func TestParseToken_NoPlayer(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		PlayerID: "not-a-uuid",
		Name:     "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.Error(t, err)
}

func TestGenerateToken_DifferentPlayers(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	t1, _ := GenerateToken(id1, "Alice", nil, testSecret, time.Hour)
	t2, _ := GenerateToken(id2, "Bob", nil, testSecret, time.Hour)
	assert.NotEqual(t, t1, t2)

	c1, _ := ParseToken(t1, testSecret)
	c2, _ := ParseToken(t2, testSecret)
	assert.Equal(t, id1, c1.PlayerUUID())
	assert.Equal(t, id2, c2.PlayerUUID())
}
