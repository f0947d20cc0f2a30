package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return token
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, &Claims{
		UserID:   "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	claims, err := ParseClaims(token)

	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Owner())
	assert.Equal(t, "alice", claims.Username)
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Minute)))
}

func TestParseClaimsFallsBackToSubject(t *testing.T) {
	token := sign(t, jwt.RegisteredClaims{Subject: "u2"})

	claims, err := ParseClaims(token)

	require.NoError(t, err)
	assert.Equal(t, "u2", claims.Owner())
	assert.False(t, claims.Expired(time.Now()))
}

func TestParseClaimsRejectsGarbage(t *testing.T) {
	_, err := ParseClaims("")
	assert.Error(t, err)

	_, err = ParseClaims("not.a.jwt")
	assert.Error(t, err)
}

func TestBearerHeader(t *testing.T) {
	assert.Equal(t, "Bearer abc", BearerHeader("abc"))
}
