package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-jwt-secret")

func TestNewAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	sub := uuid.NewString()
	exp := time.Now().Add(15 * time.Minute).UTC()

	tok, err := NewAccessToken(sub, "admin", exp, testSecret)
	require.NoError(t, err)

	claims, err := AccessClaimsFromToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, sub, claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestAccessClaimsFromToken_Rejects(t *testing.T) {
	t.Parallel()

	expired, err := NewAccessToken("u", "user", time.Now().Add(-time.Minute), testSecret)
	require.NoError(t, err)
	_, err = AccessClaimsFromToken(expired, testSecret)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))

	other, err := NewAccessToken("u", "user", time.Now().Add(time.Minute), []byte("other"))
	require.NoError(t, err)
	_, err = AccessClaimsFromToken(other, testSecret)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{Role: "user"})
	signed, err := none.SignedString(testSecret)
	require.NoError(t, err)
	_, err = AccessClaimsFromToken(signed, testSecret)
	assert.Error(t, err)
}

func TestDeleteCookie(t *testing.T) {
	t.Parallel()

	ck := DeleteCookie(AccessCookieName, "/")
	assert.Equal(t, -1, ck.MaxAge)
	assert.Empty(t, ck.Value)
	assert.True(t, ck.HttpOnly)
}
