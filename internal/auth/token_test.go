package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/estate-assistant/internal/model"
)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name:     "Dana",
		UserType: "seller",
	})

	info, err := ParseToken(token)
	require.NoError(t, err)

	assert.Equal(t, model.Identity{ID: "user-1", DisplayName: "Dana"}, info.Identity)
	assert.Equal(t, model.UserModeSeller, info.UserMode)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Second)))
}

func TestParseTokenRejects(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := ParseToken("")
		assert.True(t, errors.Is(err, model.ErrUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("no subject", func(t *testing.T) {
		_, err := ParseToken(sign(t, Claims{Name: "nobody"}))
		assert.Error(t, err)
	})

	t.Run("unknown user type is ignored", func(t *testing.T) {
		info, err := ParseToken(sign(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
			UserType:         "admin",
		}))
		require.NoError(t, err)
		assert.Empty(t, info.UserMode)
	})
}
