package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/estate-assistant/internal/auth"
	"github.com/capitalize-ai/estate-assistant/internal/config"
	"github.com/capitalize-ai/estate-assistant/internal/model"
	"github.com/capitalize-ai/estate-assistant/internal/store"
	"github.com/capitalize-ai/estate-assistant/pkg/logger"
)

func sellerToken(t *testing.T, expires time.Time) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Name:     "Dana",
		UserType: string(model.UserModeSeller),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func loadedStore(t *testing.T, p *store.MemoryPersister) *store.Store {
	t.Helper()
	st := store.New(p, logger.NewNop())
	require.NoError(t, st.Load())
	return st
}

func TestRestoreIdentity(t *testing.T) {
	t.Run("token role applies when none was stored", func(t *testing.T) {
		p := store.NewMemoryPersister()
		require.NoError(t, p.Set(store.KeyAuthToken, sellerToken(t, time.Now().Add(time.Hour))))
		st := loadedStore(t, p)

		restoreIdentity(st, logger.NewNop())

		ident, ok := st.AuthenticatedIdentity()
		require.True(t, ok)
		assert.Equal(t, "u1", ident.ID)
		assert.Equal(t, model.UserModeSeller, st.UserMode())
	})

	t.Run("stored role wins over the token", func(t *testing.T) {
		p := store.NewMemoryPersister()
		require.NoError(t, p.Set(store.KeyAuthToken, sellerToken(t, time.Now().Add(time.Hour))))
		require.NoError(t, p.Set(store.KeyUserMode, string(model.UserModeBuyer)))
		st := loadedStore(t, p)

		restoreIdentity(st, logger.NewNop())

		assert.Equal(t, model.UserModeBuyer, st.UserMode())
	})

	t.Run("expired token signs out", func(t *testing.T) {
		p := store.NewMemoryPersister()
		require.NoError(t, p.Set(store.KeyAuthToken, sellerToken(t, time.Now().Add(-time.Minute))))
		require.NoError(t, p.Set(store.KeyCurrentChatID, "abc"))
		st := loadedStore(t, p)

		restoreIdentity(st, logger.NewNop())

		_, ok := st.AuthenticatedIdentity()
		assert.False(t, ok)
		assert.Empty(t, st.AuthToken())
		assert.Empty(t, st.CurrentChatID())
	})
}

func TestNewTransport(t *testing.T) {
	st := store.New(store.NewMemoryPersister(), logger.NewNop())

	assert.Nil(t, newTransport(&config.Config{LiveTransport: config.TransportNone}, st, logger.NewNop()))
	assert.Nil(t, newTransport(&config.Config{LiveTransport: "carrier-pigeon"}, st, logger.NewNop()))
	assert.NotNil(t, newTransport(&config.Config{LiveTransport: config.TransportWebSocket, WSURL: "ws://localhost:1/live"}, st, logger.NewNop()))
	assert.NotNil(t, newTransport(&config.Config{LiveTransport: config.TransportNATS, NATSURL: "nats://localhost:1"}, st, logger.NewNop()))
}
