package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("HISTORY_PAGE_SIZE", "")

	cfg := Load()

	assert.Equal(t, "8787", cfg.ServerPort)
	assert.Equal(t, 10, cfg.HistoryPageSize)
	assert.Equal(t, 5*time.Second, cfg.AlertDuration)
	assert.Equal(t, "property-search", cfg.DefaultChatMode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("HISTORY_PAGE_SIZE", "25")
	t.Setenv("ALERT_DURATION", "2s")
	t.Setenv("DEV_BACKEND", "true")
	t.Setenv("LIVE_TRANSPORT", "nats")

	cfg := Load()

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, 25, cfg.HistoryPageSize)
	assert.Equal(t, 2*time.Second, cfg.AlertDuration)
	assert.True(t, cfg.DevBackend)
	assert.Equal(t, TransportNATS, cfg.LiveTransport)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HISTORY_PAGE_SIZE", "lots")
	t.Setenv("ALERT_DURATION", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.HistoryPageSize)
	assert.Equal(t, 5*time.Second, cfg.AlertDuration)
}
