package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGlobal(t *testing.T) {
	prev := Global()
	require.NotNil(t, prev)
	t.Cleanup(func() { SetGlobal(prev) })

	l := NewNop()
	SetGlobal(l)
	assert.Same(t, l, Global())
}

func TestWithSession(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{Logger: zap.New(core)}

	l.WithSession("u1", "s1").Info("sent")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "u1", fields["identity_id"])
	assert.Equal(t, "s1", fields["session_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
