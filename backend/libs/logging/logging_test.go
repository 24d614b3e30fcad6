package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	require.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	require.Equal(t, zapcore.InfoLevel, ParseLevel(""))

	t.Setenv("LOG_LEVEL", "error")
	require.Equal(t, zapcore.ErrorLevel, ParseLevel(""))
	require.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger("reading-service", "warn")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
