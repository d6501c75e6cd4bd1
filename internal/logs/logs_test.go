package logs

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"promolink/internal/config"
)

func TestLevelFromString(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, LevelFromString(" DEBUG "))
	require.Equal(t, zapcore.WarnLevel, LevelFromString("warning"))
	require.Equal(t, zapcore.ErrorLevel, LevelFromString("error"))
	require.Equal(t, zapcore.InfoLevel, LevelFromString("verbose"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(config.Config{AppName: "promolink", LogLevel: "warn"})
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.WarnLevel))
}
