package wa

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_ForwardsLevelsAndModules(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core).Sugar(), "WhatsApp")

	l.Infof("connected to %s", "server")
	l.Sub("Socket").Warnf("frame dropped")
	l.Errorf("boom %d", 1)
	l.Debugf("noise")

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, "connected to server", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "WhatsApp", entries[0].LoggerName)
	require.Equal(t, "WhatsApp.Socket", entries[1].LoggerName)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	require.Equal(t, zapcore.DebugLevel, entries[3].Level)
}
