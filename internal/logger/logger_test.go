package logger

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Additional-Code/tabula/internal/config"
)

func TestBuildHonoursLevel(t *testing.T) {
	logger, err := Build(config.Config{
		Store:         config.Store{Driver: config.DriverMemory},
		Observability: config.Observability{LogLevel: "warn", LogEncoding: "json", ServiceName: "tabula"},
	})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestBuildFallsBackToInfo(t *testing.T) {
	logger, err := Build(config.Config{Observability: config.Observability{LogLevel: "chatty", LogEncoding: "console"}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestIgnoreSyncErr(t *testing.T) {
	assert.NoError(t, ignoreSyncErr(nil))
	assert.NoError(t, ignoreSyncErr(fmt.Errorf("sync /dev/stdout: %w", syscall.EINVAL)))
	assert.Error(t, ignoreSyncErr(syscall.EIO))
}
