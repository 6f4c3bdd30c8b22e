package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dispatchline/internal/config"
)

func TestNewHonoursLevel(t *testing.T) {
	for level, want := range map[string]zap.AtomicLevel{
		"debug": zap.NewAtomicLevelAt(zap.DebugLevel),
		"warn":  zap.NewAtomicLevelAt(zap.WarnLevel),
		"":      zap.NewAtomicLevelAt(zap.InfoLevel),
	} {
		logger, err := New(config.LogConfig{Level: level, Format: "json"})
		require.NoError(t, err)
		assert.Equal(t, want.Level() == zap.DebugLevel, logger.Core().Enabled(zap.DebugLevel), level)
		assert.True(t, logger.Core().Enabled(zap.WarnLevel), level)
	}
}
