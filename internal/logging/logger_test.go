package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tcases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}

	for level, expect := range tcases {
		t.Run(level, func(t *testing.T) {
			logger, err := NewLogger(level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(expect), "expected %s to be enabled", expect)
			if expect > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(expect-1), "expected %s to be disabled", expect-1)
			}
		})
	}
}
