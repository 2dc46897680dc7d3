package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		verbose bool
		debug   bool
	}{
		{"json", false, false},
		{"", true, true},
		{"console", false, false},
		{"console", true, true},
	}
	for _, tt := range tests {
		logger, err := New(tt.format, tt.verbose)
		require.NoError(t, err)
		assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel), "format=%q verbose=%v", tt.format, tt.verbose)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := New("xml", false)
	assert.Error(t, err)
}
