package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestTaskLoggerWritesName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triad.log")

	logger, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Task("receiver").Info("Receive timeout",
		zap.Int("attempt", 2),
		zap.Duration("timeout", 2*time.Second))
	logger.Task("receiver").Debug("filtered")
	logger.Flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"task":"receiver"`)
	assert.Contains(t, string(data), `"message":"Receive timeout"`)
	assert.Contains(t, string(data), `"timeout":"2s"`)
	assert.NotContains(t, string(data), "filtered")
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LogConfig{Level: "debug", Development: true, Output: "stderr"})
	assert.Equal(t, Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}, cfg)

	assert.Empty(t, FromConfig(config.LogConfig{Level: "info"}).OutputPaths)
}

func TestDevelopmentLogger(t *testing.T) {
	logger, err := New(Config{Level: "debug", Development: true, OutputPaths: []string{filepath.Join(t.TempDir(), "dev.log")}})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	assert.NotNil(t, NewNop().Task("x"))
}
