package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_WritesDatedFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	day := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	logger, cleanup, err := New(Options{Dir: dir, Level: "info", Now: func() time.Time { return day }})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Warn("RCKTV Killing PID 42", zap.String("channel", "RCKTV"))
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, "2026-10-17_udpwatch.log"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, " - WARN - Transcoder - RCKTV Killing PID 42")
	assert.Contains(t, text, `"channel": "RCKTV"`)
	assert.NotContains(t, text, "hidden")
}

func TestNew_RejectsBadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNormal_TagsSeverity(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	Normal(zap.New(core), "RCKTV PID 7 is running", zap.Int("pid", 7))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, SeverityNormal, entries[0].ContextMap()["severity"])
	assert.EqualValues(t, 7, entries[0].ContextMap()["pid"])
}

func TestNew_NormalEntriesShowNormalLevel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	day := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	logger, cleanup, err := New(Options{Dir: dir, Level: "info", Now: func() time.Time { return day }})
	require.NoError(t, err)

	logger = logger.With(zap.String("channel", "RCKTV"))
	Normal(logger, "RCKTV PID 42 is running with 239.255.14.5:3199", zap.Int("pid", 42))
	logger.Info("closing UDP socket")
	cleanup()

	data, err := os.ReadFile(filepath.Join(dir, FileName(day)))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, " - NORMAL - Transcoder - RCKTV PID 42 is running with 239.255.14.5:3199")
	assert.Contains(t, text, `"pid": 42`)
	assert.Contains(t, text, `"channel": "RCKTV"`)
	assert.NotContains(t, text, `"severity"`)
	assert.Contains(t, text, " - INFO - Transcoder - closing UDP socket")
}
