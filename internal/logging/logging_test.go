package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stagehand/internal/config"
)

func TestJSONOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewWithWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "test").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Contains(t, entry, "time")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewWithWriter(config.LogConfig{Format: "console"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stagehand.log")
	var buf bytes.Buffer
	logger, closer, err := NewWithWriter(config.LogConfig{
		Level:     "debug",
		Format:    "json",
		File:      path,
		MaxSizeMB: 1,
	}, &buf)
	require.NoError(t, err)

	logger.Debug().Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, buf.String(), "to file")
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
