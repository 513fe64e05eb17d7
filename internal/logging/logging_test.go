package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCLI(&buf, slog.LevelDebug).With("component", "build")

	logger.Info("phase fired", "phase", "copy-assets", "progress", 25, "error", errors.New("boom here"))

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "INFO  build | phase fired")
	assert.Contains(t, line, "phase=copy-assets")
	assert.Contains(t, line, "progress=25")
	assert.Contains(t, line, `error="boom here"`)
	assert.NotContains(t, line, "component=")
}

func TestCLIHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	logger := NewCLI(&buf, &level)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WARN")

	level.Set(slog.LevelDebug)
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "DEBUG | now visible")
}

func TestCLIHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCLI(&buf, nil).WithGroup("artifact")

	logger.Info("stored", "name", "My-App-release.apk", slog.Group("size", "bytes", 42))
	assert.Contains(t, buf.String(), "artifact.name=My-App-release.apk")
	assert.Contains(t, buf.String(), "artifact.size.bytes=42")
}

func TestJSONMode(t *testing.T) {
	var buf bytes.Buffer
	NewJSON(&buf, nil).Info("hello", "status", "running")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "running", record["status"])
}

func TestParseLevelAndMode(t *testing.T) {
	level, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)

	mode, err := ParseMode("JSON")
	require.NoError(t, err)
	assert.Equal(t, ModeJSON, mode)

	_, err = ParseMode("xml")
	require.Error(t, err)
}

func TestEnsureFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), Ensure(nil))

	logger := Discard()
	assert.Same(t, logger, Ensure(logger))
}
