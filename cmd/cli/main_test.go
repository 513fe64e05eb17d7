package main

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/apkforge/internal/daemon"
	"github.com/cochaviz/apkforge/internal/logging"
	"github.com/cochaviz/apkforge/internal/setup"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var levelVar slog.LevelVar
	a := &app{levelVar: &levelVar, logger: logging.Discard(), settings: setup.DefaultSettings()}
	root := newRootCommand(a)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func zipFile(t *testing.T, entries ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, entry := range entries {
		_, err := w.Create(entry)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func TestValidateCommand(t *testing.T) {
	out, err := runCLI(t, "validate", zipFile(t, "site/index.html"))
	require.NoError(t, err)
	assert.Equal(t, "zip archive, 1 entries, entry point site/index.html\n", out)

	_, err = runCLI(t, "validate", zipFile(t, "site/app.js"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find an index.html")
}

func TestTokenCommand(t *testing.T) {
	out, err := runCLI(t, "token", "--jwt-secret", "abc", "--subject", "ci")
	require.NoError(t, err)

	claims, err := daemon.ValidateToken([]byte("abc"), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)

	_, err = runCLI(t, "token")
	require.Error(t, err)
}

func TestSetupCommandWritesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var levelVar slog.LevelVar
	a := &app{levelVar: &levelVar, logger: logging.Discard(), settings: setup.DefaultSettings()}
	root := newRootCommand(a)
	root.SetArgs([]string{"--config", path, "--log-level", "error", "setup"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NoError(t, setup.Verify(path))
}

func TestUnknownLogFormatIsRejected(t *testing.T) {
	_, err := runCLI(t, "--log-format", "xml", "validate", "x.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestAppNameDefaultsToArchiveName(t *testing.T) {
	var flags appFlags
	assert.Equal(t, "demo", flags.appName("/tmp/demo.zip"))
	flags.name = " Named "
	assert.Equal(t, "Named", flags.appName("/tmp/demo.zip"))
}
