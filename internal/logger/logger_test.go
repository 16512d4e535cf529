package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omnifs.log")
	require.NoError(t, Configure("warn", "json", path))
	t.Cleanup(func() { _ = Configure("INFO", "text", "stdout") })

	Info("hidden %d", 1)
	Warn("stored %s", "object")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "stored object", entry["msg"])
}

func TestConfigure_TextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "omnifs.log")
	require.NoError(t, Configure("DEBUG", "text", path))
	t.Cleanup(func() { _ = Configure("INFO", "text", "stdout") })

	Debug("listing %s", "s3://reports")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] listing s3://reports")
}

func TestConfigure_BadOutput(t *testing.T) {
	err := Configure("INFO", "text", filepath.Join(t.TempDir(), "missing", "omnifs.log"))
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}
