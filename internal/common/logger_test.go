package common

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONToConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, closer := NewLogger(LogConfig{Level: "info", Format: "json", Dir: dir, MaxSizeMB: 1, MaxBackups: 2}, &console)
	logger.Debug("hidden")
	logger.Info("run.start", "run_id", "r1")
	require.NoError(t, closer.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &line))
	assert.Equal(t, "run.start", line["msg"])
	assert.Equal(t, "r1", line["run_id"])

	onDisk, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(onDisk))
}

func TestNewLogger_TextWithoutFile(t *testing.T) {
	var console bytes.Buffer
	logger, closer := NewLogger(LogConfig{Level: "warn", Format: "text"}, &console)
	logger.Info("dropped")
	logger.Warn("sftp.host_key.unverified", "addr", "h:22")
	assert.NoError(t, closer.Close())

	out := console.String()
	assert.NotContains(t, out, "dropped")
	assert.True(t, strings.Contains(out, "msg=sftp.host_key.unverified"), out)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
