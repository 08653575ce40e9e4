package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"capplan/internal/config"
)

func TestNewStdout(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "debug", Output: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewFileRotates(t *testing.T) {
	dir := t.TempDir()
	log, err := New(config.LoggingConfig{Level: "info", Output: "file", Path: dir, MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)
	log.Infow("hello", "component", "test")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, Filename))
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"component":"test"`)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
	_, err = New(config.LoggingConfig{Output: "syslog"})
	require.Error(t, err)
	_, err = New(config.LoggingConfig{Output: "file"})
	require.Error(t, err)
}
