package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:4000", cfg.AppAddr)
	assert.Equal(t, "127.0.0.1:4001", cfg.ProtocolAddr)
	assert.Equal(t, "127.0.0.1:4002", cfg.EventAddr)
	assert.Equal(t, 3, cfg.RetryLimit)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadOverlaysPartialFileOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amby.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_addr: \":9000\"\nlog_debug: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.AppAddr)
	assert.True(t, cfg.LogDebug)
	// Unspecified fields keep their defaults.
	assert.Equal(t, "127.0.0.1:4001", cfg.ProtocolAddr)
	assert.Equal(t, 3, cfg.RetryLimit)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_addr: [unterminated\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
