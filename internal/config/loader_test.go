package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the ragchat config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", appDirName)
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Index.TTL.Duration())
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration())
	assert.Equal(t, int64(500*1024), cfg.Index.MaxFileSize)
	assert.Equal(t, ModeScan, cfg.Retrieval.Mode)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider)
	assert.Empty(t, cfg.AI.APIKeys.Values())
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  port: 9191
index:
  content_root: /srv/app
  ttl: 2m
ai:
  provider: OpenAI
  api_keys:
    - key-one
    - key-two
  retry_delay: 10ms
cache:
  max_entries: 50
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/srv/app", cfg.Index.ContentRoot)
	assert.Equal(t, 2*time.Minute, cfg.Index.TTL.Duration())
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, []string{"key-one", "key-two"}, cfg.AI.APIKeys.Values())
	assert.Equal(t, 10*time.Millisecond, cfg.AI.RetryDelay.Duration())
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	// Untouched sections keep their defaults.
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Duration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 9191\n", 0600)

	t.Setenv("SERVER_PORT", "9292")
	t.Setenv("AI_API_KEYS", "alpha, beta,,gamma")
	t.Setenv("INDEX_EXTENSIONS", "CS,ts")
	t.Setenv("UNRELATED_SETTING", "ignored")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9292, cfg.Server.Port)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.AI.APIKeys.Values())
	assert.Equal(t, []string{".cs", ".ts"}, cfg.Index.Extensions)
}

func TestLoad_RejectsPathOutsideConfigDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("server:\n  port: 1\n"), 0600))

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  port: 9191\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	dir := setupTestHome(t)
	body := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
	path := writeConfig(t, dir, body, 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_InvalidValuesFailValidation(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "retrieval:\n  mode: fuzzy\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval mode")
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"AI_API_KEYS", "ai.api_keys"},
		{"INDEX_CONTENT_ROOT", "index.content_root"},
		{"HOME", ""},
		{"PATH_EXTRA", ""},
		{"AI_", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}
