package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.Remote.TimeoutDuration())
}

func TestWriteThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Check.Unbundler = true
	cfg.Graft.Enabled = true
	cfg.Graft.Refs = []string{"refs/heads/main"}
	cfg.Remote.Timeout = "5s"
	require.NoError(t, cfg.SetRemote("origin", "https://hg.example.com/repo"))
	require.NoError(t, Write(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[check]"))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, 5*time.Second, loaded.Remote.TimeoutDuration())
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Write(path, Default()))
	t.Setenv("HGBRIDGE_CHECK_FILES", "false")
	t.Setenv("HGBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Check.Files)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestGetSet(t *testing.T) {
	cfg := Default()
	for _, key := range Keys {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}

	require.NoError(t, cfg.Set("check.unbundler", "true"))
	require.NoError(t, cfg.Set("graft.refs", "a, b,,"))
	require.NoError(t, cfg.Set("remote.max_attempts", "7"))
	require.NoError(t, cfg.Set("remotes.up", "https://example.com/hg"))

	assert.True(t, cfg.Check.Unbundler)
	assert.Equal(t, []string{"a", "b"}, cfg.Graft.Refs)
	v, err := cfg.Get("remote.max_attempts")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	assert.Equal(t, "https://example.com/hg", cfg.RemoteURL("up"))
	assert.Equal(t, "https://other", cfg.RemoteURL("https://other"))
	assert.Equal(t, []string{"up"}, cfg.RemoteNames())

	assert.Error(t, cfg.Set("check.files", "maybe"))
	assert.Error(t, cfg.Set("remote.max_attempts", "0"))
	assert.Error(t, cfg.Set("remote.timeout", "soon"))
	assert.Error(t, cfg.Set("nope", "x"))
	_, err = cfg.Get("remotes.missing")
	assert.Error(t, err)
}
