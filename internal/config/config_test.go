package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8743, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(cfg.DataDir, "hikmara_kb.db"), cfg.Store.DBPath)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, "go", cfg.Pipeline.FenceTag)
	assert.Equal(t, DuplicatesFail, cfg.Pipeline.Duplicates)
	assert.Equal(t, int64(50*1024*1024), cfg.Pipeline.MaxFileSizeBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HIKMARA_DATA_DIR", dir)
	t.Setenv("HIKMARA_PORT", "9999")
	t.Setenv("HIKMARA_PIPELINE_WORKERS", "4")
	t.Setenv("HIKMARA_PIPELINE_DUPLICATES", "ignore")
	t.Setenv("HIKMARA_STORE_BACKEND", "badger")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, DuplicatesIgnore, cfg.Pipeline.Duplicates)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dir, "hikmara_kb.db"), cfg.Store.DBPath)
	assert.Equal(t, filepath.Join(dir, "badger"), cfg.Store.BadgerDir)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	body := `
data_dir = "` + filepath.ToSlash(dir) + `"
port = 9100

[pipeline]
fence_tag = "python"
exclude = ["*.tmp", "**/.git/**"]

[store]
db_path = "` + filepath.ToSlash(filepath.Join(dir, "kb", "store.db")) + `"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "python", cfg.Pipeline.FenceTag)
	assert.Equal(t, []string{"*.tmp", "**/.git/**"}, cfg.Pipeline.Exclude)
	assert.Equal(t, filepath.Join(dir, "kb", "store.db"), filepath.FromSlash(cfg.Store.DBPath))
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"duplicates", func(c *Config) { c.Pipeline.Duplicates = "merge" }},
		{"workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"fence", func(c *Config) { c.Pipeline.FenceTag = "" }},
		{"port", func(c *Config) { c.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Store.Backend = BackendBadger
	cfg.Store.BadgerDir = filepath.Join(dir, "data", "badger")

	require.NoError(t, cfg.EnsureDirs())

	for _, d := range []string{cfg.DataDir, cfg.Store.BadgerDir} {
		_, err := os.Stat(d)
		assert.NoError(t, err, d)
	}
}
