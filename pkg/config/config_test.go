package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Settings.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Settings.CacheTTL)
	assert.Equal(t, 4, cfg.Settings.MaxConcurrent)
	assert.Equal(t, model.ScopeUser, cfg.Settings.DefaultScope)
	assert.Equal(t, model.CommitModeCommit, cfg.Settings.CommitMode)
	assert.Equal(t, state.BackendJSON, cfg.Settings.StateBackend)
	assert.Equal(t, filepath.Join(cfg.Settings.StorageDir, "user"), cfg.Settings.UserDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	t.Setenv("PROMPTREG_TEST_TOKEN", "secret-token")

	configContent := `sources:
  - id: team
    type: local-awesome-copilot
    url: ` + tempDir + `
    collectionsPath: collections
  - id: upstream
    type: awesome-copilot
    url: github/awesome-copilot
    enabled: false
    priority: 5
settings:
  storage_dir: ` + tempDir + `/data
  repository_root: ` + tempDir + `/repo
  default_scope: repository
  commit_mode: local-only
  state_backend: sqlite
  http_timeout: 10s
  cache_ttl: 1m
  github_token: ${PROMPTREG_TEST_TOKEN}
  log_level: DEBUG
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), fsutil.FileModeDefault))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	assert.True(t, cfg.Sources[0].IsEnabled())
	assert.False(t, cfg.Sources[1].IsEnabled())
	assert.Equal(t, "secret-token", cfg.Token())
	assert.Equal(t, "debug", cfg.Settings.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Settings.HTTPTimeout)
	assert.Equal(t, time.Minute, cfg.Settings.CacheTTL)
	assert.Equal(t, 4, cfg.Settings.MaxConcurrent)
	assert.Equal(t, state.BackendSQLite, cfg.Settings.StateBackend)
	assert.Equal(t, filepath.Join(tempDir, "data", "user"), cfg.Settings.UserDir)
	assert.Equal(t, filepath.Join(tempDir, "data", "state"), cfg.StateDir())

	roots := cfg.ScopeRoots()
	assert.Equal(t, filepath.Join(tempDir, "repo"), roots[model.ScopeRepository])
	assert.NotContains(t, roots, model.ScopeWorkspace)

	sources := cfg.RegistrySources()
	require.Len(t, sources, 2)
	assert.Equal(t, "team", sources[0].Name)
	assert.Equal(t, "collections", sources[0].Config.CollectionsPath)
	assert.Equal(t, 5, sources[1].Priority)
	assert.False(t, sources[1].Enabled)
}

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Settings.LogLevel, cfg.Settings.LogLevel)

	_, err = LoadConfig("")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}

func TestSaveConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.LogLevel = "debug"
	require.NoError(t, cfg.AddSource(SourceConfig{ID: "local", Type: model.SourceTypeLocal, URL: "/srv/bundles"}))

	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http_timeout: 30s")

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.Settings.LogLevel)
	require.Len(t, loaded.Sources, 1)
	assert.Equal(t, "local", loaded.Sources[0].ID)

	entries, err := os.ReadDir(filepath.Dir(configPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"invalid scope", func(c *Config) { c.Settings.DefaultScope = "global" }, "DefaultScope"},
		{"invalid commit mode", func(c *Config) { c.Settings.CommitMode = "push" }, "CommitMode"},
		{"invalid backend", func(c *Config) { c.Settings.StateBackend = "redis" }, "StateBackend"},
		{"negative timeout", func(c *Config) { c.Settings.HTTPTimeout = -time.Second }, "HTTPTimeout"},
		{"invalid max concurrent", func(c *Config) { c.Settings.MaxConcurrent = -1 }, "MaxConcurrent"},
		{"invalid log level", func(c *Config) { c.Settings.LogLevel = "trace" }, "LogLevel"},
		{"invalid output format", func(c *Config) { c.Settings.OutputFormat = "xml" }, "OutputFormat"},
		{"source without url", func(c *Config) {
			c.Sources = []SourceConfig{{ID: "a", Type: model.SourceTypeHTTP}}
		}, "URL"},
		{"source with unknown type", func(c *Config) {
			c.Sources = []SourceConfig{{ID: "a", Type: "ftp", URL: "ftp://x"}}
		}, "unsupported source type"},
		{"duplicate source", func(c *Config) {
			s := SourceConfig{ID: "a", Type: model.SourceTypeHTTP, URL: "https://x"}
			c.Sources = []SourceConfig{s, s}
		}, "duplicate source id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/promptreg.yaml")
	p, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/etc/promptreg.yaml", p)

	t.Setenv(EnvConfigPath, "")
	p, err = GetDefaultConfigPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, filepath.Join(fsutil.AppName, "config.yaml")), p)
}

func TestSourceManagement(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.AddSource(SourceConfig{ID: "a", Type: model.SourceTypeHTTP, URL: "https://example.com"}))
	assert.ErrorIs(t, cfg.AddSource(SourceConfig{ID: "a", Type: model.SourceTypeHTTP, URL: "https://other"}), pkgerrors.ErrInvalidConfig)

	src := cfg.GetSource("a")
	require.NotNil(t, src)
	assert.Equal(t, "https://example.com", src.URL)

	assert.True(t, cfg.RemoveSource("a"))
	assert.False(t, cfg.RemoveSource("a"))
	assert.Nil(t, cfg.GetSource("a"))

	cfg.SetSources([]model.Source{{ID: "b", Type: model.SourceTypeLocal, URL: "/srv", Enabled: false}})
	require.Len(t, cfg.Sources, 1)
	assert.False(t, cfg.Sources[0].IsEnabled())
	assert.False(t, cfg.RegistrySources()[0].Enabled)
}

func TestSetAndGetValue(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.SetValue("default_scope", "workspace"))
	require.NoError(t, cfg.SetValue("cache_ttl", "90s"))
	require.NoError(t, cfg.SetValue("max_concurrent", "8"))
	require.NoError(t, cfg.SetValue("github_token", "abc"))

	v, err := cfg.GetValue("default_scope")
	require.NoError(t, err)
	assert.Equal(t, "workspace", v)
	v, err = cfg.GetValue("cache_ttl")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)
	v, err = cfg.GetValue("max_concurrent")
	require.NoError(t, err)
	assert.Equal(t, "8", v)
	v, err = cfg.GetValue("github_token")
	require.NoError(t, err)
	assert.Equal(t, "********", v)

	assert.Error(t, cfg.SetValue("cache_ttl", "soon"))
	assert.ErrorIs(t, cfg.SetValue("default_scope", "global"), pkgerrors.ErrInvalidConfig)
	_, err = cfg.GetValue("nope")
	assert.Error(t, err)
	assert.Error(t, cfg.SetValue("nope", "x"))
}
