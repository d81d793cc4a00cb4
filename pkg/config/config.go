// Package config provides configuration management for promptreg.
// It handles loading, validating and saving the YAML configuration file that
// lists bundle sources and the settings of the registry, the hub manager and
// the installation scopes. Values may reference environment variables, which
// are expanded when the file is loaded.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/state"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "PROMPTREG_CONFIG"

// Config represents the application configuration.
type Config struct {
	Sources  []SourceConfig `yaml:"sources"`
	Settings Settings       `yaml:"settings"`
}

// SourceConfig is a bundle source as written in the configuration file.
type SourceConfig struct {
	ID              string           `yaml:"id"`
	Name            string           `yaml:"name,omitempty"`
	Type            model.SourceType `yaml:"type"`
	URL             string           `yaml:"url"`
	Enabled         *bool            `yaml:"enabled,omitempty"`
	Priority        int              `yaml:"priority,omitempty"`
	Branch          string           `yaml:"branch,omitempty"`
	CollectionsPath string           `yaml:"collectionsPath,omitempty"`
	Token           string           `yaml:"token,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// Storage settings
	StorageDir string `yaml:"storage_dir,omitempty"`
	CacheDir   string `yaml:"cache_dir,omitempty"`

	// Scope roots
	UserDir        string `yaml:"user_dir,omitempty"`
	WorkspaceDir   string `yaml:"workspace_dir,omitempty"`
	RepositoryRoot string `yaml:"repository_root,omitempty"`

	// Installation settings
	DefaultScope model.Scope      `yaml:"default_scope"`
	CommitMode   model.CommitMode `yaml:"commit_mode"`
	StateBackend state.Backend    `yaml:"state_backend"`

	// Network settings
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	GitHubToken   string        `yaml:"github_token,omitempty"`

	// Output settings
	OutputFormat string `yaml:"output_format"` // text, json
	LogLevel     string `yaml:"log_level"`     // debug, info, warn, error
}

// Default configuration values.
const (
	// DefaultCacheTTL is how long the merged bundle catalog is reused.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMaxConcurrent is the default number of sources fetched in parallel.
	DefaultMaxConcurrent = 4

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	storageDir, err := fsutil.GetDataDir()
	if err != nil {
		storageDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}
	cacheDir, err := fsutil.GetCacheDir()
	if err != nil {
		cacheDir = filepath.Join(storageDir, "cache")
	}

	return &Config{
		Sources: []SourceConfig{},
		Settings: Settings{
			StorageDir:    storageDir,
			CacheDir:      cacheDir,
			UserDir:       filepath.Join(storageDir, "user"),
			DefaultScope:  model.ScopeUser,
			CommitMode:    model.CommitModeCommit,
			StateBackend:  state.BackendJSON,
			HTTPTimeout:   DefaultHTTPTimeout,
			CacheTTL:      DefaultCacheTTL,
			MaxConcurrent: DefaultMaxConcurrent,
			OutputFormat:  "text",
			LogLevel:      "info",
		},
	}
}

// GetDefaultConfigPath returns the configuration file path, honoring PROMPTREG_CONFIG.
func GetDefaultConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	dir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, pkgerrors.NewConfigError("config path", "", "path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, pkgerrors.NewConfigError("config path", path, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader, expanding
// ${VAR} references before parsing.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, pkgerrors.NewConfigError("config", "", "failed to parse: "+err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig writes the configuration to path atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return pkgerrors.NewConfigError("config path", "", "path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return pkgerrors.NewConfigError("config path", path, err.Error())
	}
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(absPath, data, fsutil.FileModeSecure); err != nil {
		return pkgerrors.Wrap(err, "failed to save config")
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(YAMLIndent)
	if err := enc.Encode(c); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal config")
	}
	if err := enc.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal config")
	}
	return buf.Bytes(), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return pkgerrors.NewConfigError("config", "", "config is nil")
	}
	s := &c.Settings
	err := validation.ValidateStruct(s,
		validation.Field(&s.StorageDir, validation.Required),
		validation.Field(&s.DefaultScope, validation.Required,
			validation.In(model.ScopeUser, model.ScopeWorkspace, model.ScopeRepository)),
		validation.Field(&s.CommitMode, validation.Required,
			validation.In(model.CommitModeCommit, model.CommitModeLocalOnly)),
		validation.Field(&s.StateBackend, validation.Required,
			validation.In(state.BackendJSON, state.BackendSQLite)),
		validation.Field(&s.HTTPTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&s.MaxConcurrent, validation.Min(1)),
		validation.Field(&s.OutputFormat, validation.In("text", "json")),
		validation.Field(&s.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
	if err != nil {
		return pkgerrors.NewConfigError("settings", "", err.Error())
	}
	return validateSources(c.Sources)
}

func validateSources(sources []SourceConfig) error {
	ids := make(map[string]bool, len(sources))
	for i := range sources {
		src := &sources[i]
		err := validation.ValidateStruct(src,
			validation.Field(&src.ID, validation.Required),
			validation.Field(&src.Type, validation.Required, validation.By(func(any) error {
				if !src.Type.Valid() {
					return fmt.Errorf("unsupported source type")
				}
				return nil
			})),
			validation.Field(&src.URL, validation.Required),
		)
		if err != nil {
			return pkgerrors.NewConfigError(fmt.Sprintf("sources[%d]", i), src.ID, err.Error())
		}
		if ids[src.ID] {
			return pkgerrors.NewConfigError("sources.id", src.ID, "duplicate source id")
		}
		ids[src.ID] = true
	}
	return nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	if c.Settings.StorageDir == "" {
		c.Settings.StorageDir = defaults.Settings.StorageDir
	}
	c.Settings.StorageDir = expandHome(c.Settings.StorageDir)
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	c.Settings.CacheDir = expandHome(c.Settings.CacheDir)
	if c.Settings.UserDir == "" {
		c.Settings.UserDir = filepath.Join(c.Settings.StorageDir, "user")
	}
	c.Settings.UserDir = expandHome(c.Settings.UserDir)
	c.Settings.WorkspaceDir = expandHome(c.Settings.WorkspaceDir)
	c.Settings.RepositoryRoot = expandHome(c.Settings.RepositoryRoot)

	if c.Settings.DefaultScope == "" {
		c.Settings.DefaultScope = defaults.Settings.DefaultScope
	}
	if c.Settings.CommitMode == "" {
		c.Settings.CommitMode = defaults.Settings.CommitMode
	}
	if c.Settings.StateBackend == "" {
		c.Settings.StateBackend = defaults.Settings.StateBackend
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.CacheTTL == 0 {
		c.Settings.CacheTTL = defaults.Settings.CacheTTL
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	c.Settings.LogLevel = strings.ToLower(c.Settings.LogLevel)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// StateDir is the directory holding the Installed Bundle record stores.
func (c *Config) StateDir() string {
	return filepath.Join(c.Settings.StorageDir, "state")
}

// DownloadCacheDir is the directory downloaded archives are cached in.
func (c *Config) DownloadCacheDir() string {
	return filepath.Join(c.Settings.CacheDir, "downloads")
}

// ScopeRoots returns the installation root of every configured scope.
func (c *Config) ScopeRoots() map[model.Scope]string {
	roots := map[model.Scope]string{model.ScopeUser: c.Settings.UserDir}
	if c.Settings.WorkspaceDir != "" {
		roots[model.ScopeWorkspace] = c.Settings.WorkspaceDir
	}
	if c.Settings.RepositoryRoot != "" {
		roots[model.ScopeRepository] = c.Settings.RepositoryRoot
	}
	return roots
}

// Token returns the GitHub token from the settings or the GITHUB_TOKEN variable.
func (c *Config) Token() string {
	if c.Settings.GitHubToken != "" {
		return c.Settings.GitHubToken
	}
	return os.Getenv("GITHUB_TOKEN")
}
