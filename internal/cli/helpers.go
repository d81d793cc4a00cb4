package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/adapter"
	"github.com/glorpus-work/promptreg/pkg/auth"
	"github.com/glorpus-work/promptreg/pkg/config"
	"github.com/glorpus-work/promptreg/pkg/download"
	"github.com/glorpus-work/promptreg/pkg/history"
	"github.com/glorpus-work/promptreg/pkg/hub"
	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/registry"
	"github.com/glorpus-work/promptreg/pkg/state"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	LogLevel     *string
	OutputFormat *string
)

// app bundles the collaborators a command needs. Close must be called once
// the command is done.
type app struct {
	cfg        *config.Config
	configPath string
	client     *download.Client
	lockfiles  *lockfile.Provider
	registry   *registry.Manager
	hubs       *hub.Manager
	history    *history.Recorder
	closeState func() error
}

func (a *app) Close() error {
	if a.closeState == nil {
		return nil
	}
	return a.closeState()
}

func getConfigPath() (string, error) {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath, nil
	}
	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get default config path: %w", err)
	}
	return defaultPath, nil
}

// loadConfig loads the configuration, applies the global flag overrides and
// initializes the logger.
func loadConfig() (*config.Config, string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}

	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = *OutputFormat
	}
	if LogLevel != nil && *LogLevel != "" {
		cfg.Settings.LogLevel = *LogLevel
	}
	logger.InitLogger(cfg.Settings.LogLevel, logger.FormatText)
	return cfg, configPath, nil
}

func newLockfileProvider() *lockfile.Provider {
	return lockfile.NewProvider(AppName + "@" + Version)
}

// loadApp wires the registry, hub manager and sync history from the configuration.
func loadApp() (*app, error) {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	stores, closer, err := state.OpenStores(cfg.Settings.StateBackend, cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open installed bundle records: %w", err)
	}
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		client:     download.NewClient(cfg.Settings.HTTPTimeout, AppName+"/"+Version, githubAuth(cfg.Token())),
		lockfiles:  newLockfileProvider(),
		closeState: closer.Close,
	}

	a.registry, err = registry.New(registry.Options{
		Sources:    cfg.RegistrySources(),
		Stores:     stores,
		Lockfiles:  a.lockfiles,
		ScopeRoots: cfg.ScopeRoots(),
		Preferences: registry.Preferences{
			DefaultScope: cfg.Settings.DefaultScope,
			CommitMode:   cfg.Settings.CommitMode,
		},
		CacheTTL:    cfg.Settings.CacheTTL,
		Concurrency: cfg.Settings.MaxConcurrent,
		Adapter: adapter.Options{
			Fetcher:  a.client,
			CacheDir: cfg.DownloadCacheDir(),
			Logger:   logger.Component("adapter"),
		},
		SourcesChanged: func(sources []model.Source) error {
			cfg.SetSources(sources)
			return cfg.SaveConfig(configPath)
		},
		Logger: logger.Component("registry"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	historyStore, err := history.NewStore(cfg.Settings.StorageDir)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.history, err = history.NewRecorder(history.Options{
		Store:  historyStore,
		Logger: logger.Component("history"),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	hubStorage, err := hub.NewStorage(cfg.Settings.StorageDir)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.hubs, err = hub.NewManager(hub.Options{
		Storage:    hubStorage,
		Fetcher:    hub.NewRefFetcher(a.client, ""),
		Installer:  a.registry,
		History:    a.history,
		Scope:      cfg.Settings.DefaultScope,
		CommitMode: cfg.Settings.CommitMode,
		Logger:     logger.Component("hub"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create hub manager: %w", err)
	}
	a.history.SetController(a.hubs)

	return a, nil
}

// githubAuth scopes the configured GitHub token to GitHub hosts. A source's
// own token replaces it for that source's requests.
func githubAuth(token string) auth.Authenticator {
	if token == "" {
		return nil
	}
	return auth.ForHosts(auth.BearerAuth{Token: token}, auth.GitHubHosts...)
}

// repositoryRoot returns the --root flag value or the configured repository root.
func repositoryRoot(cfg *config.Config, flag string) (string, error) {
	root := flag
	if root == "" {
		root = cfg.Settings.RepositoryRoot
	}
	if root == "" {
		return "", fmt.Errorf("no repository root: set repository_root or pass --root")
	}
	return filepath.Abs(root)
}

func useJSON(cfg *config.Config) bool {
	return cfg.Settings.OutputFormat == "json"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func parseScope(s string) (model.Scope, error) {
	if s == "" {
		return "", nil
	}
	scope := model.Scope(s)
	if !scope.Valid() {
		return "", fmt.Errorf("unknown scope %q: expected user, workspace or repository", s)
	}
	return scope, nil
}
