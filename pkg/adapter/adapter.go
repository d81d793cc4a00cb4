// Package adapter implements the source adapter family: one Adapter per
// provider type, all exposing the same catalog, validation, URL and
// download contract to the registry.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glorpus-work/promptreg/internal/logger"
	"github.com/glorpus-work/promptreg/pkg/archive"
	"github.com/glorpus-work/promptreg/pkg/auth"
	"github.com/glorpus-work/promptreg/pkg/download"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

//go:generate mockgen -destination=./mocks/adapter.go -package=mocks . Adapter

const (
	// DefaultGitHubAPIBase is the GitHub REST API root.
	DefaultGitHubAPIBase = "https://api.github.com"
	// DefaultRawBase serves raw repository files.
	DefaultRawBase = "https://raw.githubusercontent.com"
	// DefaultBranch is used when a git-hosted source names no branch.
	DefaultBranch = "main"

	defaultTimeout = 30 * time.Second
)

// Adapter is the uniform contract over one configured source.
type Adapter interface {
	// Type returns the provider type this adapter serves.
	Type() model.SourceType
	// FetchMetadata summarizes the source.
	FetchMetadata(ctx context.Context) (*model.SourceMetadata, error)
	// FetchBundles returns the full catalog. Results are cached until Invalidate.
	FetchBundles(ctx context.Context) ([]model.Bundle, error)
	// Validate checks the source and never fails; problems are reported in the result.
	Validate(ctx context.Context) model.ValidationResult
	// DownloadURL returns where the payload of a bundle version lives.
	DownloadURL(id, version string) string
	// ManifestURL returns where the manifest of a bundle version lives.
	ManifestURL(id, version string) string
	// DownloadBundle returns the bundle content plus a deployment manifest.
	DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error)
	// Invalidate drops cached catalog state.
	Invalidate()
}

// Options carries the collaborators shared by every adapter.
type Options struct {
	Fetcher       download.Fetcher
	GitHubAPIBase string
	RawBase       string
	// CacheDir, when set, keeps downloaded bundle archives under
	// <CacheDir>/<sourceID> so a version is fetched once.
	CacheDir string
	Logger   *slog.Logger
}

func (o Options) withDefaults(source model.Source) Options {
	var sourceAuth auth.Authenticator
	if source.Config.Token != "" {
		sourceAuth = auth.BearerAuth{Token: source.Config.Token}
	}
	switch f := o.Fetcher.(type) {
	case nil:
		o.Fetcher = download.NewClient(defaultTimeout, "", sourceAuth)
	case *download.Client:
		if sourceAuth != nil {
			o.Fetcher = f.WithAuth(sourceAuth)
		}
	}
	if o.GitHubAPIBase == "" {
		o.GitHubAPIBase = DefaultGitHubAPIBase
	}
	if o.RawBase == "" {
		o.RawBase = DefaultRawBase
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	o.Logger = o.Logger.With("source", source.ID, "type", string(source.Type))
	return o
}

// Resolve builds the adapter for source's declared type. The source location
// is validated here so a malformed source fails before any fetch.
func Resolve(source model.Source, opts Options) (Adapter, error) {
	opts = opts.withDefaults(source)

	switch source.Type {
	case model.SourceTypeLocal:
		root, err := localRoot(source.URL)
		if err != nil {
			return nil, err
		}
		return newLocalAdapter(source, root, opts), nil

	case model.SourceTypeLocalAwesomeCopilot:
		root, err := localRoot(source.URL)
		if err != nil {
			return nil, err
		}
		return newCollectionAdapter(source, newLocalStore(root), "local awesome-copilot collections", opts), nil

	case model.SourceTypeAwesomeCopilot:
		store, err := newGitHubStore(source, opts)
		if err != nil {
			return nil, err
		}
		return newCollectionAdapter(source, store, "awesome-copilot collections", opts), nil

	case model.SourceTypeLocalAPM:
		root, err := localRoot(source.URL)
		if err != nil {
			return nil, err
		}
		return newAPMAdapter(source, newLocalStore(root), "local apm packages", opts), nil

	case model.SourceTypeAPM:
		store, err := newGitHubStore(source, opts)
		if err != nil {
			return nil, err
		}
		return newAPMAdapter(source, store, "apm packages", opts), nil

	case model.SourceTypeGitHub:
		repo, err := parseGitHubRepo(source.URL)
		if err != nil {
			return nil, err
		}
		return newGitHubAdapter(source, repo, opts), nil

	case model.SourceTypeHTTP:
		base, err := httpBase(source.URL)
		if err != nil {
			return nil, err
		}
		return newHTTPAdapter(source, base, opts), nil
	}

	return nil, pkgerrors.NewConfigError("type", string(source.Type), fmt.Sprintf("unsupported source type, expected one of %v", model.SourceTypes()))
}

// catalogCache holds the last fetched catalog together with the per-bundle
// state an adapter needs to download it later.
type catalogCache[S any] struct {
	mu      sync.RWMutex
	loaded  bool
	bundles []model.Bundle
	state   map[string]S
}

func (c *catalogCache[S]) get() ([]model.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false
	}
	return append([]model.Bundle(nil), c.bundles...), true
}

func (c *catalogCache[S]) lookup(id string) (S, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.state[id]
	return s, ok
}

func (c *catalogCache[S]) set(bundles []model.Bundle, state map[string]S) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = true
	c.bundles = bundles
	c.state = state
}

func (c *catalogCache[S]) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.bundles = nil
	c.state = nil
}

// stateFor returns the cached state for id, re-fetching the catalog once when
// the cache does not know it.
func stateFor[S any](ctx context.Context, c *catalogCache[S], fetch func(context.Context) ([]model.Bundle, error), id string) (S, error) {
	if s, ok := c.lookup(id); ok {
		return s, nil
	}
	if _, err := fetch(ctx); err != nil {
		var zero S
		return zero, err
	}
	if s, ok := c.lookup(id); ok {
		return s, nil
	}
	var zero S
	return zero, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
}

func metadataFor(source model.Source, description string, bundles []model.Bundle) *model.SourceMetadata {
	var latest time.Time
	for _, b := range bundles {
		if b.LastUpdated.After(latest) {
			latest = b.LastUpdated
		}
	}
	if latest.IsZero() {
		latest = time.Now().UTC()
	}
	return &model.SourceMetadata{
		Name:        source.Name,
		Description: description,
		BundleCount: len(bundles),
		LastUpdated: latest.Format(time.RFC3339),
	}
}

func validateWith(ctx context.Context, fetch func(context.Context) ([]model.Bundle, error)) model.ValidationResult {
	bundles, err := fetch(ctx)
	if err != nil {
		return model.ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return model.ValidationResult{Valid: true, Errors: []string{}, BundlesFound: len(bundles)}
}

// fetchArchive returns the archive bytes at rawURL. Archives of a pinned
// version are served from the cache dir when one is configured.
func fetchArchive(ctx context.Context, o Options, sourceID, id, version, rawURL string) ([]byte, error) {
	if o.CacheDir == "" || version == "" {
		return o.Fetcher.Get(ctx, rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid download url %s", rawURL)
	}
	p, err := o.Fetcher.Fetch(ctx, download.Item{ID: id, URL: u}, download.Options{Dir: filepath.Join(o.CacheDir, sourceID)})
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}
