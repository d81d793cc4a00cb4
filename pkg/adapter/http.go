package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

const (
	httpLabel = "http catalog"
	indexFile = "index.json"
)

// httpIndex is the catalog document served at <url>/index.json.
type httpIndex struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Bundles     []model.Bundle `json:"bundles"`
}

// httpAdapter serves a static catalog of archived bundles over HTTP.
type httpAdapter struct {
	source model.Source
	base   string
	opts   Options
	cache  catalogCache[model.Bundle]

	mu          sync.Mutex
	description string
}

func newHTTPAdapter(source model.Source, base string, opts Options) *httpAdapter {
	return &httpAdapter{source: source, base: base, opts: opts}
}

func (a *httpAdapter) Type() model.SourceType { return model.SourceTypeHTTP }

func (a *httpAdapter) FetchMetadata(ctx context.Context) (*model.SourceMetadata, error) {
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	description := a.description
	a.mu.Unlock()
	return metadataFor(a.source, description, bundles), nil
}

func (a *httpAdapter) FetchBundles(ctx context.Context) ([]model.Bundle, error) {
	if bundles, ok := a.cache.get(); ok {
		return bundles, nil
	}

	var index httpIndex
	if err := a.opts.Fetcher.GetJSON(ctx, a.base+"/"+indexFile, &index); err != nil {
		return nil, pkgerrors.NewOperationError(httpLabel, err)
	}
	a.mu.Lock()
	a.description = index.Description
	a.mu.Unlock()

	latest := make(map[string]model.Bundle)
	for _, b := range index.Bundles {
		if b.ID == "" {
			a.opts.Logger.Warn("skipping catalog entry without id", "name", b.Name)
			continue
		}
		if b.Version == "" {
			b.Version = DefaultVersion
		}
		if b.DownloadURL == "" {
			b.DownloadURL = a.conventionalURL(b.ID, b.Version, "bundle.zip")
		}
		if b.ManifestURL == "" {
			b.ManifestURL = a.conventionalURL(b.ID, b.Version, archive.ManifestFile)
		}
		if len(b.Environments) == 0 {
			b.Environments = InferEnvironments(b.Tags)
		}
		b.SourceID = a.source.ID
		if current, ok := latest[b.ID]; !ok || b.NewerThan(&current) {
			latest[b.ID] = b
		}
	}

	bundles := make([]model.Bundle, 0, len(latest))
	for _, b := range latest {
		bundles = append(bundles, b)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })

	a.cache.set(bundles, latest)
	return append([]model.Bundle(nil), bundles...), nil
}

func (a *httpAdapter) conventionalURL(id, version, file string) string {
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("%s/bundles/%s/%s/%s", a.base, id, version, file)
}

func (a *httpAdapter) Validate(ctx context.Context) model.ValidationResult {
	return validateWith(ctx, a.FetchBundles)
}

func (a *httpAdapter) DownloadURL(id, version string) string {
	if b, ok := a.cache.lookup(id); ok && (version == "" || version == b.Version) {
		return b.DownloadURL
	}
	return a.conventionalURL(id, version, "bundle.zip")
}

func (a *httpAdapter) ManifestURL(id, version string) string {
	if b, ok := a.cache.lookup(id); ok && (version == "" || version == b.Version) {
		return b.ManifestURL
	}
	return a.conventionalURL(id, version, archive.ManifestFile)
}

func (a *httpAdapter) DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error) {
	op := httpLabel + ": download " + bundle.ID
	b, err := stateFor(ctx, &a.cache, a.FetchBundles, bundle.ID)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}

	data, err := fetchArchive(ctx, a.opts, a.source.ID, b.ID, bundle.Version, a.DownloadURL(b.ID, bundle.Version))
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	out, err := archive.Extract(ctx, data)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	if err := ensureManifest(out, &b); err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	return out, nil
}

func (a *httpAdapter) Invalidate() {
	a.cache.invalidate()
}
