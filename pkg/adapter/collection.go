package adapter

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

type collectionState struct {
	manifestPath string
	manifest     *CollectionManifest
}

// collectionAdapter serves curated collection repositories, local or remote.
type collectionAdapter struct {
	source          model.Source
	store           contentStore
	label           string
	collectionsPath string
	opts            Options
	cache           catalogCache[collectionState]
}

func newCollectionAdapter(source model.Source, store contentStore, label string, opts Options) *collectionAdapter {
	collectionsPath := strings.Trim(source.Config.CollectionsPath, "/")
	if collectionsPath == "" {
		collectionsPath = DefaultCollectionsPath
	}
	return &collectionAdapter{
		source:          source,
		store:           store,
		label:           label,
		collectionsPath: collectionsPath,
		opts:            opts,
	}
}

func (a *collectionAdapter) Type() model.SourceType { return a.source.Type }

func (a *collectionAdapter) FetchMetadata(ctx context.Context) (*model.SourceMetadata, error) {
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	return metadataFor(a.source, "Curated collections from "+a.source.URL, bundles), nil
}

func (a *collectionAdapter) FetchBundles(ctx context.Context) ([]model.Bundle, error) {
	if bundles, ok := a.cache.get(); ok {
		return bundles, nil
	}

	exists, err := a.store.DirExists(ctx, a.collectionsPath)
	if err != nil {
		return nil, pkgerrors.NewOperationError(a.label, err)
	}
	if !exists {
		return nil, pkgerrors.NewOperationError(a.label, &missingLocationError{what: "Collections directory"})
	}

	paths, err := a.store.Glob(ctx, a.collectionsPath+"/**/*"+CollectionSuffix)
	if err != nil {
		return nil, pkgerrors.NewOperationError(a.label, err)
	}
	contents, err := a.store.ReadAll(ctx, paths)
	if err != nil {
		return nil, pkgerrors.NewOperationError(a.label, err)
	}

	bundles := make([]model.Bundle, 0, len(paths))
	state := make(map[string]collectionState, len(paths))
	for _, p := range paths {
		manifest, err := ParseCollectionManifest(contents[p])
		if err != nil {
			a.opts.Logger.Warn("skipping invalid collection manifest", "path", p, "error", err)
			continue
		}
		if _, dup := state[manifest.ID]; dup {
			a.opts.Logger.Warn("skipping duplicate collection id", "path", p, "id", manifest.ID)
			continue
		}
		s := collectionState{manifestPath: p, manifest: manifest}
		state[manifest.ID] = s
		bundles = append(bundles, a.bundleFrom(s))
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })

	a.cache.set(bundles, state)
	a.opts.Logger.Debug("fetched collections", "count", len(bundles))
	return append([]model.Bundle(nil), bundles...), nil
}

func (a *collectionAdapter) bundleFrom(s collectionState) model.Bundle {
	m := s.manifest
	author := m.Author
	if author == "" {
		author = a.source.Name
	}
	location := a.store.Location(s.manifestPath)
	return model.Bundle{
		ID:               m.ID,
		Name:             m.Name,
		Version:          m.Version,
		Description:      m.Description,
		Author:           author,
		Environments:     InferEnvironments(m.Tags),
		Tags:             m.Tags,
		DownloadURL:      location,
		ManifestURL:      location,
		SourceID:         a.source.ID,
		ContentBreakdown: ContentBreakdown(m.Items),
	}
}

func (a *collectionAdapter) Validate(ctx context.Context) model.ValidationResult {
	return validateWith(ctx, a.FetchBundles)
}

// DownloadURL is built from the id alone. The catalog entry records where the
// manifest was actually found.
func (a *collectionAdapter) DownloadURL(id, _ string) string {
	return a.store.Location(path.Join(a.collectionsPath, id+CollectionSuffix))
}

// ManifestURL is the collection file itself; payload and manifest are colocated.
func (a *collectionAdapter) ManifestURL(id, version string) string {
	return a.DownloadURL(id, version)
}

func (a *collectionAdapter) DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error) {
	op := a.label + ": download " + bundle.ID
	s, err := stateFor(ctx, &a.cache, a.FetchBundles, bundle.ID)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	items, err := resolveCollectionItemPaths(ctx, a.store, s.manifest.Items)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	full := a.bundleFrom(s)
	out, err := buildArchive(ctx, a.store, &full, items)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	return out, nil
}

func (a *collectionAdapter) Invalidate() {
	a.cache.invalidate()
	a.store.Reset()
}
