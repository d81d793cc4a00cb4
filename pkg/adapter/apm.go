package adapter

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/repolayout"
	"gopkg.in/yaml.v3"
)

const (
	apmManifestFile = "apm.yml"
	apmContentDir   = ".apm"
)

// APMManifest is the package descriptor of an agent package.
type APMManifest struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Description  string   `yaml:"description"`
	Author       string   `yaml:"author"`
	License      string   `yaml:"license"`
	Tags         []string `yaml:"tags"`
	Dependencies struct {
		APM []string `yaml:"apm"`
	} `yaml:"dependencies"`
}

// ParseAPMManifest decodes an apm.yml document.
func ParseAPMManifest(data []byte) (*APMManifest, error) {
	var m APMManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse apm.yml")
	}
	if m.Name == "" {
		return nil, pkgerrors.NewConfigError("name", "", "is required")
	}
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	return &m, nil
}

type apmState struct {
	dir      string
	manifest *APMManifest
	items    []ResolvedItem
}

// apmAdapter serves agent packages: directories holding an apm.yml and their
// content under .apm/.
type apmAdapter struct {
	source model.Source
	store  contentStore
	label  string
	opts   Options
	cache  catalogCache[apmState]
}

func newAPMAdapter(source model.Source, store contentStore, label string, opts Options) *apmAdapter {
	return &apmAdapter{source: source, store: store, label: label, opts: opts}
}

func (a *apmAdapter) Type() model.SourceType { return a.source.Type }

func (a *apmAdapter) FetchMetadata(ctx context.Context) (*model.SourceMetadata, error) {
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	return metadataFor(a.source, "Agent packages from "+a.source.URL, bundles), nil
}

func (a *apmAdapter) FetchBundles(ctx context.Context) ([]model.Bundle, error) {
	if bundles, ok := a.cache.get(); ok {
		return bundles, nil
	}

	manifests, err := a.store.Glob(ctx, "**/"+apmManifestFile)
	if err != nil {
		return nil, pkgerrors.NewOperationError(a.label, err)
	}
	contents, err := a.store.ReadAll(ctx, manifests)
	if err != nil {
		return nil, pkgerrors.NewOperationError(a.label, err)
	}

	bundles := make([]model.Bundle, 0, len(manifests))
	state := make(map[string]apmState, len(manifests))
	for _, p := range manifests {
		manifest, err := ParseAPMManifest(contents[p])
		if err != nil {
			a.opts.Logger.Warn("skipping invalid apm.yml", "path", p, "error", err)
			continue
		}
		dir := path.Dir(p)
		items, err := a.packageItems(ctx, dir)
		if err != nil {
			return nil, pkgerrors.NewOperationError(a.label, err)
		}
		s := apmState{dir: dir, manifest: manifest, items: items}
		id := packageID(manifest.Name)
		if _, dup := state[id]; dup {
			continue
		}
		state[id] = s
		bundles = append(bundles, a.bundleFrom(id, s))
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })

	a.cache.set(bundles, state)
	return append([]model.Bundle(nil), bundles...), nil
}

func (a *apmAdapter) packageItems(ctx context.Context, dir string) ([]ResolvedItem, error) {
	contentRoot := path.Join(dir, apmContentDir)
	files, err := a.store.Glob(ctx, contentRoot+"/**")
	if err != nil {
		return nil, err
	}
	var items []ResolvedItem
	for _, f := range files {
		rel := strings.TrimPrefix(f, contentRoot+"/")
		kind, ok := repolayout.KindFromPath(rel)
		if !ok {
			continue
		}
		items = append(items, ResolvedItem{Kind: kind, SourcePath: f, ArchivePath: rel})
	}
	return items, nil
}

func (a *apmAdapter) bundleFrom(id string, s apmState) model.Bundle {
	m := s.manifest
	breakdown := make(map[model.ItemKind]int)
	for _, item := range s.items {
		breakdown[item.Kind]++
	}
	location := a.store.Location(path.Join(s.dir, apmManifestFile))
	return model.Bundle{
		ID:               id,
		Name:             m.Name,
		Version:          m.Version,
		Description:      m.Description,
		Author:           m.Author,
		Environments:     InferEnvironments(m.Tags),
		Tags:             m.Tags,
		License:          m.License,
		Dependencies:     m.Dependencies.APM,
		DownloadURL:      location,
		ManifestURL:      location,
		SourceID:         a.source.ID,
		ContentBreakdown: breakdown,
	}
}

func packageID(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func (a *apmAdapter) Validate(ctx context.Context) model.ValidationResult {
	return validateWith(ctx, a.FetchBundles)
}

func (a *apmAdapter) DownloadURL(id, _ string) string {
	return a.store.Location(path.Join(id, apmManifestFile))
}

func (a *apmAdapter) ManifestURL(id, version string) string {
	return a.DownloadURL(id, version)
}

func (a *apmAdapter) DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error) {
	op := a.label + ": download " + bundle.ID
	s, err := stateFor(ctx, &a.cache, a.FetchBundles, bundle.ID)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	full := a.bundleFrom(bundle.ID, s)
	out, err := buildArchive(ctx, a.store, &full, s.items)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	return out, nil
}

func (a *apmAdapter) Invalidate() {
	a.cache.invalidate()
	a.store.Reset()
}
