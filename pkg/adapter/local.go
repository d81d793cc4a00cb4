package adapter

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
)

const localLabel = "local bundles"

type localState struct {
	dir      string
	manifest *DeploymentManifest
}

// localAdapter serves a directory whose subdirectories are bundles, each
// carrying a deployment manifest next to its content.
type localAdapter struct {
	source model.Source
	root   string
	store  *localStore
	opts   Options
	cache  catalogCache[localState]
}

func newLocalAdapter(source model.Source, root string, opts Options) *localAdapter {
	return &localAdapter{source: source, root: root, store: newLocalStore(root), opts: opts}
}

func (a *localAdapter) Type() model.SourceType { return model.SourceTypeLocal }

func (a *localAdapter) FetchMetadata(ctx context.Context) (*model.SourceMetadata, error) {
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	return metadataFor(a.source, "Local bundles in "+a.root, bundles), nil
}

func (a *localAdapter) FetchBundles(ctx context.Context) ([]model.Bundle, error) {
	if bundles, ok := a.cache.get(); ok {
		return bundles, nil
	}
	if !fsutil.IsDir(a.root) {
		return nil, pkgerrors.NewOperationError(localLabel, &missingLocationError{what: "Directory " + a.root})
	}

	paths, err := a.store.Glob(ctx, "**/"+archive.ManifestFile)
	if err != nil {
		return nil, pkgerrors.NewOperationError(localLabel, err)
	}

	bundles := make([]model.Bundle, 0, len(paths))
	state := make(map[string]localState, len(paths))
	for _, p := range paths {
		dir := path.Dir(p)
		if dir == "." {
			continue
		}
		data, err := a.store.Read(ctx, p)
		if err != nil {
			return nil, pkgerrors.NewOperationError(localLabel, err)
		}
		manifest, err := ParseDeploymentManifest(data)
		if err != nil {
			a.opts.Logger.Warn("skipping invalid deployment manifest", "path", p, "error", err)
			continue
		}
		if _, dup := state[manifest.ID]; dup {
			continue
		}
		s := localState{dir: dir, manifest: manifest}
		state[manifest.ID] = s
		bundles = append(bundles, a.bundleFrom(s))
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })

	a.cache.set(bundles, state)
	return append([]model.Bundle(nil), bundles...), nil
}

func (a *localAdapter) bundleFrom(s localState) model.Bundle {
	b := s.manifest.bundle(a.source)
	b.DownloadURL = a.store.Location(s.dir)
	b.ManifestURL = b.DownloadURL
	return b
}

func (a *localAdapter) Validate(ctx context.Context) model.ValidationResult {
	return validateWith(ctx, a.FetchBundles)
}

func (a *localAdapter) DownloadURL(id, _ string) string {
	return a.store.Location(id)
}

func (a *localAdapter) ManifestURL(id, version string) string {
	return a.DownloadURL(id, version)
}

func (a *localAdapter) DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error) {
	op := localLabel + ": download " + bundle.ID
	s, err := stateFor(ctx, &a.cache, a.FetchBundles, bundle.ID)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	files, err := a.store.Glob(ctx, s.dir+"/**")
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	contents, err := a.store.ReadAll(ctx, files)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}

	out := &archive.Archive{}
	for _, f := range files {
		if err := out.Add(strings.TrimPrefix(f, s.dir+"/"), contents[f]); err != nil {
			return nil, pkgerrors.NewOperationError(op, err)
		}
	}
	return out, nil
}

func (a *localAdapter) Invalidate() {
	a.cache.invalidate()
}
