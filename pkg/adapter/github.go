package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

const githubLabel = "github releases"

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

type githubRelease struct {
	TagName     string        `json:"tag_name"`
	Name        string        `json:"name"`
	Draft       bool          `json:"draft"`
	Prerelease  bool          `json:"prerelease"`
	PublishedAt time.Time     `json:"published_at"`
	ZipballURL  string        `json:"zipball_url"`
	Assets      []githubAsset `json:"assets"`
}

type releaseBundle struct {
	bundle      model.Bundle
	downloadURL string
	manifestURL string
}

type githubState struct {
	latest   releaseBundle
	versions map[string]releaseBundle
}

// githubAdapter treats each release carrying a deployment manifest asset as
// one version of a bundle.
type githubAdapter struct {
	source model.Source
	repo   githubRepo
	opts   Options
	cache  catalogCache[githubState]
}

func newGitHubAdapter(source model.Source, repo githubRepo, opts Options) *githubAdapter {
	return &githubAdapter{source: source, repo: repo, opts: opts}
}

func (a *githubAdapter) Type() model.SourceType { return model.SourceTypeGitHub }

func (a *githubAdapter) releasesURL() string {
	return fmt.Sprintf("%s/repos/%s/%s/releases", strings.TrimSuffix(a.opts.GitHubAPIBase, "/"), a.repo.Owner, a.repo.Name)
}

func (a *githubAdapter) FetchMetadata(ctx context.Context) (*model.SourceMetadata, error) {
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	return metadataFor(a.source, "Releases of "+a.repo.String(), bundles), nil
}

func (a *githubAdapter) FetchBundles(ctx context.Context) ([]model.Bundle, error) {
	if bundles, ok := a.cache.get(); ok {
		return bundles, nil
	}

	var releases []githubRelease
	if err := a.opts.Fetcher.GetJSON(ctx, a.releasesURL(), &releases); err != nil {
		return nil, pkgerrors.NewOperationError(githubLabel, err)
	}

	candidates := make([]releaseBundle, 0, len(releases))
	var manifestURLs []string
	for _, rel := range releases {
		if rel.Draft {
			continue
		}
		var rb releaseBundle
		for _, asset := range rel.Assets {
			switch {
			case asset.Name == archive.ManifestFile:
				rb.manifestURL = asset.BrowserDownloadURL
			case strings.HasSuffix(asset.Name, ".zip") && rb.downloadURL == "":
				rb.downloadURL = asset.BrowserDownloadURL
				rb.bundle.Size = asset.Size
			}
		}
		if rb.manifestURL == "" {
			continue
		}
		if rb.downloadURL == "" {
			rb.downloadURL = rel.ZipballURL
		}
		rb.bundle.Version = strings.TrimPrefix(rel.TagName, "v")
		rb.bundle.LastUpdated = rel.PublishedAt
		candidates = append(candidates, rb)
		manifestURLs = append(manifestURLs, rb.manifestURL)
	}

	manifests, err := a.opts.Fetcher.GetAll(ctx, manifestURLs, remoteReadConcurrency)
	if err != nil {
		return nil, pkgerrors.NewOperationError(githubLabel, err)
	}

	state := make(map[string]githubState)
	for _, rb := range candidates {
		manifest, err := ParseDeploymentManifest(manifests[rb.manifestURL])
		if err != nil {
			a.opts.Logger.Warn("skipping release with invalid manifest", "url", rb.manifestURL, "error", err)
			continue
		}
		b := manifest.bundle(a.source)
		if rb.bundle.Version != "" {
			b.Version = rb.bundle.Version
		}
		b.Size = rb.bundle.Size
		b.LastUpdated = rb.bundle.LastUpdated
		b.DownloadURL = rb.downloadURL
		b.ManifestURL = rb.manifestURL
		rb.bundle = b

		s, ok := state[b.ID]
		if !ok {
			s = githubState{latest: rb, versions: make(map[string]releaseBundle)}
		} else if b.NewerThan(&s.latest.bundle) {
			s.latest = rb
		}
		s.versions[b.Version] = rb
		state[b.ID] = s
	}

	bundles := make([]model.Bundle, 0, len(state))
	for _, s := range state {
		bundles = append(bundles, s.latest.bundle)
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].ID < bundles[j].ID })

	a.cache.set(bundles, state)
	return append([]model.Bundle(nil), bundles...), nil
}

func (a *githubAdapter) Validate(ctx context.Context) model.ValidationResult {
	return validateWith(ctx, a.FetchBundles)
}

func (a *githubAdapter) release(id, version string) (releaseBundle, bool) {
	s, ok := a.cache.lookup(id)
	if !ok {
		return releaseBundle{}, false
	}
	if version != "" {
		rb, ok := s.versions[strings.TrimPrefix(version, "v")]
		return rb, ok
	}
	return s.latest, true
}

func (a *githubAdapter) DownloadURL(id, version string) string {
	if rb, ok := a.release(id, version); ok {
		return rb.downloadURL
	}
	return fmt.Sprintf("https://github.com/%s/releases/download/v%s/%s.zip", a.repo, version, id)
}

func (a *githubAdapter) ManifestURL(id, version string) string {
	if rb, ok := a.release(id, version); ok {
		return rb.manifestURL
	}
	return fmt.Sprintf("https://github.com/%s/releases/download/v%s/%s", a.repo, version, archive.ManifestFile)
}

func (a *githubAdapter) DownloadBundle(ctx context.Context, bundle *model.Bundle) (*archive.Archive, error) {
	op := githubLabel + ": download " + bundle.ID
	s, err := stateFor(ctx, &a.cache, a.FetchBundles, bundle.ID)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	rb := s.latest
	if bundle.Version != "" {
		var ok bool
		if rb, ok = s.versions[strings.TrimPrefix(bundle.Version, "v")]; !ok {
			return nil, pkgerrors.NewOperationError(op, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, bundle.ID+"@"+bundle.Version))
		}
	}

	data, err := fetchArchive(ctx, a.opts, a.source.ID, rb.bundle.ID, rb.bundle.Version, rb.downloadURL)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	out, err := archive.Extract(ctx, data)
	if err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	if err := ensureManifest(out, &rb.bundle); err != nil {
		return nil, pkgerrors.NewOperationError(op, err)
	}
	return out, nil
}

func (a *githubAdapter) Invalidate() {
	a.cache.invalidate()
}
