package registry

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/glorpus-work/promptreg/pkg/adapter"
	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/gitexclude"
	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/repolayout"
	"github.com/glorpus-work/promptreg/pkg/scope"
)

// BundlesDir is the directory under a user or workspace scope root that
// holds one sub-directory per installed bundle.
const BundlesDir = "bundles"

// InstallOptions control InstallBundle.
type InstallOptions struct {
	Scope model.Scope
	// Version pins the installed version; empty installs the catalog version.
	Version string
	// SourceID restricts resolution to one source instead of the merged catalog.
	SourceID   string
	CommitMode model.CommitMode
	// Hub links the lockfile entry to a hub profile (repository scope only).
	Hub *lockfile.HubAssociation
}

// InstallResult is the outcome of InstallBundle. Exactly one of Installed and
// Conflict is set on success.
type InstallResult struct {
	Installed *model.InstalledBundle
	Conflict  *scope.Conflict
}

func (m *Manager) lockBundle(id string) func() {
	m.bundleMu.Lock()
	l, ok := m.bundleLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.bundleLocks[id] = l
	}
	m.bundleMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) scopeRoot(s model.Scope) (string, error) {
	root := m.opts.ScopeRoots[s]
	if root == "" {
		return "", pkgerrors.NewConfigError(string(s)+"_dir", "", "no install root configured for "+string(s)+" scope")
	}
	if !filepath.IsAbs(root) {
		return "", pkgerrors.NewConfigError(string(s)+"_dir", root, "install root must be absolute")
	}
	return root, nil
}

func (m *Manager) resolveBundle(ctx context.Context, id string, opts InstallOptions) (*model.Bundle, error) {
	if opts.SourceID == "" {
		return m.GetBundle(ctx, id)
	}
	a, err := m.Adapter(opts.SourceID)
	if err != nil {
		return nil, err
	}
	bundles, err := a.FetchBundles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range bundles {
		if bundles[i].ID == id {
			b := bundles[i]
			if b.SourceID == "" {
				b.SourceID = opts.SourceID
			}
			return &b, nil
		}
	}
	return nil, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
}

// InstallBundle installs id into opts.Scope. When the bundle already lives in
// another scope nothing is written and the conflict is returned in the result.
func (m *Manager) InstallBundle(ctx context.Context, id string, opts InstallOptions) (*InstallResult, error) {
	if opts.Scope == "" {
		opts.Scope = m.Preferences().DefaultScope
	}
	if !opts.Scope.Valid() {
		return nil, pkgerrors.NewConfigError("scope", string(opts.Scope), "expected user, workspace or repository")
	}
	if opts.CommitMode == "" {
		opts.CommitMode = m.Preferences().CommitMode
	}
	if !opts.CommitMode.Valid() {
		return nil, pkgerrors.NewConfigError("commitMode", string(opts.CommitMode), "expected commit or local-only")
	}

	unlock := m.lockBundle(id)
	defer unlock()

	conflict, err := m.resolver.CheckConflict(id, opts.Scope)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		m.metrics.conflicts.Inc()
		m.log.Warn("scope conflict", "bundle", id, "existing", conflict.ExistingScope, "target", conflict.TargetScope)
		return &InstallResult{Conflict: conflict}, nil
	}

	root, err := m.scopeRoot(opts.Scope)
	if err != nil {
		return nil, err
	}
	bundle, err := m.resolveBundle(ctx, id, opts)
	if err != nil {
		return nil, pkgerrors.NewOperationError("install "+id, err)
	}
	if opts.Version != "" {
		bundle.Version = opts.Version
	}
	source, err := m.GetSource(bundle.SourceID)
	if err != nil {
		return nil, err
	}
	a, err := m.Adapter(bundle.SourceID)
	if err != nil {
		return nil, err
	}

	arc, err := a.DownloadBundle(ctx, bundle)
	if err != nil {
		return nil, pkgerrors.NewOperationError("download "+id, err)
	}
	delivered := deliveredVersion(arc, bundle.Version)
	if opts.Version != "" && !model.SameVersion(opts.Version, delivered) {
		m.log.Warn("pinned version not served", "bundle", id, "requested", opts.Version, "delivered", delivered)
		return nil, pkgerrors.NewOperationError("install "+id, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id+"@"+opts.Version))
	}
	bundle.Version = delivered

	previous, err := m.opts.Stores.Lookup(opts.Scope, id)
	if err != nil {
		return nil, err
	}

	var written []lockfile.FileEntry
	if opts.Scope == model.ScopeRepository {
		written, err = m.writeRepositoryFiles(root, arc)
	} else {
		written, err = m.writeBundleDir(root, id, arc)
	}
	if err != nil {
		return nil, pkgerrors.NewOperationError("install "+id, err)
	}

	files := make([]string, len(written))
	for i, f := range written {
		files[i] = f.Path
	}
	if previous != nil {
		m.removeStale(root, previous.Files, files)
	}

	if opts.Scope == model.ScopeRepository {
		if err := m.recordRepositoryInstall(root, bundle, source, opts, written, previous); err != nil {
			return nil, err
		}
	}

	rec := model.InstalledBundle{
		BundleID:    id,
		Version:     bundle.Version,
		SourceID:    source.ID,
		SourceType:  source.Type,
		InstalledAt: m.opts.Now().UTC(),
		Scope:       opts.Scope,
		InstallPath: root,
		Files:       files,
	}
	if opts.Scope == model.ScopeRepository {
		rec.CommitMode = opts.CommitMode
	}
	if err := m.opts.Stores[opts.Scope].Put(rec); err != nil {
		return nil, err
	}

	m.metrics.installs.WithLabelValues(string(opts.Scope)).Inc()
	m.log.Info("bundle installed", "bundle", id, "version", bundle.Version, "scope", opts.Scope, "files", len(files))
	return &InstallResult{Installed: &rec}, nil
}

// deliveredVersion is the version declared by the deployment manifest of arc,
// or fallback when the archive carries none.
func deliveredVersion(arc *archive.Archive, fallback string) string {
	data, ok := arc.Get(archive.ManifestFile)
	if !ok {
		return fallback
	}
	manifest, err := adapter.ParseDeploymentManifest(data)
	if err != nil || manifest.Version == "" {
		return fallback
	}
	return manifest.Version
}

// writeRepositoryFiles places every content file of arc at its repository
// layout target. Files of an unknown kind and the deployment manifest are skipped.
func (m *Manager) writeRepositoryFiles(root string, arc *archive.Archive) ([]lockfile.FileEntry, error) {
	var out []lockfile.FileEntry
	for _, e := range arc.Entries {
		if e.Path == archive.ManifestFile {
			continue
		}
		kind, ok := repolayout.KindFromPath(e.Path)
		if !ok {
			m.log.Debug("skipping file of unknown kind", "path", e.Path)
			continue
		}
		target := repolayout.TargetPath(kind, e.Path)
		if err := writeFile(root, target, e.Data); err != nil {
			return nil, err
		}
		out = append(out, lockfile.FileEntry{Path: target, Checksum: fsutil.Checksum(e.Data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// writeBundleDir copies arc verbatim under <root>/bundles/<id>.
func (m *Manager) writeBundleDir(root, id string, arc *archive.Archive) ([]lockfile.FileEntry, error) {
	base, err := fsutil.CleanRelPath(path.Join(BundlesDir, id))
	if err != nil {
		return nil, err
	}
	out := make([]lockfile.FileEntry, 0, len(arc.Entries))
	for _, e := range arc.Entries {
		rel := path.Join(base, e.Path)
		if err := writeFile(root, rel, e.Data); err != nil {
			return nil, err
		}
		out = append(out, lockfile.FileEntry{Path: rel, Checksum: fsutil.Checksum(e.Data)})
	}
	return out, nil
}

func writeFile(root, rel string, data []byte) error {
	dst, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(dst, data, fsutil.FileModeDefault)
}

// removeStale deletes files of a previous install that the new install no longer carries.
func (m *Manager) removeStale(root string, previous, current []string) {
	keep := make(map[string]bool, len(current))
	for _, f := range current {
		keep[f] = true
	}
	for _, f := range previous {
		if keep[f] {
			continue
		}
		m.removeInstalledFile(root, f)
	}
}

func (m *Manager) removeInstalledFile(root, rel string) {
	dst, err := fsutil.SafeJoin(root, rel)
	if err != nil {
		m.log.Warn("refusing to remove file outside install root", "path", rel)
		return
	}
	if err := fsutil.RemoveFile(dst); err != nil {
		m.log.Warn("failed to remove file", "path", dst, "error", err)
		return
	}
	fsutil.RemoveEmptyParents(filepath.Dir(dst), root)
}

func (m *Manager) recordRepositoryInstall(root string, bundle *model.Bundle, source *model.Source, opts InstallOptions, files []lockfile.FileEntry, previous *model.InstalledBundle) error {
	lf, err := m.opts.Lockfiles.Get(root)
	if err != nil {
		return err
	}
	err = lf.CreateOrUpdate(lockfile.UpdateOptions{
		BundleID: bundle.ID,
		Entry: lockfile.BundleEntry{
			Version:    bundle.Version,
			SourceType: source.Type,
			CommitMode: opts.CommitMode,
			Files:      files,
		},
		SourceID: source.ID,
		Source:   lockfile.SourceEntry{Type: source.Type, URL: source.URL, Branch: source.Config.Branch},
		Hub:      opts.Hub,
	})
	if err != nil {
		return pkgerrors.NewOperationError("update lockfile", err)
	}

	excl := gitexclude.NewManager(root)
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	if previous != nil && previous.CommitMode == model.CommitModeLocalOnly {
		if err := excl.Remove(previous.Files); err != nil {
			m.log.Warn("failed to update git exclude", "error", err)
		}
	}
	if opts.CommitMode == model.CommitModeLocalOnly {
		if err := excl.Add(paths); err != nil {
			return pkgerrors.NewOperationError("update git exclude", err)
		}
	}
	return nil
}

// UninstallBundle removes the files, lockfile entry and record of id at s.
func (m *Manager) UninstallBundle(ctx context.Context, id string, s model.Scope) error {
	if !s.Valid() {
		return pkgerrors.NewConfigError("scope", string(s), "expected user, workspace or repository")
	}
	unlock := m.lockBundle(id)
	defer unlock()

	rec, err := m.opts.Stores.Lookup(s, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
	}
	root := rec.InstallPath
	if root == "" {
		if root, err = m.scopeRoot(s); err != nil {
			return err
		}
	}

	for _, f := range rec.Files {
		m.removeInstalledFile(root, f)
	}
	if s != model.ScopeRepository {
		bundleDir := filepath.Join(root, BundlesDir, id)
		if err := os.RemoveAll(bundleDir); err != nil {
			m.log.Warn("failed to remove bundle dir", "path", bundleDir, "error", err)
		}
		fsutil.RemoveEmptyParents(filepath.Join(root, BundlesDir), root)
	} else {
		lf, err := m.opts.Lockfiles.Get(root)
		if err != nil {
			return err
		}
		if err := lf.Remove(id); err != nil {
			return pkgerrors.NewOperationError("update lockfile", err)
		}
		if rec.CommitMode == model.CommitModeLocalOnly {
			if err := gitexclude.NewManager(root).Remove(rec.Files); err != nil {
				m.log.Warn("failed to update git exclude", "error", err)
			}
		}
	}

	if err := m.opts.Stores[s].Delete(id); err != nil {
		return err
	}
	m.metrics.uninstalls.WithLabelValues(string(s)).Inc()
	m.log.Info("bundle uninstalled", "bundle", id, "scope", s)
	return ctx.Err()
}

// Installed returns the records of one scope, or of every scope when s is empty.
func (m *Manager) Installed(s model.Scope) ([]model.InstalledBundle, error) {
	scopes := model.AllScopes()
	if s != "" {
		scopes = []model.Scope{s}
	}
	var out []model.InstalledBundle
	for _, sc := range scopes {
		store, ok := m.opts.Stores[sc]
		if !ok {
			continue
		}
		recs, err := store.List()
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// MigrateBundle moves an installed bundle between scopes at its installed
// version. A failed install after a successful uninstall leaves the bundle
// installed nowhere and is reported in the result.
func (m *Manager) MigrateBundle(ctx context.Context, id string, from, to model.Scope) scope.MigrationResult {
	rec, err := m.opts.Stores.Lookup(from, id)
	if err == nil && rec == nil {
		err = pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
	}
	if err != nil {
		return scope.MigrationResult{BundleID: id, From: from, To: to, Err: err}
	}

	uninstall := func(ctx context.Context) error {
		return m.UninstallBundle(ctx, id, from)
	}
	install := func(ctx context.Context) error {
		res, err := m.InstallBundle(ctx, id, InstallOptions{Scope: to, Version: rec.Version, SourceID: rec.SourceID, CommitMode: rec.CommitMode})
		if err != nil {
			return err
		}
		if res.Conflict != nil {
			return pkgerrors.NewConfigError("scope", string(to), res.Conflict.String())
		}
		return nil
	}
	return m.resolver.MigrateBundle(ctx, id, from, to, uninstall, install)
}
