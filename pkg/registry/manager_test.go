package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glorpus-work/promptreg/pkg/adapter"
	"github.com/glorpus-work/promptreg/pkg/adapter/mocks"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/gitexclude"
	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const b1Collection = `id: b1
name: Bundle One
description: Review helpers
version: 1.0.0
tags: [go]
items:
  - path: prompts/b1.prompt.md
    kind: prompt
  - path: skills/review/SKILL.md
    kind: skill
`

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

type testEnv struct {
	manager    *Manager
	sourceRoot string
	repoRoot   string
	userRoot   string
	registry   *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	env := &testEnv{
		sourceRoot: filepath.Join(base, "source"),
		repoRoot:   filepath.Join(base, "repo"),
		userRoot:   filepath.Join(base, "user"),
		registry:   prometheus.NewRegistry(),
	}
	writeTree(t, env.sourceRoot, map[string]string{
		"collections/b1.collection.yml": b1Collection,
		"prompts/b1.prompt.md":          "review this",
		"skills/review/SKILL.md":        "# review",
		"skills/review/checklist.md":    "- [ ] tests",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(env.repoRoot, ".git", "info"), 0o755))

	stores, closer, err := state.OpenStores(state.BackendJSON, filepath.Join(base, "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	m, err := New(Options{
		Sources: []model.Source{{
			ID:      "local",
			Name:    "Local collections",
			Type:    model.SourceTypeLocalAwesomeCopilot,
			URL:     env.sourceRoot,
			Enabled: true,
		}},
		Stores:    stores,
		Lockfiles: lockfile.NewProvider("promptreg/test"),
		ScopeRoots: map[model.Scope]string{
			model.ScopeUser:       env.userRoot,
			model.ScopeWorkspace:  filepath.Join(base, "workspace"),
			model.ScopeRepository: env.repoRoot,
		},
		Registerer: env.registry,
	})
	require.NoError(t, err)
	env.manager = m
	return env
}

func TestInstallBundle_ConflictBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeUser, Version: "1.0.0"})
	require.NoError(t, err)
	require.NotNil(t, res.Installed)
	assert.Nil(t, res.Conflict)

	res, err = env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeRepository})
	require.NoError(t, err)
	assert.Nil(t, res.Installed)
	require.NotNil(t, res.Conflict)
	assert.Equal(t, "b1", res.Conflict.BundleID)
	assert.Equal(t, model.ScopeUser, res.Conflict.ExistingScope)
	assert.Equal(t, model.ScopeRepository, res.Conflict.TargetScope)

	assert.NoFileExists(t, filepath.Join(env.repoRoot, lockfile.FileName))
	assert.NoDirExists(t, filepath.Join(env.repoRoot, ".github"))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.manager.metrics.conflicts))
}

func TestInstallBundle_UserScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeUser})
	require.NoError(t, err)
	require.NotNil(t, res.Installed)
	assert.Equal(t, "1.0.0", res.Installed.Version)
	assert.Equal(t, "local", res.Installed.SourceID)

	bundleDir := filepath.Join(env.userRoot, BundlesDir, "b1")
	assert.FileExists(t, filepath.Join(bundleDir, "deployment-manifest.yml"))
	assert.FileExists(t, filepath.Join(bundleDir, "prompts", "b1.prompt.md"))
	assert.FileExists(t, filepath.Join(bundleDir, "skills", "review", "checklist.md"))

	installed, err := env.manager.Installed(model.ScopeUser)
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.manager.metrics.installs.WithLabelValues("user")))

	require.NoError(t, env.manager.UninstallBundle(ctx, "b1", model.ScopeUser))
	assert.NoDirExists(t, bundleDir)
	installed, err = env.manager.Installed("")
	require.NoError(t, err)
	assert.Empty(t, installed)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.manager.metrics.uninstalls.WithLabelValues("user")))
}

func TestInstallBundle_RepositoryScopeLocalOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeRepository, CommitMode: model.CommitModeLocalOnly})
	require.NoError(t, err)
	require.NotNil(t, res.Installed)

	want := []string{
		".github/prompts/b1.prompt.md",
		".github/skills/review/SKILL.md",
		".github/skills/review/checklist.md",
	}
	assert.Equal(t, want, res.Installed.Files)
	for _, p := range want {
		assert.FileExists(t, filepath.Join(env.repoRoot, filepath.FromSlash(p)))
	}

	lf, err := env.manager.opts.Lockfiles.Get(env.repoRoot)
	require.NoError(t, err)
	doc, err := lf.Read()
	require.NoError(t, err)
	require.NotNil(t, doc)
	entry, ok := doc.Bundles["b1"]
	require.True(t, ok)
	assert.Equal(t, model.CommitModeLocalOnly, entry.CommitMode)
	assert.Equal(t, "local", entry.SourceID)
	assert.Contains(t, doc.Sources, "local")
	require.Len(t, entry.Files, 3)

	drift, err := lf.DetectModifiedFiles("b1")
	require.NoError(t, err)
	assert.Empty(t, drift)

	excluded, err := gitexclude.NewManager(env.repoRoot).Paths()
	require.NoError(t, err)
	assert.Equal(t, want, excluded)

	require.NoError(t, env.manager.UninstallBundle(ctx, "b1", model.ScopeRepository))
	assert.NoFileExists(t, filepath.Join(env.repoRoot, lockfile.FileName))
	assert.NoDirExists(t, filepath.Join(env.repoRoot, ".github"))
	excluded, err = gitexclude.NewManager(env.repoRoot).Paths()
	require.NoError(t, err)
	assert.Empty(t, excluded)
}

func TestInstallBundle_PinnedVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeRepository, Version: "9.9.9"})
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(env.repoRoot, lockfile.FileName))
	installed, err := env.manager.Installed("")
	require.NoError(t, err)
	assert.Empty(t, installed)

	res, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeRepository, Version: "v1.0.0"})
	require.NoError(t, err)
	require.NotNil(t, res.Installed)
	assert.Equal(t, "1.0.0", res.Installed.Version)

	lf, err := env.manager.opts.Lockfiles.Get(env.repoRoot)
	require.NoError(t, err)
	doc, err := lf.Read()
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "1.0.0", doc.Bundles["b1"].Version)
}

func TestInstallBundle_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.InstallBundle(ctx, "missing", InstallOptions{Scope: model.ScopeUser})
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	_, err = env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: "global"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	err = env.manager.UninstallBundle(ctx, "b1", model.ScopeUser)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestMigrateBundle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.InstallBundle(ctx, "b1", InstallOptions{Scope: model.ScopeUser})
	require.NoError(t, err)

	res := env.manager.MigrateBundle(ctx, "b1", model.ScopeUser, model.ScopeRepository)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)

	scopes, err := env.manager.Resolver().ConflictingScopes("b1")
	require.NoError(t, err)
	assert.Equal(t, []model.Scope{model.ScopeRepository}, scopes)
	assert.FileExists(t, filepath.Join(env.repoRoot, ".github", "prompts", "b1.prompt.md"))
	assert.NoDirExists(t, filepath.Join(env.userRoot, BundlesDir, "b1"))
}

type fakeSources map[string]adapter.Adapter

func (f fakeSources) resolve(source model.Source, _ adapter.Options) (adapter.Adapter, error) {
	a, ok := f[source.ID]
	if !ok {
		return nil, pkgerrors.NewConfigError("id", source.ID, "no fake adapter")
	}
	return a, nil
}

func newMockedManager(t *testing.T, sources []model.Source, adapters fakeSources, now func() time.Time) *Manager {
	t.Helper()
	stores, closer, err := state.OpenStores(state.BackendJSON, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	m, err := New(Options{
		Sources:        sources,
		Stores:         stores,
		ResolveAdapter: adapters.resolve,
		Now:            now,
	})
	require.NoError(t, err)
	return m
}

func TestListBundles_PriorityMerge(t *testing.T) {
	ctrl := gomock.NewController(t)
	low, high, tied := mocks.NewMockAdapter(ctrl), mocks.NewMockAdapter(ctrl), mocks.NewMockAdapter(ctrl)
	low.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x", Version: "1.0.0"}, {ID: "y", Version: "1.0.0"}}, nil)
	high.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x", Version: "2.0.0"}}, nil)
	tied.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x", Version: "3.0.0"}}, nil)

	sources := []model.Source{
		{ID: "low", Type: model.SourceTypeHTTP, Enabled: true, Priority: 0},
		{ID: "high", Type: model.SourceTypeHTTP, Enabled: true, Priority: 10},
		{ID: "tied", Type: model.SourceTypeHTTP, Enabled: true, Priority: 10},
		{ID: "off", Type: model.SourceTypeHTTP, Enabled: false, Priority: 100},
	}
	m := newMockedManager(t, sources, fakeSources{"low": low, "high": high, "tied": tied, "off": mocks.NewMockAdapter(ctrl)}, nil)

	var mu sync.Mutex
	synced := map[string]int{}
	unsubscribe := m.Subscribe(func(ev SourceSynced) {
		mu.Lock()
		defer mu.Unlock()
		synced[ev.SourceID] = ev.BundleCount
	})
	defer unsubscribe()

	bundles, err := m.ListBundles(context.Background())
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "x", bundles[0].ID)
	assert.Equal(t, "2.0.0", bundles[0].Version)
	assert.Equal(t, "high", bundles[0].SourceID)
	assert.Equal(t, "low", bundles[1].SourceID)
	assert.Equal(t, map[string]int{"low": 2, "high": 1, "tied": 1}, synced)
}

func TestListBundles_CacheTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x", Version: "1.0.0"}}, nil).Times(3)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := newMockedManager(t, []model.Source{{ID: "a", Type: model.SourceTypeHTTP, Enabled: true}}, fakeSources{"a": a}, clock)
	ctx := context.Background()

	_, err := m.ListBundles(ctx)
	require.NoError(t, err)
	_, err = m.ListBundles(ctx)
	require.NoError(t, err)

	now = now.Add(DefaultCacheTTL + time.Second)
	_, err = m.ListBundles(ctx)
	require.NoError(t, err)

	m.InvalidateCache()
	_, err = m.ListBundles(ctx)
	require.NoError(t, err)
}

func TestListBundles_FailingSources(t *testing.T) {
	ctrl := gomock.NewController(t)
	good, bad := mocks.NewMockAdapter(ctrl), mocks.NewMockAdapter(ctrl)
	good.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x"}}, nil)
	bad.EXPECT().FetchBundles(gomock.Any()).Return(nil, errors.New("unreachable")).Times(2)

	m := newMockedManager(t, []model.Source{
		{ID: "good", Type: model.SourceTypeHTTP, Enabled: true},
		{ID: "bad", Type: model.SourceTypeHTTP, Enabled: true},
	}, fakeSources{"good": good, "bad": bad}, nil)

	bundles, err := m.ListBundles(context.Background())
	require.NoError(t, err)
	assert.Len(t, bundles, 1)

	require.NoError(t, m.RemoveSource("good"))
	_, err = m.ListBundles(context.Background())
	assert.EqualError(t, err, "unreachable")
}

func TestSyncSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	gomock.InOrder(
		a.EXPECT().Invalidate(),
		a.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{{ID: "x"}, {ID: "y"}}, nil),
	)
	m := newMockedManager(t, []model.Source{{ID: "a", Type: model.SourceTypeHTTP, Enabled: true}}, fakeSources{"a": a}, nil)

	var events []SourceSynced
	m.Subscribe(func(ev SourceSynced) { events = append(events, ev) })

	n, err := m.SyncSource(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []SourceSynced{{SourceID: "a", BundleCount: 2}}, events)

	_, err = m.SyncSource(context.Background(), "nope")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestSearchBundles(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockAdapter(ctrl)
	a.EXPECT().FetchBundles(gomock.Any()).Return([]model.Bundle{
		{ID: "python-dev", Name: "Python", Tags: []string{"backend"}},
		{ID: "react-kit", Name: "React", Description: "Frontend helpers"},
	}, nil)
	m := newMockedManager(t, []model.Source{{ID: "a", Type: model.SourceTypeHTTP, Enabled: true}}, fakeSources{"a": a}, nil)

	got, err := m.SearchBundles(context.Background(), "FRONTEND")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "react-kit", got[0].ID)

	got, err = m.SearchBundles(context.Background(), "backend")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "python-dev", got[0].ID)
}

func TestSourceCRUD(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapters := fakeSources{"a": mocks.NewMockAdapter(ctrl), "b": mocks.NewMockAdapter(ctrl)}

	var persisted []model.Source
	stores, closer, err := state.OpenStores(state.BackendJSON, t.TempDir())
	require.NoError(t, err)
	defer closer.Close()
	m, err := New(Options{
		Stores:         stores,
		ResolveAdapter: adapters.resolve,
		SourcesChanged: func(s []model.Source) error { persisted = s; return nil },
	})
	require.NoError(t, err)

	require.NoError(t, m.AddSource(model.Source{ID: "a", Type: model.SourceTypeHTTP}))
	require.NoError(t, m.AddSource(model.Source{ID: "b", Type: model.SourceTypeHTTP}))
	assert.ErrorIs(t, m.AddSource(model.Source{ID: "a", Type: model.SourceTypeHTTP}), pkgerrors.ErrInvalidConfig)
	assert.ErrorIs(t, m.AddSource(model.Source{ID: "c", Type: "gitlab"}), pkgerrors.ErrInvalidConfig)
	require.Len(t, persisted, 2)

	require.NoError(t, m.UpdateSource(model.Source{ID: "a", Type: model.SourceTypeHTTP, Priority: 5}))
	src, err := m.GetSource("a")
	require.NoError(t, err)
	assert.Equal(t, 5, src.Priority)
	assert.ErrorIs(t, m.UpdateSource(model.Source{ID: "zzz", Type: model.SourceTypeHTTP}), pkgerrors.ErrNotFound)

	require.NoError(t, m.RemoveSource("a"))
	assert.ErrorIs(t, m.RemoveSource("a"), pkgerrors.ErrNotFound)
	assert.Equal(t, []model.Source{{ID: "b", Type: model.SourceTypeHTTP}}, persisted)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapters := fakeSources{"a": mocks.NewMockAdapter(ctrl), "b": mocks.NewMockAdapter(ctrl)}
	src := newMockedManager(t, []model.Source{{ID: "a", Type: model.SourceTypeHTTP, URL: "https://a.example", Enabled: true}}, adapters, nil)

	data, err := src.ExportSettings()
	require.NoError(t, err)

	dst := newMockedManager(t, []model.Source{{ID: "b", Type: model.SourceTypeHTTP, Enabled: true}}, adapters, nil)
	require.NoError(t, dst.ImportSettings(data))

	ids := []string{}
	for _, s := range dst.Sources() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"b", "a"}, ids)
	assert.Equal(t, model.ScopeUser, dst.Preferences().DefaultScope)

	assert.ErrorIs(t, dst.ImportSettings([]byte(`{"version":"2.0.0","sources":[]}`)), pkgerrors.ErrInvalidConfig)
	assert.ErrorIs(t, dst.ImportSettings([]byte(`not json`)), pkgerrors.ErrInvalidConfig)
}

func TestWatchLocalSources(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bundles, err := env.manager.ListBundles(ctx)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- env.manager.WatchLocalSources(ctx, func(id string) { changed <- id }) }()

	// Give the watcher time to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeTree(t, env.sourceRoot, map[string]string{
		"collections/b2.collection.yml": "id: b2\nname: Bundle Two\nitems:\n  - path: prompts/b1.prompt.md\n    kind: prompt\n",
	})

	select {
	case id := <-changed:
		assert.Equal(t, "local", id)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	bundles, err = env.manager.ListBundles(ctx)
	require.NoError(t, err)
	assert.Len(t, bundles, 2)

	cancel()
	require.NoError(t, <-done)
}
