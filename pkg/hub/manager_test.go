package hub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/hub/mocks"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const teamHub = `version: 1.0.0
metadata:
  name: Team Hub
  description: Shared prompts
  maintainer: platform
sources:
  - id: main
    type: local-awesome-copilot
    url: /srv/prompts
profiles:
  - id: backend
    name: Backend
    bundles:
      - id: b1
        version: 1.0.0
        source: main
        required: true
      - id: shared
        version: 2.0.0
        source: main
  - id: frontend
    name: Frontend
    bundles:
      - id: shared
        version: 2.0.0
        source: main
      - id: f1
        version: 0.1.0
`

type fakeInstaller struct {
	mu        sync.Mutex
	sources   map[string]model.Source
	installed map[string]string
	fail      map[string]error
	opts      map[string]registry.InstallOptions
}

func newFakeInstaller() *fakeInstaller {
	return &fakeInstaller{
		sources:   map[string]model.Source{},
		installed: map[string]string{},
		fail:      map[string]error{},
		opts:      map[string]registry.InstallOptions{},
	}
}

func (f *fakeInstaller) EnsureSource(s model.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[s.ID] = s
	return nil
}

func (f *fakeInstaller) RemoveSource(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[id]; !ok {
		return pkgerrors.NewNotFoundError(pkgerrors.KindSource, id)
	}
	delete(f.sources, id)
	return nil
}

func (f *fakeInstaller) sourceIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sources))
	for id := range f.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (f *fakeInstaller) InstallBundle(_ context.Context, id string, opts registry.InstallOptions) (*registry.InstallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	v := opts.Version
	if v == "" {
		v = "9.9.9"
	}
	f.installed[id] = v
	f.opts[id] = opts
	return &registry.InstallResult{Installed: &model.InstalledBundle{BundleID: id, Version: v, Scope: opts.Scope}}, nil
}

func (f *fakeInstaller) UninstallBundle(_ context.Context, id string, _ model.Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.installed[id]; !ok {
		return pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
	}
	delete(f.installed, id)
	return nil
}

func (f *fakeInstaller) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.installed))
	for id := range f.installed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type hubEnv struct {
	manager   *Manager
	storage   *Storage
	installer *fakeInstaller
	hubDir    string
}

func newHubEnv(t *testing.T, history SyncRecorder) *hubEnv {
	t.Helper()
	base := t.TempDir()
	hubDir := filepath.Join(base, "hub")
	require.NoError(t, os.MkdirAll(hubDir, 0o755))
	writeHub(t, hubDir, teamHub)

	storage, err := NewStorage(filepath.Join(base, "storage"))
	require.NoError(t, err)
	installer := newFakeInstaller()
	m, err := NewManager(Options{
		Storage:   storage,
		Fetcher:   NewRefFetcher(nil, ""),
		Installer: installer,
		History:   history,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &hubEnv{manager: m, storage: storage, installer: installer, hubDir: hubDir}
}

func writeHub(t *testing.T, dir, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(doc), 0o644))
}

func (e *hubEnv) importHub(t *testing.T) string {
	t.Helper()
	id, err := e.manager.ImportHub(context.Background(), model.HubReference{Type: model.HubReferenceLocal, Location: e.hubDir}, "")
	require.NoError(t, err)
	return id
}

func TestImportHub_LocalDirectory(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)
	assert.Equal(t, "team-hub", id)

	info, err := env.manager.GetHubInfo(id)
	require.NoError(t, err)
	assert.Equal(t, "Team Hub", info.Hub.Metadata.Name)
	assert.Len(t, info.Hub.Profiles, 2)
	assert.Equal(t, model.HubReferenceLocal, info.Reference.Type)
	assert.False(t, info.LastSync.IsZero())

	_, err = env.manager.ImportHub(context.Background(), info.Reference, "")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	hubs, err := env.manager.ListHubs()
	require.NoError(t, err)
	require.Len(t, hubs, 1)
	assert.Equal(t, id, hubs[0].ID)
}

func TestImportHub_InvalidReference(t *testing.T) {
	env := newHubEnv(t, nil)
	tests := []struct {
		name string
		ref  model.HubReference
	}{
		{"missing type", model.HubReference{Location: env.hubDir}},
		{"missing location", model.HubReference{Type: model.HubReferenceURL}},
		{"unknown type", model.HubReference{Type: "ftp", Location: "ftp://example.com"}},
		{"github without owner", model.HubReference{Type: model.HubReferenceGitHub, Location: "just-a-name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.ImportHub(context.Background(), tt.ref, "")
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
		})
	}

	assert.NoError(t, ValidateReference(model.HubReference{Type: model.HubReferenceGitHub, Location: "acme/prompt-hub"}))
}

func TestImportHub_FetchFailureNamesOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := mocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))

	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	m, err := NewManager(Options{Storage: storage, Fetcher: fetcher})
	require.NoError(t, err)

	_, err = m.ImportHub(context.Background(), model.HubReference{Type: model.HubReferenceURL, Location: "https://example.com/hub.yml"}, "")
	require.Error(t, err)
	assert.Equal(t, "import hub: connection refused", err.Error())
}

func TestSyncHub_InvalidDocumentLeavesHubUntouched(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)

	writeHub(t, env.hubDir, "version: 1.0.0\nmetadata:\n  description: no name\n")
	_, err := env.manager.SyncHub(context.Background(), id)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	info, err := env.manager.GetHubInfo(id)
	require.NoError(t, err)
	assert.Equal(t, "Team Hub", info.Hub.Metadata.Name)
	assert.Len(t, info.Hub.Profiles, 2)

	writeHub(t, env.hubDir, teamHub+"  - id: docs\n    name: Docs\n    bundles: []\n")
	synced, err := env.manager.SyncHub(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, synced.Hub.Profiles, 3)
}

func TestHubSources_RemovedWithHub(t *testing.T) {
	env := newHubEnv(t, nil)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)
	require.NoError(t, env.installer.EnsureSource(model.Source{ID: "corp"}))
	assert.Equal(t, []string{"corp", HubSourceID(id, "main")}, env.installer.sourceIDs())

	require.NoError(t, env.manager.DeleteHub(id))
	assert.Equal(t, []string{"corp"}, env.installer.sourceIDs())
}

func TestSyncHub_DropsRemovedSources(t *testing.T) {
	env := newHubEnv(t, nil)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.ActivateProfile(ctx, id, "frontend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)
	require.Equal(t, []string{HubSourceID(id, "main")}, env.installer.sourceIDs())

	writeHub(t, env.hubDir, "version: 1.0.0\nmetadata:\n  name: Team Hub\nsources:\n  - id: other\n    type: local\n    url: /srv/other\nprofiles: []\n")
	_, err = env.manager.SyncHub(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, env.installer.sourceIDs())
}

func TestProfileLookups_NotFound(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)

	_, err := env.manager.GetHubProfile("nope", "backend")
	var nf *pkgerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, pkgerrors.KindHub, nf.Kind)

	_, err = env.manager.GetHubProfile(id, "nope")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, pkgerrors.KindProfile, nf.Kind)

	_, err = env.manager.ListProfilesFromHub("nope")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(env.manager.DeleteHub("nope")))

	p, err := env.manager.GetHubProfile(id, "frontend")
	require.NoError(t, err)
	assert.Equal(t, "Frontend", p.Name)

	all, err := env.manager.ListAllHubProfiles()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestActivateProfile_SwitchIsExclusive(t *testing.T) {
	env := newHubEnv(t, nil)
	ctx := context.Background()
	id := env.importHub(t)

	res, err := env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"b1", "shared"}, env.installer.ids())
	assert.Contains(t, env.installer.sources, "hub-team-hub-main")
	assert.Equal(t, "hub-team-hub-main", env.installer.opts["b1"].SourceID)
	require.NotNil(t, env.installer.opts["b1"].Hub)
	assert.Equal(t, "backend", env.installer.opts["b1"].Hub.ProfileID)

	res, err = env.manager.ActivateProfile(ctx, id, "frontend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "backend", res.Deactivated)
	assert.Equal(t, []string{"f1", "shared"}, env.installer.ids())
	assert.Empty(t, env.installer.opts["f1"].SourceID)

	backend, err := env.manager.GetActivation(id, "backend")
	require.NoError(t, err)
	assert.Nil(t, backend)
	frontend, err := env.manager.GetActivation(id, "frontend")
	require.NoError(t, err)
	require.NotNil(t, frontend)
	assert.Equal(t, []string{"shared", "f1"}, frontend.SyncedBundles)

	info, err := env.manager.GetHubInfo(id)
	require.NoError(t, err)
	assert.False(t, info.Hub.FindProfile("backend").Active)
	assert.True(t, info.Hub.FindProfile("frontend").Active)

	active, err := env.manager.GetActiveProfile(id)
	require.NoError(t, err)
	assert.Equal(t, "frontend", active.ProfileID)
	all, err := env.manager.ListAllActiveProfiles()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestActivateProfile_UnknownProfile(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)

	res, err := env.manager.ActivateProfile(context.Background(), id, "missing", ActivateOptions{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "profile not found")

	_, err = env.manager.ActivateProfile(context.Background(), "missing", "backend", ActivateOptions{})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestActivateProfile_WithoutInstall(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)

	res, err := env.manager.ActivateProfile(context.Background(), id, "backend", ActivateOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, env.installer.ids())

	st, err := env.manager.GetActivation(id, "backend")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b1": "1.0.0", "shared": "2.0.0"}, st.BundleVersions)
}

func TestActivateProfile_RequiredBundleFailure(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)
	env.installer.fail["b1"] = errors.New("download failed")

	res, err := env.manager.ActivateProfile(context.Background(), id, "backend", ActivateOptions{InstallBundles: true})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "install bundle b1")

	st, err := env.manager.GetActivation(id, "backend")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestActivateProfile_OptionalBundleFailureIsSkipped(t *testing.T) {
	env := newHubEnv(t, nil)
	id := env.importHub(t)
	env.installer.fail["shared"] = errors.New("download failed")

	res, err := env.manager.ActivateProfile(context.Background(), id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, res.Installed)
}

func TestDeactivateProfile(t *testing.T) {
	env := newHubEnv(t, nil)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)

	removed, err := env.manager.DeactivateProfile(ctx, id, "backend")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b1", "shared"}, removed)
	assert.Empty(t, env.installer.ids())

	removed, err = env.manager.DeactivateProfile(ctx, id, "backend")
	require.NoError(t, err)
	assert.Empty(t, removed)

	info, err := env.manager.GetHubInfo(id)
	require.NoError(t, err)
	assert.False(t, info.Hub.FindProfile("backend").Active)

	_, err = env.manager.DeactivateProfile(ctx, id, "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestSyncProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockSyncRecorder(ctrl)
	env := newHubEnv(t, history)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.SyncProfile(ctx, id, "backend")
	assert.ErrorIs(t, err, pkgerrors.ErrProfileNotActive)

	_, err = env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)

	updated := `version: 1.0.0
metadata:
  name: Team Hub
sources:
  - id: main
    type: local-awesome-copilot
    url: /srv/prompts
profiles:
  - id: backend
    name: Backend
    bundles:
      - id: shared
        version: 2.1.0
        source: main
      - id: b2
        version: 1.0.0
        source: main
`
	writeHub(t, env.hubDir, updated)
	_, err = env.manager.SyncHub(ctx, id)
	require.NoError(t, err)

	var recorded model.Changes
	var previous model.SyncPreviousState
	history.EXPECT().
		RecordSync(id, "backend", gomock.Any(), gomock.Any(), model.SyncStatusSuccess).
		DoAndReturn(func(_, _ string, c model.Changes, p model.SyncPreviousState, _ model.SyncStatus) (*model.SyncHistoryEntry, error) {
			recorded, previous = c, p
			return &model.SyncHistoryEntry{ID: "e1", Status: model.SyncStatusSuccess, Changes: c}, nil
		})

	res, err := env.manager.SyncProfile(ctx, id, "backend")
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.Equal(t, "e1", res.Entry.ID)

	assert.Equal(t, []model.ProfileBundle{{ID: "b2", Version: "1.0.0", Source: "main"}}, recorded.Added)
	assert.Equal(t, []model.BundleUpdate{{ID: "shared", OldVersion: "2.0.0", NewVersion: "2.1.0"}}, recorded.Updated)
	assert.Equal(t, []string{"b1"}, recorded.Removed)
	assert.Len(t, previous.Bundles, 2)

	assert.Equal(t, []string{"b2", "shared"}, env.installer.ids())
	st, err := env.manager.GetActivation(id, "backend")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"shared": "2.1.0", "b2": "1.0.0"}, st.BundleVersions)

	// Nothing left to apply: no history entry.
	res, err = env.manager.SyncProfile(ctx, id, "backend")
	require.NoError(t, err)
	assert.True(t, res.Changes.Empty())
	assert.Nil(t, res.Entry)
}

func TestSyncProfile_FailureIsRecorded(t *testing.T) {
	ctrl := gomock.NewController(t)
	history := mocks.NewMockSyncRecorder(ctrl)
	env := newHubEnv(t, history)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{})
	require.NoError(t, err)
	env.installer.fail["b1"] = errors.New("offline")

	history.EXPECT().
		RecordFailure(id, "backend", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&model.SyncHistoryEntry{ID: "e1", Status: model.SyncStatusFailure}, nil)

	// A recorded version that differs from the hub forces a reinstall of b1.
	st, err := env.manager.GetActivation(id, "backend")
	require.NoError(t, err)
	st.BundleVersions["b1"] = "0.9.0"
	require.NoError(t, env.storage.SaveActivation(st))

	res, err := env.manager.SyncProfile(ctx, id, "backend")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync profile team-hub/backend")
	assert.Equal(t, model.SyncStatusFailure, res.Entry.Status)
}

func TestApplyBundles(t *testing.T) {
	env := newHubEnv(t, nil)
	ctx := context.Background()
	id := env.importHub(t)

	_, err := env.manager.ApplyBundles(ctx, id, "backend", nil, false)
	assert.ErrorIs(t, err, pkgerrors.ErrProfileNotActive)

	_, err = env.manager.ActivateProfile(ctx, id, "backend", ActivateOptions{InstallBundles: true})
	require.NoError(t, err)

	changes, err := env.manager.ApplyBundles(ctx, id, "backend", []model.ProfileBundle{{ID: "b1", Version: "0.9.0", Source: "main"}}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared"}, changes.Removed)
	assert.Equal(t, []model.BundleUpdate{{ID: "b1", OldVersion: "1.0.0", NewVersion: "0.9.0"}}, changes.Updated)
	assert.Equal(t, []string{"b1"}, env.installer.ids())
	assert.Equal(t, "0.9.0", env.installer.installed["b1"])
}
