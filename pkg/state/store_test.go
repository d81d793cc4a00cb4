package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[Backend]Stores {
	t.Helper()
	out := make(map[Backend]Stores)
	for _, backend := range []Backend{BackendJSON, BackendSQLite} {
		stores, closer, err := OpenStores(backend, t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = closer.Close() })
		out[backend] = stores
	}
	return out
}

func TestStores_CRUD(t *testing.T) {
	for backend, stores := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			user := stores[model.ScopeUser]
			require.NotNil(t, user)

			_, err := user.Get("b1")
			assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

			installedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, user.Put(model.InstalledBundle{
				BundleID:    "b1",
				Version:     "1.0.0",
				SourceID:    "src",
				SourceType:  model.SourceTypeLocal,
				InstalledAt: installedAt,
				Files:       []string{"bundles/b1/prompts/a.prompt.md"},
			}))
			require.NoError(t, user.Put(model.InstalledBundle{BundleID: "a0", Version: "0.1.0", SourceID: "src"}))

			rec, err := user.Get("b1")
			require.NoError(t, err)
			assert.Equal(t, "1.0.0", rec.Version)
			assert.Equal(t, model.ScopeUser, rec.Scope)
			assert.Equal(t, model.SourceTypeLocal, rec.SourceType)
			assert.True(t, installedAt.Equal(rec.InstalledAt))
			assert.Equal(t, []string{"bundles/b1/prompts/a.prompt.md"}, rec.Files)

			list, err := user.List()
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a0", list[0].BundleID)
			assert.Equal(t, "b1", list[1].BundleID)

			require.NoError(t, user.Put(model.InstalledBundle{BundleID: "b1", Version: "1.1.0", SourceID: "src"}))
			rec, err = user.Get("b1")
			require.NoError(t, err)
			assert.Equal(t, "1.1.0", rec.Version)

			require.NoError(t, user.Delete("b1"))
			require.NoError(t, user.Delete("b1"))
			_, err = user.Get("b1")
			assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
		})
	}
}

func TestStores_ScopesAreIndependent(t *testing.T) {
	for backend, stores := range openAll(t) {
		t.Run(string(backend), func(t *testing.T) {
			require.NoError(t, stores[model.ScopeWorkspace].Put(model.InstalledBundle{BundleID: "b1", Version: "1.0.0"}))

			rec, err := stores.Lookup(model.ScopeWorkspace, "b1")
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, model.ScopeWorkspace, rec.Scope)

			for _, scope := range []model.Scope{model.ScopeUser, model.ScopeRepository} {
				rec, err := stores.Lookup(scope, "b1")
				require.NoError(t, err)
				assert.Nil(t, rec, "scope %s", scope)
			}
		})
	}
}

func TestJSONStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed-user.json")
	s, err := NewJSONStore(path, model.ScopeUser)
	require.NoError(t, err)
	require.NoError(t, s.Put(model.InstalledBundle{BundleID: "b1", Version: "1.0.0"}))

	reopened, err := NewJSONStore(path, model.ScopeUser)
	require.NoError(t, err)
	rec, err := reopened.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", rec.Version)
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installed-user.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewJSONStore(path, model.ScopeUser)
	assert.Error(t, err)
}

func TestJSONStore_RequiresAbsolutePath(t *testing.T) {
	_, err := NewJSONStore("relative.json", model.ScopeUser)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
}

func TestOpenStores_UnknownBackend(t *testing.T) {
	_, _, err := OpenStores("badger", t.TempDir())
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}
