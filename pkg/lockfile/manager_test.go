package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(bundleID, sourceID string, files ...FileEntry) UpdateOptions {
	return UpdateOptions{
		BundleID: bundleID,
		Entry:    BundleEntry{Version: "1.0.0", CommitMode: model.CommitModeCommit, Files: files},
		SourceID: sourceID,
		Source:   SourceEntry{Type: model.SourceTypeGitHub, URL: "https://github.com/octo/" + sourceID},
	}
}

func writeRepoFile(t *testing.T, root, rel, content string) FileEntry {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	return FileEntry{Path: rel, Checksum: fsutil.Checksum([]byte(content))}
}

func assertNoOrphans(t *testing.T, lf *Lockfile) {
	t.Helper()
	for id, b := range lf.Bundles {
		_, ok := lf.Sources[b.SourceID]
		assert.True(t, ok, "bundle %s references missing source %s", id, b.SourceID)
	}
	for id := range lf.Sources {
		used := false
		for _, b := range lf.Bundles {
			used = used || b.SourceID == id
		}
		assert.True(t, used, "source %s is orphaned", id)
	}
}

func TestCreateOrUpdate_WritesFormat(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, "promptreg@1.2.3")

	require.NoError(t, m.CreateOrUpdate(update("b1", "s1", FileEntry{Path: `.github\prompts\a.prompt.md`, Checksum: "abc"})))

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"$schema\""), "two-space indentation")

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"$schema", "version", "generatedAt", "generatedBy", "bundles", "sources"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "hubs")

	lf, err := m.Read()
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.Equal(t, FormatVersion, lf.Version)
	assert.Equal(t, "promptreg@1.2.3", lf.GeneratedBy)
	entry := lf.Bundles["b1"]
	assert.Equal(t, ".github/prompts/a.prompt.md", entry.Files[0].Path)
	assert.Equal(t, model.SourceTypeGitHub, entry.SourceType)
	assert.NotEmpty(t, entry.Checksum)
	assert.False(t, entry.InstalledAt.IsZero())
}

func TestCreateOrUpdate_RejectsUnsafePaths(t *testing.T) {
	m := NewManager(t.TempDir(), "test")
	err := m.CreateOrUpdate(update("b1", "s1", FileEntry{Path: "../outside.md"}))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
	err = m.CreateOrUpdate(update("b1", "s1", FileEntry{Path: "/etc/passwd"}))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPath)
}

func TestRoundTrip_NetSetAndNoOrphans(t *testing.T) {
	m := NewManager(t.TempDir(), "test")

	require.NoError(t, m.CreateOrUpdate(update("b1", "s1")))
	require.NoError(t, m.CreateOrUpdate(update("b2", "s1")))
	require.NoError(t, m.CreateOrUpdate(update("b3", "s2")))
	require.NoError(t, m.Remove("b1"))
	require.NoError(t, m.CreateOrUpdate(update("b2", "s3")))
	require.NoError(t, m.Remove("missing"))

	lf, err := m.Read()
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.ElementsMatch(t, []string{"b2", "b3"}, keys(lf.Bundles))
	assert.ElementsMatch(t, []string{"s2", "s3"}, keys(lf.Sources))
	assertNoOrphans(t, lf)
}

func TestRemove_LastBundleDeletesFile(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, "test")
	require.NoError(t, m.CreateOrUpdate(update("b1", "s1")))
	require.FileExists(t, filepath.Join(root, FileName))

	require.NoError(t, m.Remove("b1"))
	assert.NoFileExists(t, filepath.Join(root, FileName))

	lf, err := m.Read()
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestRead_CorruptIsAbsent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("{not json"), 0o644))

	lf, err := NewManager(root, "test").Read()
	require.NoError(t, err)
	assert.Nil(t, lf)
}

func TestCreateOrUpdate_ConcurrentNoLostWrites(t *testing.T) {
	m := NewManager(t.TempDir(), "test")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.CreateOrUpdate(update(fmt.Sprintf("b%d", i), fmt.Sprintf("s%d", i%3)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	lf, err := m.Read()
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.Len(t, lf.Bundles, n)
	assertNoOrphans(t, lf)
}

func TestDetectModifiedFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, "test")
	a := writeRepoFile(t, root, ".github/prompts/a.prompt.md", "alpha")
	b := writeRepoFile(t, root, ".github/instructions/b.instructions.md", "beta")
	require.NoError(t, m.CreateOrUpdate(update("b1", "s1", a, b)))

	drift, err := m.DetectModifiedFiles("b1")
	require.NoError(t, err)
	assert.Empty(t, drift)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".github", "prompts", "a.prompt.md"), []byte("changed"), 0o644))
	drift, err = m.DetectModifiedFiles("b1")
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, ModificationModified, drift[0].ModificationType)
	assert.Equal(t, a.Path, drift[0].Path)
	assert.NotEqual(t, drift[0].OriginalChecksum, drift[0].CurrentChecksum)

	require.NoError(t, os.Remove(filepath.Join(root, ".github", "instructions", "b.instructions.md")))
	drift, err = m.DetectModifiedFiles("b1")
	require.NoError(t, err)
	require.Len(t, drift, 2)
	assert.Equal(t, ModificationMissing, drift[1].ModificationType)

	drift, err = m.DetectModifiedFiles("unknown")
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestSubscribe(t *testing.T) {
	m := NewManager(t.TempDir(), "test")
	var seen []*Lockfile
	unsubscribe := m.Subscribe(func(lf *Lockfile) { seen = append(seen, lf) })

	require.NoError(t, m.CreateOrUpdate(update("b1", "s1")))
	require.NoError(t, m.SetCommitMode("b1", model.CommitModeLocalOnly))
	require.NoError(t, m.Remove("b1"))
	require.Len(t, seen, 3)
	assert.Contains(t, seen[0].Bundles, "b1")
	assert.Equal(t, model.CommitModeLocalOnly, seen[1].Bundles["b1"].CommitMode)
	assert.Nil(t, seen[2], "deletion publishes nil")

	unsubscribe()
	require.NoError(t, m.CreateOrUpdate(update("b2", "s1")))
	assert.Len(t, seen, 3)
}

func TestSetCommitMode_Errors(t *testing.T) {
	m := NewManager(t.TempDir(), "test")
	require.NoError(t, m.CreateOrUpdate(update("b1", "s1")))

	assert.ErrorIs(t, m.SetCommitMode("missing", model.CommitModeCommit), pkgerrors.ErrNotFound)
	assert.ErrorIs(t, m.SetCommitMode("b1", "sometimes"), pkgerrors.ErrInvalidConfig)
}

func TestHubAssociation_PrunedWithBundles(t *testing.T) {
	m := NewManager(t.TempDir(), "test")
	opts := update("b1", "s1")
	opts.Hub = &HubAssociation{
		HubID:       "corp",
		Hub:         HubEntry{Name: "Corp Hub", URL: "octo/hub"},
		ProfileID:   "backend",
		ProfileName: "Backend",
	}
	require.NoError(t, m.CreateOrUpdate(opts))
	require.NoError(t, m.CreateOrUpdate(update("b2", "s1")))

	lf, err := m.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, lf.Profiles["backend"].Bundles)
	assert.Equal(t, "Corp Hub", lf.Hubs["corp"].Name)

	require.NoError(t, m.Remove("b1"))
	lf, err = m.Read()
	require.NoError(t, err)
	assert.Empty(t, lf.Profiles)
	assert.Empty(t, lf.Hubs)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, "test")

	result := m.Validate()
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "lockfile not found")

	require.NoError(t, m.CreateOrUpdate(update("b1", "s1")))
	result = m.Validate()
	assert.True(t, result.Valid, result.Errors)
	assert.Equal(t, FormatVersion, result.SchemaVersion)

	broken := `{"version":"1.0.0","bundles":{"b1":{"version":"1.0.0","sourceId":"gone","sourceType":"github","installedAt":"2024-01-01T00:00:00Z","commitMode":"commit","files":[{"path":"../x","checksum":"y"}]},"b2":{"version":"1"}},"sources":{}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(broken), 0o644))
	result = m.Validate()
	assert.False(t, result.Valid)
	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "missing required field: $schema")
	assert.Contains(t, joined, "bundle b1: source gone is not listed in sources")
	assert.Contains(t, joined, `bundle b1: invalid file path "../x"`)
	assert.Contains(t, joined, "bundle b2: missing required field: sourceId")
}

func TestProvider(t *testing.T) {
	p := NewProvider("test")

	_, err := p.Get("")
	assert.ErrorIs(t, err, pkgerrors.ErrRepositoryPathRequired)

	root := t.TempDir()
	m1, err := p.Get(root)
	require.NoError(t, err)
	m2, err := p.Get("")
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	_, err = p.Get(t.TempDir())
	assert.ErrorIs(t, err, pkgerrors.ErrRepositoryPathMismatch)

	p.Reset()
	other := t.TempDir()
	m3, err := p.Get(other)
	require.NoError(t, err)
	assert.Equal(t, other, m3.Root())
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
