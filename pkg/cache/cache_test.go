package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/promptreg/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCached(t *testing.T, dir, source, name string, size int) {
	t.Helper()
	p := filepath.Join(dir, source, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o700))
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o600))
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name        string
		directory   string
		expectError bool
	}{
		{name: "valid directory", directory: t.TempDir()},
		{name: "non-existent directory", directory: filepath.Join(t.TempDir(), "nonexistent")},
		{name: "empty directory", directory: "", expectError: true},
		{name: "relative directory", directory: "cache", expectError: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			mgr, err := cache.NewManager(testCase.directory)
			if testCase.expectError {
				assert.ErrorIs(t, err, cache.ErrCacheDirectory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.directory, mgr.GetDirectory())
		})
	}
}

func TestGetInfo(t *testing.T) {
	dir := t.TempDir()
	writeCached(t, dir, "corp", "a", 100)
	writeCached(t, dir, "corp", "b", 50)
	writeCached(t, dir, "gh", "c", 10)

	mgr, err := cache.NewManager(dir)
	require.NoError(t, err)

	info, err := mgr.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, int64(160), info.TotalSize)
	assert.Equal(t, 3, info.TotalFiles)
	assert.Equal(t, []cache.SourceInfo{
		{SourceID: "corp", Size: 150, Files: 2},
		{SourceID: "gh", Size: 10, Files: 1},
	}, info.Sources)
}

func TestGetInfo_MissingDirectory(t *testing.T) {
	mgr, err := cache.NewManager(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)

	info, err := mgr.GetInfo()
	require.NoError(t, err)
	assert.Zero(t, info.TotalSize)
	assert.Empty(t, info.Sources)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	writeCached(t, dir, "corp", "a", 100)
	writeCached(t, dir, "gh", "c", 10)

	mgr, err := cache.NewManager(dir)
	require.NoError(t, err)

	result, err := mgr.Clean(cache.CleanOptions{Sources: []string{"gh"}})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.TotalFreed)
	assert.Equal(t, 1, result.FilesRemoved)
	assert.NoDirExists(t, filepath.Join(dir, "gh"))
	assert.DirExists(t, filepath.Join(dir, "corp"))

	result, err = mgr.Clean(cache.CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.TotalFreed)
	assert.NoDirExists(t, filepath.Join(dir, "corp"))

	result, err = mgr.Clean(cache.CleanOptions{Sources: []string{"unknown"}})
	require.NoError(t, err)
	assert.Zero(t, result.TotalFreed)
}

func TestClean_RejectsTraversal(t *testing.T) {
	mgr, err := cache.NewManager(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"..", "../etc", "a/b", ""} {
		_, err := mgr.Clean(cache.CleanOptions{Sources: []string{id}})
		assert.ErrorIs(t, err, cache.ErrCacheSource, id)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", cache.FormatBytes(512))
	assert.Equal(t, "1.5 KB", cache.FormatBytes(1536))
	assert.Equal(t, "2.0 MB", cache.FormatBytes(2*1024*1024))
}
