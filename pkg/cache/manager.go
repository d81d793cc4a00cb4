// Package cache reports on and cleans the download cache: bundle archives
// kept per source under <cache_dir>/downloads/<sourceID>.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/glorpus-work/promptreg/pkg/errors"
)

// CleanOptions specifies what to clean from the cache.
type CleanOptions struct {
	// Sources limits cleaning to these source ids; empty cleans everything.
	Sources []string
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed   int64 `json:"totalFreed"`
	FilesRemoved int   `json:"filesRemoved"`
}

// SourceInfo describes the cached archives of one source.
type SourceInfo struct {
	SourceID string `json:"sourceId"`
	Size     int64  `json:"size"`
	Files    int    `json:"files"`
}

// Info represents cache information.
type Info struct {
	Directory  string       `json:"directory"`
	TotalSize  int64        `json:"totalSize"`
	TotalFiles int          `json:"totalFiles"`
	Sources    []SourceInfo `json:"sources"`
}

// Manager implements cache operations on one directory.
type Manager struct {
	directory string
}

// NewManager creates a new cache manager. The directory must be absolute; it
// does not need to exist.
func NewManager(directory string) (*Manager, error) {
	if directory == "" || !filepath.IsAbs(directory) {
		return nil, fmt.Errorf("%w: %q must be an absolute path", ErrCacheDirectory, directory)
	}
	return &Manager{directory: directory}, nil
}

// GetDirectory returns the cache directory path.
func (cm *Manager) GetDirectory() string {
	return cm.directory
}

// GetInfo returns the size and file count of every cached source.
func (cm *Manager) GetInfo() (*Info, error) {
	info := &Info{Directory: cm.directory, Sources: []SourceInfo{}}

	ids, err := cm.sourceIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		size, count, err := getDirSizeAndFiles(filepath.Join(cm.directory, id))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get cache info for %s", id)
		}
		info.Sources = append(info.Sources, SourceInfo{SourceID: id, Size: size, Files: count})
		info.TotalSize += size
		info.TotalFiles += count
	}
	return info, nil
}

// Clean removes cached archives according to the specified options.
func (cm *Manager) Clean(options CleanOptions) (*CleanResult, error) {
	ids := options.Sources
	if len(ids) == 0 {
		var err error
		if ids, err = cm.sourceIDs(); err != nil {
			return nil, err
		}
	}

	result := &CleanResult{}
	for _, id := range ids {
		if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
			return nil, fmt.Errorf("%w: %q", ErrCacheSource, id)
		}
		size, count, err := cleanDirectory(filepath.Join(cm.directory, id))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to clean cache for %s", id)
		}
		result.TotalFreed += size
		result.FilesRemoved += count
	}
	return result, nil
}

func (cm *Manager) sourceIDs() ([]string, error) {
	entries, err := os.ReadDir(cm.directory)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cache directory %s", cm.directory)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// cleanDirectory removes a directory and returns bytes and files freed.
func cleanDirectory(dir string) (int64, int, error) {
	size, count, err := getDirSizeAndFiles(dir)
	if err != nil {
		return 0, 0, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, 0, errors.Wrapf(err, "failed to remove directory %s", dir)
	}
	return size, count, nil
}

// getDirSizeAndFiles calculates directory size and file count. A missing
// directory is empty.
func getDirSizeAndFiles(dir string) (size int64, count int, err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		return 0, 0, nil
	}

	err = filepath.Walk(dir, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "error walking directory %s", dir)
	}
	return size, count, err
}

// FormatBytes converts bytes to a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T", "P", "E"}
	if exp < len(units) {
		return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
	}
	return fmt.Sprintf("%d B", bytes)
}
