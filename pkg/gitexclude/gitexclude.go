// Package gitexclude maintains the promptreg section of a repository's
// .git/info/exclude file, which lists local-only installed files.
package gitexclude

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
)

// SectionHeader opens the managed section.
const SectionHeader = "# Prompt Registry (local)"

// Manager edits the exclude file of one repository.
type Manager struct {
	repoRoot string
	mu       sync.Mutex
}

// NewManager creates a Manager for the repository at repoRoot.
func NewManager(repoRoot string) *Manager {
	return &Manager{repoRoot: repoRoot}
}

func (m *Manager) excludePath() (string, error) {
	gitDir := filepath.Join(m.repoRoot, ".git")
	if !fsutil.IsDir(gitDir) {
		return "", pkgerrors.Wrapf(pkgerrors.ErrNotGitRepository, "%s", m.repoRoot)
	}
	return filepath.Join(gitDir, "info", "exclude"), nil
}

// Paths returns the paths currently listed in the managed section.
func (m *Manager) Paths() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, err := m.excludePath()
	if err != nil {
		return nil, err
	}
	content, err := readFile(path)
	if err != nil {
		return nil, err
	}
	_, managed, _, _ := split(content)
	return managed, nil
}

// Add lists paths in the managed section. Paths already listed are kept once.
func (m *Manager) Add(paths []string) error {
	return m.update(func(managed map[string]bool) {
		for _, p := range paths {
			managed[normalize(p)] = true
		}
	})
}

// Remove drops paths from the managed section, removing the section when it empties.
func (m *Manager) Remove(paths []string) error {
	return m.update(func(managed map[string]bool) {
		for _, p := range paths {
			delete(managed, normalize(p))
		}
	})
}

func (m *Manager) update(fn func(map[string]bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.excludePath()
	if err != nil {
		return err
	}
	content, err := readFile(path)
	if err != nil {
		return err
	}
	before, managed, after, found := split(content)

	set := make(map[string]bool, len(managed))
	for _, p := range managed {
		set[p] = true
	}
	fn(set)
	list := make([]string, 0, len(set))
	for p := range set {
		list = append(list, p)
	}
	sort.Strings(list)

	out := join(before, list, after, found)
	if out == content {
		return nil
	}
	return fsutil.WriteFileAtomic(path, []byte(out), fsutil.FileModeDefault)
}

func normalize(p string) string {
	return strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", pkgerrors.Wrap(err, "failed to read git exclude file")
	}
	return string(data), nil
}

// split separates content into the lines before the managed section, the
// managed paths, and the lines after it. The section ends at the first blank
// line. found reports whether the section header is present.
func split(content string) (before, managed, after []string, found bool) {
	if content == "" {
		return nil, nil, nil, false
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == SectionHeader {
			start = i
			break
		}
	}
	if start < 0 {
		return lines, nil, nil, false
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			end = i
			break
		}
		managed = append(managed, strings.TrimSpace(lines[i]))
	}
	before = lines[:start]
	if end < len(lines) {
		after = lines[end+1:]
	}
	return before, managed, after, true
}

// join renders the file. A new section is separated from existing content by
// one blank line; dropping the section removes that one line again.
func join(before, managed, after []string, found bool) string {
	parts := append([]string(nil), before...)
	switch {
	case len(managed) > 0:
		if !found && len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, SectionHeader)
		parts = append(parts, managed...)
		if len(after) > 0 {
			parts = append(parts, "")
		}
	case found && len(after) == 0:
		if n := len(parts); n > 0 && strings.TrimSpace(parts[n-1]) == "" {
			parts = parts[:n-1]
		}
	}
	parts = append(parts, after...)
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}
