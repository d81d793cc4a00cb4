package adapter

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/glorpus-work/promptreg/pkg/download"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
)

const remoteReadConcurrency = 8

// contentStore is the file tree behind a collection or package source, either
// a local directory or a GitHub repository. Paths are slash-separated and
// relative to the store root.
type contentStore interface {
	Glob(ctx context.Context, pattern string) ([]string, error)
	Read(ctx context.Context, p string) ([]byte, error)
	ReadAll(ctx context.Context, paths []string) (map[string][]byte, error)
	DirExists(ctx context.Context, dir string) (bool, error)
	Location(p string) string
	Reset()
}

type localStore struct {
	root string
}

func newLocalStore(root string) *localStore {
	return &localStore{root: root}
}

func (s *localStore) Glob(_ context.Context, pattern string) ([]string, error) {
	if !fsutil.IsDir(s.root) {
		return nil, &missingLocationError{what: "Directory " + s.root}
	}
	matches, err := doublestar.Glob(os.DirFS(s.root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to scan %s", s.root)
	}
	sort.Strings(matches)
	return matches, nil
}

func (s *localStore) Read(_ context.Context, p string) ([]byte, error) {
	full, err := fsutil.SafeJoin(s.root, p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", p)
	}
	return data, nil
}

func (s *localStore) ReadAll(ctx context.Context, paths []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(paths))
	for _, p := range paths {
		data, err := s.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		out[p] = data
	}
	return out, nil
}

func (s *localStore) DirExists(_ context.Context, dir string) (bool, error) {
	return fsutil.IsDir(filepath.Join(s.root, filepath.FromSlash(dir))), nil
}

func (s *localStore) Location(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(p))
}

func (s *localStore) Reset() {}

type gitTree struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type githubStore struct {
	repo    githubRepo
	branch  string
	apiBase string
	rawBase string
	fetcher download.Fetcher

	mu    sync.Mutex
	files []string
}

func newGitHubStore(source model.Source, opts Options) (*githubStore, error) {
	repo, err := parseGitHubRepo(source.URL)
	if err != nil {
		return nil, err
	}
	branch := source.Config.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	return &githubStore{
		repo:    repo,
		branch:  branch,
		apiBase: strings.TrimSuffix(opts.GitHubAPIBase, "/"),
		rawBase: strings.TrimSuffix(opts.RawBase, "/"),
		fetcher: opts.Fetcher,
	}, nil
}

func (s *githubStore) tree(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files != nil {
		return s.files, nil
	}

	var tree gitTree
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", s.apiBase, s.repo.Owner, s.repo.Name, s.branch)
	if err := s.fetcher.GetJSON(ctx, url, &tree); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list repository %s", s.repo)
	}
	files := make([]string, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			files = append(files, entry.Path)
		}
	}
	sort.Strings(files)
	s.files = files
	return files, nil
}

func (s *githubStore) Glob(ctx context.Context, pattern string) ([]string, error) {
	files, err := s.tree(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if ok, _ := doublestar.Match(pattern, f); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *githubStore) Read(ctx context.Context, p string) ([]byte, error) {
	return s.fetcher.Get(ctx, s.Location(p))
}

func (s *githubStore) ReadAll(ctx context.Context, paths []string) (map[string][]byte, error) {
	urls := make([]string, len(paths))
	for i, p := range paths {
		urls[i] = s.Location(p)
	}
	byURL, err := s.fetcher.GetAll(ctx, urls, remoteReadConcurrency)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(paths))
	for i, p := range paths {
		out[p] = byURL[urls[i]]
	}
	return out, nil
}

func (s *githubStore) DirExists(ctx context.Context, dir string) (bool, error) {
	files, err := s.tree(ctx)
	if err != nil {
		return false, err
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for _, f := range files {
		if strings.HasPrefix(f, prefix) {
			return true, nil
		}
	}
	return false, nil
}

func (s *githubStore) Location(p string) string {
	return s.rawBase + "/" + path.Join(s.repo.Owner, s.repo.Name, s.branch, p)
}

func (s *githubStore) Reset() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}
