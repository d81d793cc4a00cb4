package adapter

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// missingLocationError reports that the backing location of a source is absent.
type missingLocationError struct {
	what string
}

func (e *missingLocationError) Error() string { return e.what + " does not exist" }

func (e *missingLocationError) Is(target error) bool { return target == pkgerrors.ErrNotFound }

// localRoot accepts an absolute filesystem path or a file:// URL.
func localRoot(location string) (string, error) {
	if location == "" {
		return "", pkgerrors.NewConfigError("url", "", "is required")
	}
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", pkgerrors.NewConfigError("url", location, err.Error())
		}
		p := filepath.FromSlash(u.Path)
		if !filepath.IsAbs(p) {
			return "", pkgerrors.NewConfigError("url", location, "file URL must carry an absolute path")
		}
		return filepath.Clean(p), nil
	}
	if strings.Contains(location, "://") {
		return "", pkgerrors.NewConfigError("url", location, "local sources require an absolute path or a file:// URL")
	}
	if !filepath.IsAbs(location) {
		return "", pkgerrors.NewConfigError("url", location, "must be an absolute path")
	}
	return filepath.Clean(location), nil
}

// LocalRoot returns the directory a local source type reads from.
func LocalRoot(source model.Source) (string, error) {
	if !source.Type.IsLocal() {
		return "", pkgerrors.NewConfigError("type", string(source.Type), "not a local source type")
	}
	return localRoot(source.URL)
}

type githubRepo struct {
	Owner string
	Name  string
}

func (r githubRepo) String() string { return r.Owner + "/" + r.Name }

// parseGitHubRepo accepts "owner/name", "github.com/owner/name" and
// https URLs of the same, with an optional ".git" suffix.
func parseGitHubRepo(location string) (githubRepo, error) {
	trimmed := strings.TrimSpace(location)
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimPrefix(trimmed, "github.com/")
	trimmed = strings.TrimPrefix(trimmed, "www.github.com/")
	trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "/"), ".git")
	if !repoPattern.MatchString(trimmed) {
		return githubRepo{}, pkgerrors.NewConfigError("url", location, "expected a GitHub repository as owner/name")
	}
	owner, name, _ := strings.Cut(trimmed, "/")
	return githubRepo{Owner: owner, Name: name}, nil
}

func httpBase(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", pkgerrors.NewConfigError("url", location, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", pkgerrors.NewConfigError("url", location, "http sources require an http:// or https:// URL")
	}
	if u.Host == "" {
		return "", pkgerrors.NewConfigError("url", location, "missing host")
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}
