// Package model provides the data structures shared by the promptreg packages:
// sources, the bundles they expose, installation records, hubs and profiles.
package model

import "slices"

// SourceType identifies the provider behind a Source.
type SourceType string

const (
	// SourceTypeGitHub is a git-hosted remote publishing bundles as releases.
	SourceTypeGitHub SourceType = "github"
	// SourceTypeHTTP is a generic HTTP endpoint serving an index.json catalog.
	SourceTypeHTTP SourceType = "http"
	// SourceTypeLocal is a local directory of bundles.
	SourceTypeLocal SourceType = "local"
	// SourceTypeAwesomeCopilot is a remote curated collection repository.
	SourceTypeAwesomeCopilot SourceType = "awesome-copilot"
	// SourceTypeLocalAwesomeCopilot is a curated collection repository on disk.
	SourceTypeLocalAwesomeCopilot SourceType = "local-awesome-copilot"
	// SourceTypeAPM is a remote agent package repository.
	SourceTypeAPM SourceType = "apm"
	// SourceTypeLocalAPM is an agent package directory on disk.
	SourceTypeLocalAPM SourceType = "local-apm"
)

// SourceTypes returns every supported source type.
func SourceTypes() []SourceType {
	return []SourceType{
		SourceTypeGitHub,
		SourceTypeHTTP,
		SourceTypeLocal,
		SourceTypeAwesomeCopilot,
		SourceTypeLocalAwesomeCopilot,
		SourceTypeAPM,
		SourceTypeLocalAPM,
	}
}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	return slices.Contains(SourceTypes(), t)
}

// IsLocal reports whether the source type is backed by the local filesystem.
func (t SourceType) IsLocal() bool {
	switch t {
	case SourceTypeLocal, SourceTypeLocalAwesomeCopilot, SourceTypeLocalAPM:
		return true
	default:
		return false
	}
}

// SourceConfig holds the optional per-type settings of a source.
type SourceConfig struct {
	// Branch is the git ref used by git-hosted types (default "main").
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
	// CollectionsPath is the sub-path scanned for collection manifests.
	CollectionsPath string `json:"collectionsPath,omitempty" yaml:"collectionsPath,omitempty"`
	// Token authenticates against the hosting API.
	Token string `json:"-" yaml:"token,omitempty"`
}

// Source is a configured provider of bundles.
type Source struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Type     SourceType   `json:"type" yaml:"type"`
	URL      string       `json:"url" yaml:"url"`
	Enabled  bool         `json:"enabled" yaml:"enabled"`
	Priority int          `json:"priority" yaml:"priority"`
	Config   SourceConfig `json:"config,omitempty" yaml:"config,omitempty"`
}

// SourceMetadata is the summary returned by an adapter for its source.
type SourceMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BundleCount int    `json:"bundleCount"`
	LastUpdated string `json:"lastUpdated"`
}

// ValidationResult is the structured outcome of validating a source or lockfile.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	Errors        []string `json:"errors"`
	BundlesFound  int      `json:"bundlesFound,omitempty"`
	SchemaVersion string   `json:"schemaVersion,omitempty"`
}
