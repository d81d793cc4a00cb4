// Package lockfile owns prompt-registry.lock.json, the repository ledger of
// installed bundles and the sources, hubs and profiles they came from.
package lockfile

import (
	"time"

	"github.com/glorpus-work/promptreg/pkg/model"
)

const (
	// FileName is the lockfile name at the repository root.
	FileName = "prompt-registry.lock.json"
	// SchemaURL is written to the $schema key.
	SchemaURL = "https://github.com/glorpus-work/promptreg/schemas/lockfile.schema.json"
	// FormatVersion is the lockfile format version.
	FormatVersion = "1.0.0"
)

// Lockfile is the persisted ledger.
type Lockfile struct {
	Schema      string                  `json:"$schema"`
	Version     string                  `json:"version"`
	GeneratedAt time.Time               `json:"generatedAt"`
	GeneratedBy string                  `json:"generatedBy"`
	Bundles     map[string]BundleEntry  `json:"bundles"`
	Sources     map[string]SourceEntry  `json:"sources"`
	Hubs        map[string]HubEntry     `json:"hubs,omitempty"`
	Profiles    map[string]ProfileEntry `json:"profiles,omitempty"`
}

// BundleEntry records one installed bundle.
type BundleEntry struct {
	Version     string           `json:"version"`
	SourceID    string           `json:"sourceId"`
	SourceType  model.SourceType `json:"sourceType"`
	InstalledAt time.Time        `json:"installedAt"`
	CommitMode  model.CommitMode `json:"commitMode"`
	Checksum    string           `json:"checksum,omitempty"`
	Files       []FileEntry      `json:"files"`
}

// FileEntry is one repository-relative file owned by a bundle.
type FileEntry struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}

// SourceEntry records a source referenced by at least one bundle.
type SourceEntry struct {
	Type   model.SourceType `json:"type"`
	URL    string           `json:"url"`
	Branch string           `json:"branch,omitempty"`
}

// HubEntry records a hub a bundle was installed through.
type HubEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ProfileEntry records a profile and the bundles it installed.
type ProfileEntry struct {
	Name    string   `json:"name"`
	HubID   string   `json:"hubId"`
	Bundles []string `json:"bundles"`
}

// HubAssociation optionally links an upserted bundle to a hub profile.
type HubAssociation struct {
	HubID       string
	Hub         HubEntry
	ProfileID   string
	ProfileName string
}

// UpdateOptions describes one CreateOrUpdate call.
type UpdateOptions struct {
	BundleID string
	Entry    BundleEntry
	SourceID string
	Source   SourceEntry
	Hub      *HubAssociation
}

// ModificationType classifies a drifted file.
type ModificationType string

const (
	ModificationMissing  ModificationType = "missing"
	ModificationModified ModificationType = "modified"
)

// ModifiedFile is one drifted file of a bundle.
type ModifiedFile struct {
	Path             string           `json:"path"`
	ModificationType ModificationType `json:"modificationType"`
	OriginalChecksum string           `json:"originalChecksum"`
	CurrentChecksum  string           `json:"currentChecksum,omitempty"`
}
