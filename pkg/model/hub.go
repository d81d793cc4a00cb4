package model

import "time"

// HubReferenceType identifies where a hub document is fetched from.
type HubReferenceType string

const (
	HubReferenceGitHub HubReferenceType = "github"
	HubReferenceURL    HubReferenceType = "url"
	HubReferenceLocal  HubReferenceType = "local"
)

// HubReference locates a hub document.
type HubReference struct {
	Type     HubReferenceType `json:"type" yaml:"type"`
	Location string           `json:"location" yaml:"location"`
	Ref      string           `json:"ref,omitempty" yaml:"ref,omitempty"`
	AutoSync bool             `json:"autoSync,omitempty" yaml:"autoSync,omitempty"`
}

// HubMetadata describes a hub.
type HubMetadata struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Maintainer  string    `json:"maintainer" yaml:"maintainer"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// HubSource is a source declared by a hub document.
type HubSource struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name,omitempty" yaml:"name,omitempty"`
	Type            SourceType `json:"type" yaml:"type"`
	URL             string     `json:"url" yaml:"url"`
	Enabled         *bool      `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Priority        int        `json:"priority,omitempty" yaml:"priority,omitempty"`
	Branch          string     `json:"branch,omitempty" yaml:"branch,omitempty"`
	CollectionsPath string     `json:"collectionsPath,omitempty" yaml:"collectionsPath,omitempty"`
}

// IsEnabled reports whether the hub source is enabled; sources are enabled unless disabled explicitly.
func (s HubSource) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ProfileBundle references a bundle from a profile.
type ProfileBundle struct {
	ID       string `json:"id" yaml:"id"`
	Version  string `json:"version" yaml:"version"`
	Source   string `json:"source" yaml:"source"`
	Required bool   `json:"required" yaml:"required"`
}

// Profile is a named desired set of bundles within a hub.
type Profile struct {
	ID          string          `json:"id" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Icon        string          `json:"icon,omitempty" yaml:"icon,omitempty"`
	Active      bool            `json:"active" yaml:"active"`
	CreatedAt   time.Time       `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	Bundles     []ProfileBundle `json:"bundles" yaml:"bundles"`
}

// Hub is a declarative document bundling sources and profiles.
type Hub struct {
	Version  string      `json:"version" yaml:"version"`
	Metadata HubMetadata `json:"metadata" yaml:"metadata"`
	Sources  []HubSource `json:"sources" yaml:"sources"`
	Profiles []Profile   `json:"profiles" yaml:"profiles"`
}

// FindProfile returns the profile with the given id, or nil.
func (h *Hub) FindProfile(id string) *Profile {
	for i := range h.Profiles {
		if h.Profiles[i].ID == id {
			return &h.Profiles[i]
		}
	}
	return nil
}

// FindSource returns the hub source with the given id, or nil.
func (h *Hub) FindSource(id string) *HubSource {
	for i := range h.Sources {
		if h.Sources[i].ID == id {
			return &h.Sources[i]
		}
	}
	return nil
}

// HubInfo is a stored hub together with its reference.
type HubInfo struct {
	ID        string       `json:"id"`
	Hub       *Hub         `json:"hub"`
	Reference HubReference `json:"reference"`
	LastSync  time.Time    `json:"lastSync"`
}

// ProfileActivationState is the persisted state of an active profile.
type ProfileActivationState struct {
	HubID          string            `json:"hubId"`
	ProfileID      string            `json:"profileId"`
	ActivatedAt    time.Time         `json:"activatedAt"`
	SyncedBundles  []string          `json:"syncedBundles"`
	BundleVersions map[string]string `json:"bundleVersions,omitempty"`
	BundleSources  map[string]string `json:"bundleSources,omitempty"`
}

// Bundles rebuilds the bundle references the state was synced from.
func (s *ProfileActivationState) Bundles() []ProfileBundle {
	out := make([]ProfileBundle, 0, len(s.SyncedBundles))
	for _, id := range s.SyncedBundles {
		out = append(out, ProfileBundle{ID: id, Version: s.BundleVersions[id], Source: s.BundleSources[id]})
	}
	return out
}
