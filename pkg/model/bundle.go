package model

import (
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// ItemKind is the type of a content item inside a bundle.
type ItemKind string

const (
	ItemKindPrompt      ItemKind = "prompt"
	ItemKindInstruction ItemKind = "instruction"
	ItemKindChatMode    ItemKind = "chatmode"
	ItemKindAgent       ItemKind = "agent"
	ItemKindSkill       ItemKind = "skill"
)

// ItemKinds returns every supported content item kind.
func ItemKinds() []ItemKind {
	return []ItemKind{ItemKindPrompt, ItemKindInstruction, ItemKindChatMode, ItemKindAgent, ItemKindSkill}
}

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	return slices.Contains(ItemKinds(), k)
}

// ParseItemKind accepts the singular kinds plus the plural "instructions"
// spelling used by collection manifests.
func ParseItemKind(s string) (ItemKind, bool) {
	if s == "instructions" {
		return ItemKindInstruction, true
	}
	k := ItemKind(s)
	return k, k.Valid()
}

// Bundle is the catalog view of a versioned pack of content files.
type Bundle struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Version          string           `json:"version"`
	Description      string           `json:"description"`
	Author           string           `json:"author"`
	Environments     []string         `json:"environments"`
	Tags             []string         `json:"tags"`
	Size             int64            `json:"size"`
	License          string           `json:"license"`
	Dependencies     []string         `json:"dependencies"`
	DownloadURL      string           `json:"downloadUrl"`
	ManifestURL      string           `json:"manifestUrl"`
	SourceID         string           `json:"sourceId"`
	LastUpdated      time.Time        `json:"lastUpdated,omitempty"`
	ContentBreakdown map[ItemKind]int `json:"contentBreakdown,omitempty"`
}

// GetVersion returns the parsed version of this bundle, or nil when it is not semver.
func (b *Bundle) GetVersion() *version.Version {
	v, err := version.NewVersion(b.Version)
	if err != nil {
		return nil
	}
	return v
}

// NewerThan reports whether b carries a strictly greater version than other.
// Unparsable versions never win.
func (b *Bundle) NewerThan(other *Bundle) bool {
	bv, ov := b.GetVersion(), other.GetVersion()
	switch {
	case bv == nil:
		return false
	case ov == nil:
		return true
	default:
		return bv.GreaterThan(ov)
	}
}

// SameVersion reports whether a and b name the same version. Semver strings
// compare numerically, so "v1.0" equals "1.0.0".
func SameVersion(a, b string) bool {
	av, aerr := version.NewVersion(a)
	bv, berr := version.NewVersion(b)
	if aerr == nil && berr == nil {
		return av.Equal(bv)
	}
	return strings.TrimPrefix(a, "v") == strings.TrimPrefix(b, "v")
}

// Scope is an installation target.
type Scope string

const (
	ScopeUser       Scope = "user"
	ScopeWorkspace  Scope = "workspace"
	ScopeRepository Scope = "repository"
)

// AllScopes returns the scopes in precedence order.
func AllScopes() []Scope {
	return []Scope{ScopeUser, ScopeWorkspace, ScopeRepository}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return slices.Contains(AllScopes(), s)
}

// CommitMode controls whether repository-scope files are version-controlled.
type CommitMode string

const (
	CommitModeCommit    CommitMode = "commit"
	CommitModeLocalOnly CommitMode = "local-only"
)

// Valid reports whether m is a known commit mode.
func (m CommitMode) Valid() bool {
	return m == CommitModeCommit || m == CommitModeLocalOnly
}

// InstalledBundle records a bundle installed at one scope.
type InstalledBundle struct {
	BundleID    string     `json:"bundleId"`
	Version     string     `json:"version"`
	SourceID    string     `json:"sourceId"`
	SourceType  SourceType `json:"sourceType,omitempty"`
	InstalledAt time.Time  `json:"installedAt"`
	Scope       Scope      `json:"scope"`
	CommitMode  CommitMode `json:"commitMode,omitempty"`
	InstallPath string     `json:"installPath,omitempty"`
	Files       []string   `json:"files,omitempty"`
}
