package adapter

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode"

	"github.com/glorpus-work/promptreg/pkg/archive"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/repolayout"
	"gopkg.in/yaml.v3"
)

const (
	// CollectionSuffix is the compound extension of collection manifests.
	CollectionSuffix = ".collection.yml"
	// DefaultCollectionsPath is scanned when a collection source names no path.
	DefaultCollectionsPath = "collections"
	// DefaultVersion is assigned to manifests that declare none.
	DefaultVersion = "1.0.0"

	// EnvironmentGeneral is assigned when no tag implies a specific environment.
	EnvironmentGeneral = "general"
)

// CollectionItem references one content file of a collection.
type CollectionItem struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"`
}

// CollectionManifest is a curated collection of content items.
type CollectionManifest struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Version     string           `yaml:"version,omitempty"`
	Author      string           `yaml:"author,omitempty"`
	Tags        []string         `yaml:"tags,omitempty"`
	Items       []CollectionItem `yaml:"items"`
}

// ParseCollectionManifest decodes and checks a collection manifest.
func ParseCollectionManifest(data []byte) (*CollectionManifest, error) {
	var m CollectionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse collection manifest")
	}
	if m.ID == "" {
		return nil, pkgerrors.NewConfigError("id", "", "is required")
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	for _, item := range m.Items {
		if _, ok := model.ParseItemKind(item.Kind); !ok {
			return nil, pkgerrors.NewConfigError("kind", item.Kind, "unknown item kind in "+m.ID)
		}
	}
	return &m, nil
}

// ResolvedItem is a content file located in a store and placed in an archive.
type ResolvedItem struct {
	Kind        model.ItemKind
	SourcePath  string
	ArchivePath string
}

// resolveCollectionItemPaths expands the items of a manifest to concrete
// files. A skill item stands for every file in the directory of its path.
// Other items keep their path below the kind directory, or only their file
// name when they live elsewhere. Two files landing on one archive path is an error.
func resolveCollectionItemPaths(ctx context.Context, store contentStore, items []CollectionItem) ([]ResolvedItem, error) {
	var out []ResolvedItem
	seen := make(map[string]string)
	add := func(r ResolvedItem) error {
		prev, ok := seen[r.ArchivePath]
		switch {
		case !ok:
			seen[r.ArchivePath] = r.SourcePath
			out = append(out, r)
		case prev != r.SourcePath:
			return pkgerrors.NewConfigError("path", r.SourcePath, "collides with "+prev+" at "+r.ArchivePath)
		}
		return nil
	}

	for _, item := range items {
		kind, ok := model.ParseItemKind(item.Kind)
		if !ok {
			return nil, pkgerrors.NewConfigError("kind", item.Kind, "unknown item kind")
		}
		itemPath, err := fsutil.CleanRelPath(item.Path)
		if err != nil {
			return nil, err
		}

		if kind != model.ItemKindSkill {
			kindDir := repolayout.ArchiveDir(kind)
			rel, nested := strings.CutPrefix(itemPath, kindDir+"/")
			if !nested {
				rel = path.Base(itemPath)
			}
			err := add(ResolvedItem{
				Kind:        kind,
				SourcePath:  itemPath,
				ArchivePath: kindDir + "/" + rel,
			})
			if err != nil {
				return nil, err
			}
			continue
		}

		dir := itemPath
		if path.Ext(itemPath) != "" {
			dir = path.Dir(itemPath)
		}
		files, err := store.Glob(ctx, dir+"/**")
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, pkgerrors.NewNotFoundError("skill directory", dir)
		}
		skillRoot := repolayout.ArchiveDir(model.ItemKindSkill) + "/" + path.Base(dir)
		for _, f := range files {
			err := add(ResolvedItem{
				Kind:        model.ItemKindSkill,
				SourcePath:  f,
				ArchivePath: skillRoot + "/" + strings.TrimPrefix(f, dir+"/"),
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ContentBreakdown counts manifest items per kind.
func ContentBreakdown(items []CollectionItem) map[model.ItemKind]int {
	out := make(map[model.ItemKind]int)
	for _, item := range items {
		if kind, ok := model.ParseItemKind(item.Kind); ok {
			out[kind]++
		}
	}
	return out
}

var environmentTokens = map[string]string{
	"azure":      "cloud",
	"aws":        "cloud",
	"gcp":        "cloud",
	"cloud":      "cloud",
	"kubernetes": "cloud",
	"terraform":  "cloud",
	"react":      "web",
	"angular":    "web",
	"vue":        "web",
	"frontend":   "web",
	"web":        "web",
	"python":     "backend",
	"java":       "backend",
	"go":         "backend",
	"node":       "backend",
	"backend":    "backend",
	"api":        "backend",
	"vscode":     "vscode",
}

// InferEnvironments derives coarse environment tags from free-form tags.
func InferEnvironments(tags []string) []string {
	found := make(map[string]bool)
	for _, tag := range tags {
		tokens := strings.FieldsFunc(strings.ToLower(tag), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, token := range tokens {
			if env, ok := environmentTokens[token]; ok {
				found[env] = true
			}
		}
	}
	if len(found) == 0 {
		return []string{EnvironmentGeneral}
	}
	out := make([]string, 0, len(found))
	for env := range found {
		out = append(out, env)
	}
	sort.Strings(out)
	return out
}

// ManifestItem is one file listed in a deployment manifest, by archive path.
type ManifestItem struct {
	Path string         `yaml:"path"`
	Kind model.ItemKind `yaml:"kind"`
}

// DeploymentManifest describes a bundle archive.
type DeploymentManifest struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Version      string         `yaml:"version"`
	Description  string         `yaml:"description,omitempty"`
	Author       string         `yaml:"author,omitempty"`
	License      string         `yaml:"license,omitempty"`
	Tags         []string       `yaml:"tags,omitempty"`
	Environments []string       `yaml:"environments,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty"`
	Items        []ManifestItem `yaml:"items,omitempty"`
}

// ParseDeploymentManifest decodes a deployment manifest.
func ParseDeploymentManifest(data []byte) (*DeploymentManifest, error) {
	var m DeploymentManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse deployment manifest")
	}
	if m.ID == "" {
		return nil, pkgerrors.NewConfigError("id", "", "is required")
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	if m.Version == "" {
		m.Version = DefaultVersion
	}
	return &m, nil
}

func (m *DeploymentManifest) bundle(source model.Source) model.Bundle {
	env := m.Environments
	if len(env) == 0 {
		env = InferEnvironments(m.Tags)
	}
	breakdown := make(map[model.ItemKind]int)
	for _, item := range m.Items {
		breakdown[item.Kind]++
	}
	return model.Bundle{
		ID:               m.ID,
		Name:             m.Name,
		Version:          m.Version,
		Description:      m.Description,
		Author:           m.Author,
		Environments:     env,
		Tags:             m.Tags,
		License:          m.License,
		Dependencies:     m.Dependencies,
		SourceID:         source.ID,
		ContentBreakdown: breakdown,
	}
}

func manifestForBundle(b *model.Bundle, items []ResolvedItem) *DeploymentManifest {
	m := &DeploymentManifest{
		ID:           b.ID,
		Name:         b.Name,
		Version:      b.Version,
		Description:  b.Description,
		Author:       b.Author,
		License:      b.License,
		Tags:         b.Tags,
		Environments: b.Environments,
		Dependencies: b.Dependencies,
	}
	for _, item := range items {
		m.Items = append(m.Items, ManifestItem{Path: item.ArchivePath, Kind: item.Kind})
	}
	return m
}

// buildArchive reads every resolved item from store and adds the generated
// deployment manifest.
func buildArchive(ctx context.Context, store contentStore, b *model.Bundle, items []ResolvedItem) (*archive.Archive, error) {
	paths := make([]string, len(items))
	for i, item := range items {
		paths[i] = item.SourcePath
	}
	contents, err := store.ReadAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	out := &archive.Archive{}
	for _, item := range items {
		if err := out.Add(item.ArchivePath, contents[item.SourcePath]); err != nil {
			return nil, err
		}
	}
	manifest, err := yaml.Marshal(manifestForBundle(b, items))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode deployment manifest")
	}
	if err := out.Add(archive.ManifestFile, manifest); err != nil {
		return nil, err
	}
	return out, nil
}

// ensureManifest adds a generated manifest to a downloaded archive lacking one.
func ensureManifest(a *archive.Archive, b *model.Bundle) error {
	if _, ok := a.Get(archive.ManifestFile); ok {
		return nil
	}
	var items []ResolvedItem
	for _, p := range a.Paths() {
		if kind, ok := repolayout.KindFromPath(p); ok {
			items = append(items, ResolvedItem{Kind: kind, SourcePath: p, ArchivePath: p})
		}
	}
	manifest, err := yaml.Marshal(manifestForBundle(b, items))
	if err != nil {
		return fmt.Errorf("failed to encode deployment manifest: %w", err)
	}
	return a.Add(archive.ManifestFile, manifest)
}
