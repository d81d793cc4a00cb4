// Package repolayout maps bundle content items to their canonical location
// inside a repository.
package repolayout

import (
	"path"
	"strings"

	"github.com/glorpus-work/promptreg/pkg/model"
)

const githubDir = ".github"

var targetDirs = map[model.ItemKind]string{
	model.ItemKindPrompt:      githubDir + "/prompts",
	model.ItemKindChatMode:    githubDir + "/prompts",
	model.ItemKindInstruction: githubDir + "/instructions",
	model.ItemKindAgent:       githubDir + "/agents",
	model.ItemKindSkill:       githubDir + "/skills",
}

// archiveDirs are the top-level directories bundle archives group items under.
var archiveDirs = map[string]model.ItemKind{
	"prompts":      model.ItemKindPrompt,
	"chatmodes":    model.ItemKindChatMode,
	"instructions": model.ItemKindInstruction,
	"agents":       model.ItemKindAgent,
	"skills":       model.ItemKindSkill,
}

// ArchiveDir returns the top-level archive directory items of kind are stored under.
func ArchiveDir(kind model.ItemKind) string {
	for dir, k := range archiveDirs {
		if k == kind {
			return dir
		}
	}
	return ""
}

// TargetDir returns the repository-relative directory for kind, or "" for an unknown kind.
func TargetDir(kind model.ItemKind) string {
	return targetDirs[kind]
}

// TargetPath returns the repository-relative destination of an archive file of
// the given kind. A leading kind directory is replaced by the target directory;
// the remainder, including a skill's sub-tree, is kept.
func TargetPath(kind model.ItemKind, archivePath string) string {
	dir := TargetDir(kind)
	if dir == "" {
		return ""
	}
	rest := archivePath
	if first, tail, ok := strings.Cut(archivePath, "/"); ok {
		if _, known := archiveDirs[first]; known {
			rest = tail
		}
	}
	return path.Join(dir, rest)
}

// KindFromPath infers the kind of an archive file from its top-level directory
// or, failing that, from its file name suffix.
func KindFromPath(archivePath string) (model.ItemKind, bool) {
	if first, _, ok := strings.Cut(archivePath, "/"); ok {
		if kind, known := archiveDirs[first]; known {
			return kind, true
		}
	}
	base := path.Base(archivePath)
	switch {
	case strings.HasSuffix(base, ".prompt.md"):
		return model.ItemKindPrompt, true
	case strings.HasSuffix(base, ".instructions.md"):
		return model.ItemKindInstruction, true
	case strings.HasSuffix(base, ".chatmode.md"):
		return model.ItemKindChatMode, true
	case strings.HasSuffix(base, ".agent.md"):
		return model.ItemKindAgent, true
	case base == "SKILL.md":
		return model.ItemKindSkill, true
	}
	return "", false
}
