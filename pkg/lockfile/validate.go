package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
)

var (
	requiredTopLevel   = []string{"$schema", "version", "generatedAt", "generatedBy", "bundles", "sources"}
	requiredBundleKeys = []string{"version", "sourceId", "sourceType", "installedAt", "commitMode", "files"}
)

// Validate checks the structure of the lockfile on disk. A missing or
// malformed file is reported as invalid, never as an error.
func (m *Manager) Validate() model.ValidationResult {
	m.mu.Lock()
	data, err := os.ReadFile(m.Path())
	m.mu.Unlock()

	result := model.ValidationResult{Errors: []string{}}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, "lockfile not found: "+m.Path())
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		result.Errors = append(result.Errors, "invalid JSON: "+err.Error())
		return result
	}
	for _, key := range requiredTopLevel {
		if _, ok := raw[key]; !ok {
			result.Errors = append(result.Errors, "missing required field: "+key)
		}
	}
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &result.SchemaVersion)
	}

	var bundles map[string]map[string]json.RawMessage
	if b, ok := raw["bundles"]; ok {
		if err := json.Unmarshal(b, &bundles); err != nil {
			result.Errors = append(result.Errors, "bundles: "+err.Error())
		}
	}
	var sources map[string]json.RawMessage
	if s, ok := raw["sources"]; ok {
		if err := json.Unmarshal(s, &sources); err != nil {
			result.Errors = append(result.Errors, "sources: "+err.Error())
		}
	}

	ids := make([]string, 0, len(bundles))
	for id := range bundles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result.Errors = append(result.Errors, validateBundle(id, bundles[id], sources)...)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func validateBundle(id string, fields map[string]json.RawMessage, sources map[string]json.RawMessage) []string {
	var errs []string
	for _, key := range requiredBundleKeys {
		if _, ok := fields[key]; !ok {
			errs = append(errs, fmt.Sprintf("bundle %s: missing required field: %s", id, key))
		}
	}
	if len(errs) > 0 {
		return errs
	}

	var entry BundleEntry
	encoded, _ := json.Marshal(fields)
	if err := json.Unmarshal(encoded, &entry); err != nil {
		return append(errs, fmt.Sprintf("bundle %s: %v", id, err))
	}
	if _, ok := sources[entry.SourceID]; !ok {
		errs = append(errs, fmt.Sprintf("bundle %s: source %s is not listed in sources", id, entry.SourceID))
	}
	if !entry.CommitMode.Valid() {
		errs = append(errs, fmt.Sprintf("bundle %s: invalid commitMode %q", id, entry.CommitMode))
	}
	for _, f := range entry.Files {
		if cleaned, err := fsutil.CleanRelPath(f.Path); err != nil || cleaned != f.Path {
			errs = append(errs, fmt.Sprintf("bundle %s: invalid file path %q", id, f.Path))
		}
	}
	return errs
}
