package hub

import (
	"sort"

	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/hashicorp/go-version"
)

// ComputeChanges diffs the bundle versions previously synced for a profile
// against the profile's desired bundles. Added keeps the profile's order;
// Updated and Removed are sorted by id.
func ComputeChanges(previous map[string]string, desired []model.ProfileBundle) model.Changes {
	changes := model.Changes{
		Added:   []model.ProfileBundle{},
		Updated: []model.BundleUpdate{},
		Removed: []string{},
	}
	want := make(map[string]bool, len(desired))
	for _, b := range desired {
		want[b.ID] = true
		old, ok := previous[b.ID]
		if !ok {
			changes.Added = append(changes.Added, b)
			continue
		}
		if versionChanged(old, b.Version) {
			changes.Updated = append(changes.Updated, model.BundleUpdate{ID: b.ID, OldVersion: old, NewVersion: b.Version})
		}
	}
	for id := range previous {
		if !want[id] {
			changes.Removed = append(changes.Removed, id)
		}
	}
	sort.Slice(changes.Updated, func(i, j int) bool { return changes.Updated[i].ID < changes.Updated[j].ID })
	sort.Strings(changes.Removed)
	return changes
}

// versionChanged compares semantically when both sides parse, so 1.0 and 1.0.0 are equal.
// An empty desired version means "latest" and never counts as a change.
func versionChanged(old, next string) bool {
	if next == "" || next == old {
		return false
	}
	ov, oerr := version.NewVersion(old)
	nv, nerr := version.NewVersion(next)
	if oerr != nil || nerr != nil {
		return true
	}
	return !ov.Equal(nv)
}
