package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
	"gopkg.in/yaml.v3"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

const (
	hubsDir        = "hubs"
	activationsDir = "activations"
	hubFileSuffix  = ".yml"
	refFileSuffix  = ".ref.json"
)

// ValidateID checks that id is usable as a hub or profile file name.
func ValidateID(field, id string) error {
	if !idPattern.MatchString(id) {
		return pkgerrors.NewConfigError(field, id, "must match "+idPattern.String())
	}
	return nil
}

// Storage persists hub documents, their references and profile activation
// states under one directory:
//
//	hubs/<id>.yml
//	hubs/<id>.ref.json
//	activations/<hubId>/<profileId>.json
type Storage struct {
	dir string
}

type storedReference struct {
	Reference model.HubReference `json:"reference"`
	LastSync  time.Time          `json:"lastSync"`
}

// NewStorage creates a Storage rooted at dir.
func NewStorage(dir string) (*Storage, error) {
	if !filepath.IsAbs(dir) {
		return nil, fmt.Errorf("hub storage dir must be absolute: %s: %w", dir, pkgerrors.ErrInvalidPath)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage root.
func (s *Storage) Dir() string { return s.dir }

func (s *Storage) hubPath(id string) string {
	return filepath.Join(s.dir, hubsDir, id+hubFileSuffix)
}

func (s *Storage) refPath(id string) string {
	return filepath.Join(s.dir, hubsDir, id+refFileSuffix)
}

func (s *Storage) activationPath(hubID, profileID string) string {
	return filepath.Join(s.dir, activationsDir, hubID, profileID+".json")
}

// SaveHub writes the hub document and its reference.
func (s *Storage) SaveHub(id string, hub *model.Hub, ref model.HubReference, lastSync time.Time) error {
	if err := ValidateID("hub id", id); err != nil {
		return err
	}
	doc, err := yaml.Marshal(hub)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal hub")
	}
	refData, err := json.MarshalIndent(storedReference{Reference: ref, LastSync: lastSync}, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal hub reference")
	}
	if err := fsutil.WriteFileAtomic(s.hubPath(id), doc, fsutil.FileModeDefault); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.refPath(id), refData, fsutil.FileModeDefault)
}

// LoadHub reads a stored hub.
func (s *Storage) LoadHub(id string) (*model.HubInfo, error) {
	if err := ValidateID("hub id", id); err != nil {
		return nil, err
	}
	doc, err := os.ReadFile(s.hubPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindHub, id)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read hub %s", id)
	}
	hub, err := ParseHub(doc)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "stored hub %s", id)
	}

	info := &model.HubInfo{ID: id, Hub: hub}
	refData, err := os.ReadFile(s.refPath(id))
	switch {
	case err == nil:
		var ref storedReference
		if err := json.Unmarshal(refData, &ref); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to parse reference of hub %s", id)
		}
		info.Reference = ref.Reference
		info.LastSync = ref.LastSync
	case !errors.Is(err, fs.ErrNotExist):
		return nil, pkgerrors.Wrapf(err, "failed to read reference of hub %s", id)
	}
	return info, nil
}

// ListHubs returns the ids of every stored hub, sorted.
func (s *Storage) ListHubs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, hubsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, hubFileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, hubFileSuffix))
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteHub removes a hub, its reference and all of its activation states.
func (s *Storage) DeleteHub(id string) error {
	if err := ValidateID("hub id", id); err != nil {
		return err
	}
	if !fsutil.IsFile(s.hubPath(id)) {
		return pkgerrors.NewNotFoundError(pkgerrors.KindHub, id)
	}
	if err := fsutil.RemoveFile(s.hubPath(id)); err != nil {
		return err
	}
	if err := fsutil.RemoveFile(s.refPath(id)); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.dir, activationsDir, id))
}

// SaveActivation writes the activation state of a profile, replacing any previous one.
func (s *Storage) SaveActivation(st *model.ProfileActivationState) error {
	if err := ValidateID("hub id", st.HubID); err != nil {
		return err
	}
	if err := ValidateID("profile id", st.ProfileID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal activation state")
	}
	return fsutil.WriteFileAtomic(s.activationPath(st.HubID, st.ProfileID), data, fsutil.FileModeDefault)
}

// LoadActivation returns the activation state of a profile, or nil when it is not active.
func (s *Storage) LoadActivation(hubID, profileID string) (*model.ProfileActivationState, error) {
	if err := ValidateID("hub id", hubID); err != nil {
		return nil, err
	}
	if err := ValidateID("profile id", profileID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.activationPath(hubID, profileID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st model.ProfileActivationState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse activation state of %s/%s", hubID, profileID)
	}
	return &st, nil
}

// DeleteActivation removes the activation state of a profile. A missing state is not an error.
func (s *Storage) DeleteActivation(hubID, profileID string) error {
	if err := ValidateID("hub id", hubID); err != nil {
		return err
	}
	if err := ValidateID("profile id", profileID); err != nil {
		return err
	}
	if err := fsutil.RemoveFile(s.activationPath(hubID, profileID)); err != nil {
		return err
	}
	fsutil.RemoveEmptyParents(filepath.Join(s.dir, activationsDir, hubID), s.dir)
	return nil
}

// ListActivations returns the activation states stored for a hub, sorted by profile id.
func (s *Storage) ListActivations(hubID string) ([]model.ProfileActivationState, error) {
	if err := ValidateID("hub id", hubID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, activationsDir, hubID))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.ProfileActivationState{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []model.ProfileActivationState{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		st, err := s.LoadActivation(hubID, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		if st != nil {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out, nil
}
