package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/hub"
	"github.com/glorpus-work/promptreg/pkg/model"
)

// Dir is the directory under the storage root holding history files.
const Dir = "history"

// Store persists one JSON file of entries per hub and profile, newest first.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a Store under root.
func NewStore(root string) (*Store, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("history root must be absolute: %s: %w", root, pkgerrors.ErrInvalidPath)
	}
	return &Store{root: filepath.Join(root, Dir)}, nil
}

func (s *Store) path(hubID, profileID string) (string, error) {
	if err := hub.ValidateID("hub id", hubID); err != nil {
		return "", err
	}
	if err := hub.ValidateID("profile id", profileID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, hubID, profileID+".json"), nil
}

// Load returns the entries of a profile, newest first.
func (s *Store) Load(hubID, profileID string) ([]model.SyncHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(hubID, profileID)
}

func (s *Store) load(hubID, profileID string) ([]model.SyncHistoryEntry, error) {
	p, err := s.path(hubID, profileID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.SyncHistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []model.SyncHistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to parse history of %s/%s", hubID, profileID)
	}
	return entries, nil
}

// Prepend stores e as the newest entry, keeping at most limit entries when limit > 0.
func (s *Store) Prepend(e model.SyncHistoryEntry, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(e.HubID, e.ProfileID)
	if err != nil {
		return err
	}
	entries = append([]model.SyncHistoryEntry{e}, entries...)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal history")
	}
	p, _ := s.path(e.HubID, e.ProfileID)
	return fsutil.WriteFileAtomic(p, data, fsutil.FileModeDefault)
}

// Clear deletes the history of one profile.
func (s *Store) Clear(hubID, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.path(hubID, profileID)
	if err != nil {
		return err
	}
	if err := fsutil.RemoveFile(p); err != nil {
		return err
	}
	fsutil.RemoveEmptyParents(filepath.Dir(p), s.root)
	return nil
}
