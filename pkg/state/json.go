package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
)

const formatVersion = "1"

// JSONStore keeps the records of one scope in a single JSON file. Every
// mutation rewrites the whole file atomically.
type JSONStore struct {
	path    string
	scope   model.Scope
	rwMutex sync.RWMutex
	records map[string]model.InstalledBundle
}

type jsonDocument struct {
	FormatVersion string                  `json:"format_version"`
	Scope         model.Scope             `json:"scope"`
	LastUpdate    time.Time               `json:"last_update"`
	Bundles       []model.InstalledBundle `json:"bundles"`
}

// NewJSONStore opens the store file at path, which need not exist yet.
func NewJSONStore(path string, scope model.Scope) (*JSONStore, error) {
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("database path must be absolute: %s: %w", path, pkgerrors.ErrInvalidPath)
	}

	s := &JSONStore{path: cleanPath, scope: scope, records: make(map[string]model.InstalledBundle)}
	data, err := os.ReadFile(cleanPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database file: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse database file %s: %w", cleanPath, err)
	}
	for _, rec := range doc.Bundles {
		s.records[rec.BundleID] = rec
	}
	return s, nil
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Get implements Store.
func (s *JSONStore) Get(id string) (*model.InstalledBundle, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindBundle, id)
	}
	return &rec, nil
}

// Put implements Store.
func (s *JSONStore) Put(rec model.InstalledBundle) error {
	if rec.BundleID == "" {
		return pkgerrors.NewConfigError("bundleId", "", "must not be empty")
	}
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	rec.Scope = s.scope
	if rec.InstalledAt.IsZero() {
		rec.InstalledAt = time.Now().UTC()
	}
	prev, existed := s.records[rec.BundleID]
	s.records[rec.BundleID] = rec
	if err := s.saveLocked(); err != nil {
		if existed {
			s.records[rec.BundleID] = prev
		} else {
			delete(s.records, rec.BundleID)
		}
		return err
	}
	return nil
}

// Delete implements Store.
func (s *JSONStore) Delete(id string) error {
	s.rwMutex.Lock()
	defer s.rwMutex.Unlock()

	prev, ok := s.records[id]
	if !ok {
		return nil
	}
	delete(s.records, id)
	if err := s.saveLocked(); err != nil {
		s.records[id] = prev
		return err
	}
	return nil
}

// List implements Store.
func (s *JSONStore) List() ([]model.InstalledBundle, error) {
	s.rwMutex.RLock()
	defer s.rwMutex.RUnlock()
	return s.sortedLocked(), nil
}

func (s *JSONStore) sortedLocked() []model.InstalledBundle {
	out := make([]model.InstalledBundle, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BundleID < out[j].BundleID })
	return out
}

func (s *JSONStore) saveLocked() error {
	doc := jsonDocument{
		FormatVersion: formatVersion,
		Scope:         s.scope,
		LastUpdate:    time.Now().UTC(),
		Bundles:       s.sortedLocked(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal database to JSON: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, data, fsutil.FileModeDefault)
}
