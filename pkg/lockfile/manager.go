package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/fsutil"
	"github.com/glorpus-work/promptreg/pkg/model"
)

// Manager reads and mutates the lockfile of one repository root.
// Mutations are serialized and written atomically.
type Manager struct {
	root        string
	generatedBy string
	now         func() time.Time

	mu sync.Mutex

	obsMu     sync.Mutex
	observers map[int]func(*Lockfile)
	nextObs   int
}

// NewManager creates a Manager for the lockfile under root.
func NewManager(root, generatedBy string) *Manager {
	return &Manager{
		root:        filepath.Clean(root),
		generatedBy: generatedBy,
		now:         func() time.Time { return time.Now().UTC() },
		observers:   make(map[int]func(*Lockfile)),
	}
}

// Root returns the repository root.
func (m *Manager) Root() string { return m.root }

// Path returns the lockfile path.
func (m *Manager) Path() string { return filepath.Join(m.root, FileName) }

// Subscribe registers fn to be called after every mutation with the new
// lockfile, or nil when the file was deleted. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(*Lockfile)) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) notify(lf *Lockfile) {
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*Lockfile), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(lf)
	}
}

// Read returns the parsed lockfile. A missing or unparsable file yields nil
// without error; only unexpected I/O failures are returned.
func (m *Manager) Read() (*Lockfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readLocked()
}

func (m *Manager) readLocked() (*Lockfile, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "failed to read lockfile")
	}
	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, nil
	}
	if lf.Bundles == nil {
		lf.Bundles = make(map[string]BundleEntry)
	}
	if lf.Sources == nil {
		lf.Sources = make(map[string]SourceEntry)
	}
	return &lf, nil
}

func (m *Manager) writeLocked(lf *Lockfile) error {
	lf.Schema = SchemaURL
	lf.Version = FormatVersion
	lf.GeneratedAt = m.now()
	lf.GeneratedBy = m.generatedBy
	if len(lf.Hubs) == 0 {
		lf.Hubs = nil
	}
	if len(lf.Profiles) == 0 {
		lf.Profiles = nil
	}

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode lockfile")
	}
	data = append(data, '\n')
	if err := fsutil.WriteFileAtomic(m.Path(), data, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "failed to write lockfile")
	}
	return nil
}

// mutate runs fn on the current lockfile under the lock, persists the result
// and notifies observers. fn returning a lockfile without bundles deletes the file.
func (m *Manager) mutate(fn func(lf *Lockfile) error) error {
	m.mu.Lock()
	lf, err := m.readLocked()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if lf == nil {
		lf = &Lockfile{
			Bundles: make(map[string]BundleEntry),
			Sources: make(map[string]SourceEntry),
		}
	}
	if err := fn(lf); err != nil {
		m.mu.Unlock()
		return err
	}

	var published *Lockfile
	if len(lf.Bundles) == 0 {
		err = fsutil.RemoveFile(m.Path())
	} else {
		err = m.writeLocked(lf)
		published = lf
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.notify(published)
	return nil
}

// CreateOrUpdate upserts a bundle entry together with its source entry and,
// when given, its hub and profile association.
func (m *Manager) CreateOrUpdate(opts UpdateOptions) error {
	if opts.BundleID == "" {
		return pkgerrors.NewConfigError("bundleId", "", "is required")
	}
	if opts.SourceID == "" {
		return pkgerrors.NewConfigError("sourceId", "", "is required")
	}
	entry := opts.Entry
	entry.SourceID = opts.SourceID
	if entry.SourceType == "" {
		entry.SourceType = opts.Source.Type
	}
	if entry.CommitMode == "" {
		entry.CommitMode = model.CommitModeCommit
	}
	if entry.InstalledAt.IsZero() {
		entry.InstalledAt = m.now()
	}
	files := make([]FileEntry, 0, len(entry.Files))
	for _, f := range entry.Files {
		p, err := fsutil.CleanRelPath(f.Path)
		if err != nil {
			return pkgerrors.Wrapf(err, "bundle %s", opts.BundleID)
		}
		files = append(files, FileEntry{Path: p, Checksum: f.Checksum})
	}
	entry.Files = files
	if entry.Checksum == "" && len(files) > 0 {
		sums := make([]fsutil.PathChecksum, len(files))
		for i, f := range files {
			sums[i] = fsutil.PathChecksum{Path: f.Path, Checksum: f.Checksum}
		}
		entry.Checksum = fsutil.AggregateChecksum(sums)
	}

	return m.mutate(func(lf *Lockfile) error {
		lf.Bundles[opts.BundleID] = entry
		lf.Sources[opts.SourceID] = opts.Source
		dropFromProfiles(lf, opts.BundleID)
		if opts.Hub != nil && opts.Hub.HubID != "" {
			if lf.Hubs == nil {
				lf.Hubs = make(map[string]HubEntry)
			}
			lf.Hubs[opts.Hub.HubID] = opts.Hub.Hub
			if opts.Hub.ProfileID != "" {
				if lf.Profiles == nil {
					lf.Profiles = make(map[string]ProfileEntry)
				}
				p := lf.Profiles[opts.Hub.ProfileID]
				p.HubID = opts.Hub.HubID
				if opts.Hub.ProfileName != "" {
					p.Name = opts.Hub.ProfileName
				}
				p.Bundles = append(p.Bundles, opts.BundleID)
				sort.Strings(p.Bundles)
				lf.Profiles[opts.Hub.ProfileID] = p
			}
		}
		pruneOrphans(lf)
		return nil
	})
}

// Remove deletes a bundle entry, prunes sources, profiles and hubs no longer
// referenced, and deletes the lockfile when no bundle remains. Removing an
// unknown bundle is a no-op.
func (m *Manager) Remove(bundleID string) error {
	return m.mutate(func(lf *Lockfile) error {
		delete(lf.Bundles, bundleID)
		dropFromProfiles(lf, bundleID)
		pruneOrphans(lf)
		return nil
	})
}

// SetCommitMode changes the commit mode recorded for a bundle.
func (m *Manager) SetCommitMode(bundleID string, mode model.CommitMode) error {
	if !mode.Valid() {
		return pkgerrors.NewConfigError("commitMode", string(mode), "expected commit or local-only")
	}
	return m.mutate(func(lf *Lockfile) error {
		entry, ok := lf.Bundles[bundleID]
		if !ok {
			return pkgerrors.NewNotFoundError(pkgerrors.KindBundle, bundleID)
		}
		entry.CommitMode = mode
		lf.Bundles[bundleID] = entry
		return nil
	})
}

// InstalledBundles returns the bundle entries of the lockfile, empty when absent.
func (m *Manager) InstalledBundles() (map[string]BundleEntry, error) {
	lf, err := m.Read()
	if err != nil || lf == nil {
		return map[string]BundleEntry{}, err
	}
	return lf.Bundles, nil
}

func dropFromProfiles(lf *Lockfile, bundleID string) {
	for id, p := range lf.Profiles {
		kept := p.Bundles[:0]
		for _, b := range p.Bundles {
			if b != bundleID {
				kept = append(kept, b)
			}
		}
		p.Bundles = kept
		lf.Profiles[id] = p
	}
}

func pruneOrphans(lf *Lockfile) {
	usedSources := make(map[string]bool, len(lf.Bundles))
	for _, b := range lf.Bundles {
		usedSources[b.SourceID] = true
	}
	for id := range lf.Sources {
		if !usedSources[id] {
			delete(lf.Sources, id)
		}
	}

	usedHubs := make(map[string]bool)
	for id, p := range lf.Profiles {
		if len(p.Bundles) == 0 {
			delete(lf.Profiles, id)
			continue
		}
		usedHubs[p.HubID] = true
	}
	for id := range lf.Hubs {
		if !usedHubs[id] {
			delete(lf.Hubs, id)
		}
	}
}

// DetectModifiedFiles compares the recorded checksum of every file of a
// bundle with the file on disk. Only drifted files are returned; an unknown
// bundle yields an empty result.
func (m *Manager) DetectModifiedFiles(bundleID string) ([]ModifiedFile, error) {
	lf, err := m.Read()
	if err != nil {
		return nil, err
	}
	out := []ModifiedFile{}
	if lf == nil {
		return out, nil
	}
	entry, ok := lf.Bundles[bundleID]
	if !ok {
		return out, nil
	}

	for _, f := range entry.Files {
		full, err := fsutil.SafeJoin(m.root, f.Path)
		if err != nil {
			out = append(out, ModifiedFile{Path: f.Path, ModificationType: ModificationMissing, OriginalChecksum: f.Checksum})
			continue
		}
		current, err := fsutil.FileChecksum(full)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			out = append(out, ModifiedFile{Path: f.Path, ModificationType: ModificationMissing, OriginalChecksum: f.Checksum})
		case err != nil:
			return nil, fmt.Errorf("failed to check %s: %w", f.Path, err)
		case current != f.Checksum:
			out = append(out, ModifiedFile{
				Path:             f.Path,
				ModificationType: ModificationModified,
				OriginalChecksum: f.Checksum,
				CurrentChecksum:  current,
			})
		}
	}
	return out, nil
}
