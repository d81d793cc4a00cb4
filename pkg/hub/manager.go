// Package hub imports hub documents, keeps them in sync with their
// references and activates their profiles by installing the bundles a
// profile declares.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/glorpus-work/promptreg/internal/logger"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/lockfile"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/glorpus-work/promptreg/pkg/registry"
)

// BundleInstaller installs and removes the bundles of activated profiles.
// It is satisfied by *registry.Manager.
type BundleInstaller interface {
	EnsureSource(s model.Source) error
	RemoveSource(id string) error
	InstallBundle(ctx context.Context, id string, opts registry.InstallOptions) (*registry.InstallResult, error)
	UninstallBundle(ctx context.Context, id string, s model.Scope) error
}

// SyncRecorder appends profile syncs to the sync history.
type SyncRecorder interface {
	RecordSync(hubID, profileID string, changes model.Changes, previous model.SyncPreviousState, status model.SyncStatus) (*model.SyncHistoryEntry, error)
	RecordFailure(hubID, profileID string, changes model.Changes, previous model.SyncPreviousState, cause error) (*model.SyncHistoryEntry, error)
}

// Options configures a Manager.
type Options struct {
	Storage *Storage
	Fetcher Fetcher
	// Installer is required to activate profiles with InstallBundles set and to sync profiles.
	Installer BundleInstaller
	History   SyncRecorder
	// Scope profile bundles are installed at; defaults to user.
	Scope      model.Scope
	CommitMode model.CommitMode
	Logger     *slog.Logger
	Now        func() time.Time
}

// ActivateOptions controls ActivateProfile.
type ActivateOptions struct {
	InstallBundles bool
}

// ActivationResult reports the outcome of ActivateProfile.
type ActivationResult struct {
	Success   bool     `json:"success"`
	ProfileID string   `json:"profileId"`
	Error     string   `json:"error,omitempty"`
	Installed []string `json:"installed,omitempty"`
	// Deactivated is the profile that was active in the hub before the switch.
	Deactivated string `json:"deactivated,omitempty"`
}

// HubProfile is a profile together with the hub declaring it.
type HubProfile struct {
	HubID   string
	HubName string
	Profile model.Profile
}

// SyncResult reports the outcome of SyncProfile.
type SyncResult struct {
	Changes model.Changes
	Entry   *model.SyncHistoryEntry
}

// Manager implements hub and profile operations.
type Manager struct {
	opts Options
	log  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Storage == nil {
		return nil, pkgerrors.NewConfigError("storage", "", "hub storage is required")
	}
	if opts.Scope == "" {
		opts.Scope = model.ScopeUser
	}
	if !opts.Scope.Valid() {
		return nil, pkgerrors.NewConfigError("scope", string(opts.Scope), "expected user, workspace or repository")
	}
	if opts.CommitMode == "" {
		opts.CommitMode = model.CommitModeCommit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{opts: opts, log: log.With("component", "hub"), locks: make(map[string]*sync.Mutex)}, nil
}

func (m *Manager) lockHub(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (m *Manager) fetch(ctx context.Context, ref model.HubReference) (*model.Hub, error) {
	if m.opts.Fetcher == nil {
		return nil, pkgerrors.NewConfigError("fetcher", "", "hub fetcher is required")
	}
	data, err := m.opts.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	h, err := ParseHub(data)
	if err != nil {
		return nil, err
	}
	if err := ValidateHub(h); err != nil {
		return nil, err
	}
	return h, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a hub id from a hub name.
func Slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// ImportHub fetches, validates and stores the hub ref points at. When id is
// empty it is derived from the hub's name. The new id is returned.
func (m *Manager) ImportHub(ctx context.Context, ref model.HubReference, id string) (string, error) {
	if err := ValidateReference(ref); err != nil {
		return "", err
	}
	h, err := m.fetch(ctx, ref)
	if err != nil {
		return "", pkgerrors.NewOperationError("import hub", err)
	}
	if id == "" {
		id = Slugify(h.Metadata.Name)
	}
	if err := ValidateID("hub id", id); err != nil {
		return "", err
	}

	unlock := m.lockHub(id)
	defer unlock()
	if _, err := m.opts.Storage.LoadHub(id); err == nil {
		return "", pkgerrors.NewConfigError("hub id", id, "hub already exists")
	} else if !pkgerrors.IsNotFound(err) {
		return "", err
	}

	// Activation lives in storage, not in the document.
	for i := range h.Profiles {
		h.Profiles[i].Active = false
	}
	if err := m.opts.Storage.SaveHub(id, h, ref, m.opts.Now().UTC()); err != nil {
		return "", err
	}
	m.log.Info("hub imported", "hub", id, "profiles", len(h.Profiles), "sources", len(h.Sources))
	return id, nil
}

// SyncHub re-fetches a hub from its stored reference. An unreachable or
// invalid document fails the sync and leaves the stored hub untouched.
func (m *Manager) SyncHub(ctx context.Context, id string) (*model.HubInfo, error) {
	unlock := m.lockHub(id)
	defer unlock()

	info, err := m.opts.Storage.LoadHub(id)
	if err != nil {
		return nil, err
	}
	h, err := m.fetch(ctx, info.Reference)
	if err != nil {
		return nil, pkgerrors.NewOperationError("sync hub "+id, err)
	}
	if err := m.markActive(id, h); err != nil {
		return nil, err
	}
	now := m.opts.Now().UTC()
	if err := m.opts.Storage.SaveHub(id, h, info.Reference, now); err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(h.Sources))
	for _, sid := range sourceIDs(h) {
		kept[sid] = true
	}
	var dropped []string
	for _, sid := range sourceIDs(info.Hub) {
		if !kept[sid] {
			dropped = append(dropped, sid)
		}
	}
	m.unregisterSources(id, dropped)
	m.log.Info("hub synced", "hub", id)
	return &model.HubInfo{ID: id, Hub: h, Reference: info.Reference, LastSync: now}, nil
}

func (m *Manager) markActive(hubID string, h *model.Hub) error {
	states, err := m.opts.Storage.ListActivations(hubID)
	if err != nil {
		return err
	}
	active := make(map[string]bool, len(states))
	for _, st := range states {
		active[st.ProfileID] = true
	}
	for i := range h.Profiles {
		h.Profiles[i].Active = active[h.Profiles[i].ID]
	}
	return nil
}

// ListHubs returns every stored hub.
func (m *Manager) ListHubs() ([]model.HubInfo, error) {
	ids, err := m.opts.Storage.ListHubs()
	if err != nil {
		return nil, err
	}
	out := make([]model.HubInfo, 0, len(ids))
	for _, id := range ids {
		info, err := m.opts.Storage.LoadHub(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

// GetHubInfo returns a stored hub.
func (m *Manager) GetHubInfo(id string) (*model.HubInfo, error) {
	return m.opts.Storage.LoadHub(id)
}

// DeleteHub removes a hub and its activation states. Installed bundles are kept.
func (m *Manager) DeleteHub(id string) error {
	unlock := m.lockHub(id)
	defer unlock()
	info, err := m.opts.Storage.LoadHub(id)
	if err != nil {
		return err
	}
	if err := m.opts.Storage.DeleteHub(id); err != nil {
		return err
	}
	m.unregisterSources(id, sourceIDs(info.Hub))
	m.log.Info("hub deleted", "hub", id)
	return nil
}

// ListProfilesFromHub returns the profiles of a hub.
func (m *Manager) ListProfilesFromHub(hubID string) ([]model.Profile, error) {
	info, err := m.opts.Storage.LoadHub(hubID)
	if err != nil {
		return nil, err
	}
	return append([]model.Profile{}, info.Hub.Profiles...), nil
}

// GetHubProfile returns one profile of a hub.
func (m *Manager) GetHubProfile(hubID, profileID string) (*model.Profile, error) {
	info, err := m.opts.Storage.LoadHub(hubID)
	if err != nil {
		return nil, err
	}
	p := info.Hub.FindProfile(profileID)
	if p == nil {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindProfile, hubID+"/"+profileID)
	}
	return p, nil
}

// ListAllHubProfiles returns the profiles of every stored hub.
func (m *Manager) ListAllHubProfiles() ([]HubProfile, error) {
	hubs, err := m.ListHubs()
	if err != nil {
		return nil, err
	}
	var out []HubProfile
	for _, info := range hubs {
		for _, p := range info.Hub.Profiles {
			out = append(out, HubProfile{HubID: info.ID, HubName: info.Hub.Metadata.Name, Profile: p})
		}
	}
	return out, nil
}

// GetActiveProfile returns the activation state of the active profile of a
// hub, or nil when none is active.
func (m *Manager) GetActiveProfile(hubID string) (*model.ProfileActivationState, error) {
	if _, err := m.opts.Storage.LoadHub(hubID); err != nil {
		return nil, err
	}
	states, err := m.opts.Storage.ListActivations(hubID)
	if err != nil || len(states) == 0 {
		return nil, err
	}
	return &states[0], nil
}

// ListAllActiveProfiles returns the activation states across every hub.
func (m *Manager) ListAllActiveProfiles() ([]model.ProfileActivationState, error) {
	ids, err := m.opts.Storage.ListHubs()
	if err != nil {
		return nil, err
	}
	out := []model.ProfileActivationState{}
	for _, id := range ids {
		states, err := m.opts.Storage.ListActivations(id)
		if err != nil {
			return nil, err
		}
		out = append(out, states...)
	}
	return out, nil
}

// GetActivation returns the activation state of a profile, or nil when it is not active.
func (m *Manager) GetActivation(hubID, profileID string) (*model.ProfileActivationState, error) {
	return m.opts.Storage.LoadActivation(hubID, profileID)
}

// HubSourceID is the registry id under which a hub source is registered.
func HubSourceID(hubID, sourceID string) string {
	return "hub-" + hubID + "-" + sourceID
}

func (m *Manager) registerSources(hubID string, h *model.Hub) error {
	for _, hs := range h.Sources {
		name := hs.Name
		if name == "" {
			name = hs.ID
		}
		src := model.Source{
			ID:       HubSourceID(hubID, hs.ID),
			Name:     name,
			Type:     hs.Type,
			URL:      hs.URL,
			Enabled:  hs.IsEnabled(),
			Priority: hs.Priority,
			Config:   model.SourceConfig{Branch: hs.Branch, CollectionsPath: hs.CollectionsPath},
		}
		if err := m.opts.Installer.EnsureSource(src); err != nil {
			return pkgerrors.Wrapf(err, "register hub source %s", hs.ID)
		}
	}
	return nil
}

func sourceIDs(h *model.Hub) []string {
	if h == nil {
		return nil
	}
	ids := make([]string, len(h.Sources))
	for i, hs := range h.Sources {
		ids[i] = hs.ID
	}
	return ids
}

// unregisterSources removes hub sources from the installer. Sources that were
// never registered are skipped; other failures are logged.
func (m *Manager) unregisterSources(hubID string, ids []string) {
	if m.opts.Installer == nil {
		return
	}
	for _, sid := range ids {
		err := m.opts.Installer.RemoveSource(HubSourceID(hubID, sid))
		if err != nil && !pkgerrors.IsNotFound(err) {
			m.log.Warn("failed to remove hub source", "hub", hubID, "source", sid, "error", err)
		}
	}
}

func (m *Manager) association(info *model.HubInfo, p *model.Profile) *lockfile.HubAssociation {
	return &lockfile.HubAssociation{
		HubID:       info.ID,
		Hub:         lockfile.HubEntry{Name: info.Hub.Metadata.Name, URL: info.Reference.Location},
		ProfileID:   p.ID,
		ProfileName: p.Name,
	}
}

// installBundles installs bundles for a profile and returns the version
// installed per id. Optional bundles that fail are logged and left out.
func (m *Manager) installBundles(ctx context.Context, info *model.HubInfo, p *model.Profile, bundles []model.ProfileBundle) (map[string]string, error) {
	if m.opts.Installer == nil {
		return nil, pkgerrors.NewConfigError("installer", "", "bundle installer is required")
	}
	if err := m.registerSources(info.ID, info.Hub); err != nil {
		return nil, err
	}
	installed := make(map[string]string, len(bundles))
	for _, b := range bundles {
		opts := registry.InstallOptions{
			Scope:      m.opts.Scope,
			Version:    b.Version,
			CommitMode: m.opts.CommitMode,
			Hub:        m.association(info, p),
		}
		if b.Source != "" {
			opts.SourceID = HubSourceID(info.ID, b.Source)
		}
		res, err := m.opts.Installer.InstallBundle(ctx, b.ID, opts)
		if err == nil && res.Conflict != nil {
			err = fmt.Errorf("scope conflict: %s", res.Conflict)
		}
		if err != nil {
			if b.Required {
				return installed, pkgerrors.NewOperationError("install bundle "+b.ID, err)
			}
			m.log.Warn("optional bundle not installed", "bundle", b.ID, "profile", p.ID, "error", err)
			continue
		}
		installed[b.ID] = res.Installed.Version
	}
	return installed, nil
}

// uninstallBundles removes ids at the configured scope. Failures are logged;
// the ids actually removed are returned.
func (m *Manager) uninstallBundles(ctx context.Context, ids []string) []string {
	removed := []string{}
	if m.opts.Installer == nil {
		return removed
	}
	for _, id := range ids {
		err := m.opts.Installer.UninstallBundle(ctx, id, m.opts.Scope)
		switch {
		case err == nil:
			removed = append(removed, id)
		case pkgerrors.IsNotFound(err):
		default:
			m.log.Warn("bundle not uninstalled", "bundle", id, "error", err)
		}
	}
	return removed
}

func (m *Manager) newState(hubID, profileID string, activatedAt time.Time, bundles []model.ProfileBundle, installed map[string]string) *model.ProfileActivationState {
	st := &model.ProfileActivationState{
		HubID:          hubID,
		ProfileID:      profileID,
		ActivatedAt:    activatedAt,
		SyncedBundles:  []string{},
		BundleVersions: make(map[string]string, len(bundles)),
		BundleSources:  make(map[string]string, len(bundles)),
	}
	for _, b := range bundles {
		v := b.Version
		if installed != nil {
			iv, ok := installed[b.ID]
			if !ok {
				continue
			}
			if iv != "" {
				v = iv
			}
		}
		st.SyncedBundles = append(st.SyncedBundles, b.ID)
		st.BundleVersions[b.ID] = v
		if b.Source != "" {
			st.BundleSources[b.ID] = b.Source
		}
	}
	return st
}

func (m *Manager) saveActiveFlags(info *model.HubInfo) error {
	if err := m.markActive(info.ID, info.Hub); err != nil {
		return err
	}
	return m.opts.Storage.SaveHub(info.ID, info.Hub, info.Reference, info.LastSync)
}

// ActivateProfile makes profileID the active profile of its hub. A profile
// active before is deactivated first; bundles shared by both profiles stay
// installed. An unknown profile yields an unsuccessful result and no error.
func (m *Manager) ActivateProfile(ctx context.Context, hubID, profileID string, opts ActivateOptions) (*ActivationResult, error) {
	unlock := m.lockHub(hubID)
	defer unlock()

	info, err := m.opts.Storage.LoadHub(hubID)
	if err != nil {
		return nil, err
	}
	p := info.Hub.FindProfile(profileID)
	if p == nil {
		return &ActivationResult{
			ProfileID: profileID,
			Error:     pkgerrors.NewNotFoundError(pkgerrors.KindProfile, hubID+"/"+profileID).Error(),
		}, nil
	}
	result := &ActivationResult{ProfileID: profileID}

	keep := make(map[string]bool, len(p.Bundles))
	for _, b := range p.Bundles {
		keep[b.ID] = true
	}
	states, err := m.opts.Storage.ListActivations(hubID)
	if err != nil {
		return nil, err
	}
	for _, st := range states {
		if st.ProfileID == profileID {
			continue
		}
		var drop []string
		for _, id := range st.SyncedBundles {
			if !keep[id] {
				drop = append(drop, id)
			}
		}
		removed := m.uninstallBundles(ctx, drop)
		if err := m.opts.Storage.DeleteActivation(hubID, st.ProfileID); err != nil {
			return nil, err
		}
		result.Deactivated = st.ProfileID
		m.log.Info("profile deactivated", "hub", hubID, "profile", st.ProfileID, "removed", len(removed))
	}

	var installed map[string]string
	if opts.InstallBundles {
		installed, err = m.installBundles(ctx, info, p, p.Bundles)
		if err != nil {
			if saveErr := m.saveActiveFlags(info); saveErr != nil {
				m.log.Warn("failed to update hub", "hub", hubID, "error", saveErr)
			}
			result.Error = err.Error()
			return result, err
		}
	}

	st := m.newState(hubID, profileID, m.opts.Now().UTC(), p.Bundles, installed)
	if err := m.opts.Storage.SaveActivation(st); err != nil {
		return nil, err
	}
	if err := m.saveActiveFlags(info); err != nil {
		return nil, err
	}
	result.Success = true
	result.Installed = st.SyncedBundles
	m.log.Info("profile activated", "hub", hubID, "profile", profileID, "bundles", len(st.SyncedBundles))
	return result, nil
}

// DeactivateProfile removes the activation of a profile and uninstalls the
// bundles it synced. The ids of the removed bundles are returned.
// Deactivating an inactive profile succeeds without changes.
func (m *Manager) DeactivateProfile(ctx context.Context, hubID, profileID string) ([]string, error) {
	unlock := m.lockHub(hubID)
	defer unlock()

	info, err := m.opts.Storage.LoadHub(hubID)
	if err != nil {
		return nil, err
	}
	if info.Hub.FindProfile(profileID) == nil {
		return nil, pkgerrors.NewNotFoundError(pkgerrors.KindProfile, hubID+"/"+profileID)
	}
	st, err := m.opts.Storage.LoadActivation(hubID, profileID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return []string{}, nil
	}
	removed := m.uninstallBundles(ctx, st.SyncedBundles)
	if err := m.opts.Storage.DeleteActivation(hubID, profileID); err != nil {
		return nil, err
	}
	if err := m.saveActiveFlags(info); err != nil {
		return nil, err
	}
	m.log.Info("profile deactivated", "hub", hubID, "profile", profileID, "removed", len(removed))
	return removed, nil
}

func (m *Manager) activeProfile(hubID, profileID string) (*model.HubInfo, *model.Profile, *model.ProfileActivationState, error) {
	info, err := m.opts.Storage.LoadHub(hubID)
	if err != nil {
		return nil, nil, nil, err
	}
	p := info.Hub.FindProfile(profileID)
	if p == nil {
		return nil, nil, nil, pkgerrors.NewNotFoundError(pkgerrors.KindProfile, hubID+"/"+profileID)
	}
	st, err := m.opts.Storage.LoadActivation(hubID, profileID)
	if err != nil {
		return nil, nil, nil, err
	}
	if st == nil {
		return nil, nil, nil, fmt.Errorf("%s/%s: %w", hubID, profileID, pkgerrors.ErrProfileNotActive)
	}
	return info, p, st, nil
}

func previousVersions(st *model.ProfileActivationState) map[string]string {
	prev := make(map[string]string, len(st.SyncedBundles))
	for _, id := range st.SyncedBundles {
		prev[id] = st.BundleVersions[id]
	}
	return prev
}

func sourcesChanged(st *model.ProfileActivationState, desired []model.ProfileBundle) bool {
	for _, b := range desired {
		if old, ok := st.BundleSources[b.ID]; ok && old != b.Source {
			return true
		}
	}
	return false
}

// apply brings an active profile to bundles. Removed bundles are uninstalled
// and added or updated ones installed when install is set.
func (m *Manager) apply(ctx context.Context, info *model.HubInfo, p *model.Profile, st *model.ProfileActivationState, bundles []model.ProfileBundle, install bool) (model.Changes, error) {
	changes := ComputeChanges(previousVersions(st), bundles)
	changes.MetadataChanged = sourcesChanged(st, bundles)

	var installed map[string]string
	if install {
		m.uninstallBundles(ctx, changes.Removed)

		var pending []model.ProfileBundle
		byID := make(map[string]model.ProfileBundle, len(bundles))
		for _, b := range bundles {
			byID[b.ID] = b
		}
		pending = append(pending, changes.Added...)
		for _, u := range changes.Updated {
			pending = append(pending, byID[u.ID])
		}
		var err error
		if installed, err = m.installBundles(ctx, info, p, pending); err != nil {
			return changes, err
		}
		// Unchanged bundles keep their recorded version.
		for _, b := range bundles {
			if _, ok := installed[b.ID]; !ok && !contains(pending, b.ID) {
				installed[b.ID] = st.BundleVersions[b.ID]
			}
		}
	}

	next := m.newState(info.ID, p.ID, st.ActivatedAt, bundles, installed)
	if err := m.opts.Storage.SaveActivation(next); err != nil {
		return changes, err
	}
	return changes, nil
}

func contains(bundles []model.ProfileBundle, id string) bool {
	for _, b := range bundles {
		if b.ID == id {
			return true
		}
	}
	return false
}

// SyncProfile reconciles an active profile with the current hub document and
// records the outcome in the sync history. Syncing an inactive profile fails
// with ErrProfileNotActive.
func (m *Manager) SyncProfile(ctx context.Context, hubID, profileID string) (*SyncResult, error) {
	unlock := m.lockHub(hubID)
	defer unlock()

	info, p, st, err := m.activeProfile(hubID, profileID)
	if err != nil {
		return nil, err
	}
	previous := model.SyncPreviousState{Bundles: st.Bundles(), ActivatedAt: st.ActivatedAt}

	changes, err := m.apply(ctx, info, p, st, p.Bundles, true)
	result := &SyncResult{Changes: changes}
	if m.opts.History != nil && (err != nil || !changes.Empty()) {
		var entry *model.SyncHistoryEntry
		var recErr error
		if err != nil {
			entry, recErr = m.opts.History.RecordFailure(hubID, profileID, changes, previous, err)
		} else {
			entry, recErr = m.opts.History.RecordSync(hubID, profileID, changes, previous, model.SyncStatusSuccess)
		}
		if recErr != nil {
			m.log.Warn("failed to record sync history", "hub", hubID, "profile", profileID, "error", recErr)
		}
		result.Entry = entry
	}
	if err != nil {
		return result, pkgerrors.NewOperationError("sync profile "+hubID+"/"+profileID, err)
	}
	m.log.Info("profile synced", "hub", hubID, "profile", profileID,
		"added", len(changes.Added), "updated", len(changes.Updated), "removed", len(changes.Removed))
	return result, nil
}

// ApplyBundles replaces the bundle set of an active profile, installing the
// difference when install is set, and returns the applied changes.
func (m *Manager) ApplyBundles(ctx context.Context, hubID, profileID string, bundles []model.ProfileBundle, install bool) (model.Changes, error) {
	unlock := m.lockHub(hubID)
	defer unlock()

	info, p, st, err := m.activeProfile(hubID, profileID)
	if err != nil {
		return model.Changes{}, err
	}
	return m.apply(ctx, info, p, st, bundles, install)
}
