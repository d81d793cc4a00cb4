// Package history records the append-only sync history of hub profiles and
// rolls profiles back to the bundle set an entry captured.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glorpus-work/promptreg/internal/logger"
	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/google/uuid"
)

// DefaultMaxEntries caps the entries kept per profile.
const DefaultMaxEntries = 100

const timeLayout = "2006-01-02 15:04:05 MST"

//go:generate mockgen -destination=./mocks/controller.go -package=mocks . ActivationController

// ActivationController reads and replaces the activation state of profiles.
// It is satisfied by *hub.Manager.
type ActivationController interface {
	GetActivation(hubID, profileID string) (*model.ProfileActivationState, error)
	ApplyBundles(ctx context.Context, hubID, profileID string, bundles []model.ProfileBundle, install bool) (model.Changes, error)
}

// Options configures a Recorder.
type Options struct {
	Store *Store
	// Controller is required for RollbackToEntry.
	Controller ActivationController
	MaxEntries int
	Logger     *slog.Logger
	Now        func() time.Time
	NewID      func() string
}

// RollbackOptions controls RollbackToEntry.
type RollbackOptions struct {
	// Reinstall installs and removes bundles to match the entry; otherwise only
	// the activation state is rewritten.
	Reinstall bool
}

// QuickPickItem is a one-line summary of an entry for pickers.
type QuickPickItem struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Entry       model.SyncHistoryEntry `json:"entry"`
}

// Recorder appends and reads sync history entries.
type Recorder struct {
	opts Options
	log  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(opts Options) (*Recorder, error) {
	if opts.Store == nil {
		return nil, pkgerrors.NewConfigError("store", "", "history store is required")
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Recorder{opts: opts, log: log.With("component", "history")}, nil
}

// SetController sets the controller used by RollbackToEntry.
func (r *Recorder) SetController(c ActivationController) { r.opts.Controller = c }

func (r *Recorder) record(e model.SyncHistoryEntry) (*model.SyncHistoryEntry, error) {
	e.ID = r.opts.NewID()
	e.Timestamp = r.opts.Now().UTC()
	if err := r.opts.Store.Prepend(e, r.opts.MaxEntries); err != nil {
		return nil, err
	}
	r.log.Debug("sync recorded", "hub", e.HubID, "profile", e.ProfileID, "status", e.Status, "entry", e.ID)
	return &e, nil
}

// RecordSync appends an entry for a completed sync.
func (r *Recorder) RecordSync(hubID, profileID string, changes model.Changes, previous model.SyncPreviousState, status model.SyncStatus) (*model.SyncHistoryEntry, error) {
	return r.record(model.SyncHistoryEntry{
		HubID:         hubID,
		ProfileID:     profileID,
		Status:        status,
		Changes:       changes,
		PreviousState: previous,
	})
}

// RecordFailure appends a failure entry carrying cause.
func (r *Recorder) RecordFailure(hubID, profileID string, changes model.Changes, previous model.SyncPreviousState, cause error) (*model.SyncHistoryEntry, error) {
	e := model.SyncHistoryEntry{
		HubID:         hubID,
		ProfileID:     profileID,
		Status:        model.SyncStatusFailure,
		Changes:       changes,
		PreviousState: previous,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	return r.record(e)
}

// GetHistory returns the entries of a profile newest first, at most limit
// when limit > 0.
func (r *Recorder) GetHistory(hubID, profileID string, limit int) ([]model.SyncHistoryEntry, error) {
	entries, err := r.opts.Store.Load(hubID, profileID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetEntry returns one entry by id.
func (r *Recorder) GetEntry(hubID, profileID, entryID string) (*model.SyncHistoryEntry, error) {
	entries, err := r.opts.Store.Load(hubID, profileID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == entryID {
			return &entries[i], nil
		}
	}
	return nil, pkgerrors.NewNotFoundError(pkgerrors.KindEntry, entryID)
}

// ClearHistory deletes the entries of one profile only.
func (r *Recorder) ClearHistory(hubID, profileID string) error {
	if err := r.opts.Store.Clear(hubID, profileID); err != nil {
		return err
	}
	r.log.Info("history cleared", "hub", hubID, "profile", profileID)
	return nil
}

// RollbackToEntry restores the bundle set captured before entry and records
// the rollback as a new entry. The profile must be active.
func (r *Recorder) RollbackToEntry(ctx context.Context, hubID, profileID string, entry model.SyncHistoryEntry, opts RollbackOptions) (*model.SyncHistoryEntry, error) {
	if r.opts.Controller == nil {
		return nil, pkgerrors.NewConfigError("controller", "", "activation controller is required")
	}
	st, err := r.opts.Controller.GetActivation(hubID, profileID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%s/%s: %w", hubID, profileID, pkgerrors.ErrProfileNotActive)
	}
	previous := model.SyncPreviousState{Bundles: st.Bundles(), ActivatedAt: st.ActivatedAt}

	changes, err := r.opts.Controller.ApplyBundles(ctx, hubID, profileID, entry.PreviousState.Bundles, opts.Reinstall)
	if err != nil {
		if _, recErr := r.RecordFailure(hubID, profileID, changes, previous, err); recErr != nil {
			r.log.Warn("failed to record rollback failure", "error", recErr)
		}
		return nil, pkgerrors.NewOperationError("rollback "+hubID+"/"+profileID, err)
	}
	rec, err := r.RecordSync(hubID, profileID, changes, previous, model.SyncStatusRollback)
	if err != nil {
		return nil, err
	}
	r.log.Info("profile rolled back", "hub", hubID, "profile", profileID, "entry", entry.ID)
	return rec, nil
}

// FormatHistoryEntry renders a multi-line summary of e.
func FormatHistoryEntry(e model.SyncHistoryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", e.Status)
	fmt.Fprintf(&b, "Synced at: %s\n", e.Timestamp.UTC().Format(timeLayout))
	for _, a := range e.Changes.Added {
		if a.Version != "" {
			fmt.Fprintf(&b, "%s (%s) — Added\n", a.ID, a.Version)
		} else {
			fmt.Fprintf(&b, "%s — Added\n", a.ID)
		}
	}
	for _, u := range e.Changes.Updated {
		fmt.Fprintf(&b, "%s — Updated (%s → %s)\n", u.ID, u.OldVersion, u.NewVersion)
	}
	for _, id := range e.Changes.Removed {
		fmt.Fprintf(&b, "%s — Removed\n", id)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", e.Error)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// QuickPickItems summarizes entries for a picker, preserving their order.
func QuickPickItems(entries []model.SyncHistoryEntry) []QuickPickItem {
	items := make([]QuickPickItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, QuickPickItem{
			Label:       fmt.Sprintf("%s %s", e.Status, e.Timestamp.UTC().Format(timeLayout)),
			Description: describeChanges(e.Changes),
			Entry:       e,
		})
	}
	return items
}

func describeChanges(c model.Changes) string {
	var parts []string
	if n := len(c.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(c.Updated); n > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", n))
	}
	if n := len(c.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}
