package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/history/mocks"
	"github.com/glorpus-work/promptreg/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestRecorder(t *testing.T, c ActivationController) *Recorder {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	r, err := NewRecorder(Options{
		Store:      store,
		Controller: c,
		Now: func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		},
		NewID: func() string {
			n++
			return fmt.Sprintf("entry-%d", n)
		},
	})
	require.NoError(t, err)
	return r
}

var sampleChanges = model.Changes{
	Added:   []model.ProfileBundle{{ID: "b2", Version: "1.0.0"}},
	Updated: []model.BundleUpdate{{ID: "shared", OldVersion: "2.0.0", NewVersion: "2.1.0"}},
	Removed: []string{"b1"},
}

func TestRecordSync_NewestFirst(t *testing.T) {
	r := newTestRecorder(t, nil)
	for i := 0; i < 3; i++ {
		_, err := r.RecordSync("hub", "backend", sampleChanges, model.SyncPreviousState{}, model.SyncStatusSuccess)
		require.NoError(t, err)
	}

	entries, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "entry-3", entries[0].ID)
	assert.Equal(t, "entry-1", entries[2].ID)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))

	limited, err := r.GetHistory("hub", "backend", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	empty, err := r.GetHistory("hub", "frontend", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecordSync_MaxEntries(t *testing.T) {
	r := newTestRecorder(t, nil)
	r.opts.MaxEntries = 2
	for i := 0; i < 4; i++ {
		_, err := r.RecordSync("hub", "backend", model.Changes{}, model.SyncPreviousState{}, model.SyncStatusSuccess)
		require.NoError(t, err)
	}
	entries, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "entry-4", entries[0].ID)
}

func TestRecordFailure(t *testing.T) {
	r := newTestRecorder(t, nil)
	e, err := r.RecordFailure("hub", "backend", model.Changes{}, model.SyncPreviousState{}, errors.New("offline"))
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailure, e.Status)
	assert.Equal(t, "offline", e.Error)

	got, err := r.GetEntry("hub", "backend", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "offline", got.Error)

	_, err = r.GetEntry("hub", "backend", "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestFormatHistoryEntry(t *testing.T) {
	e := model.SyncHistoryEntry{
		Status:    model.SyncStatusSuccess,
		Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Changes:   sampleChanges,
	}
	want := "Status: success\n" +
		"Synced at: 2026-03-01 12:30:00 UTC\n" +
		"b2 (1.0.0) — Added\n" +
		"shared — Updated (2.0.0 → 2.1.0)\n" +
		"b1 — Removed"
	assert.Equal(t, want, FormatHistoryEntry(e))

	e.Error = "boom"
	e.Changes = model.Changes{}
	assert.Equal(t, "Status: success\nSynced at: 2026-03-01 12:30:00 UTC\nError: boom", FormatHistoryEntry(e))
}

func TestQuickPickItems(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	items := QuickPickItems([]model.SyncHistoryEntry{
		{ID: "a", Status: model.SyncStatusRollback, Timestamp: ts, Changes: sampleChanges},
		{ID: "b", Status: model.SyncStatusSuccess, Timestamp: ts},
	})
	require.Len(t, items, 2)
	assert.Equal(t, "rollback 2026-03-01 12:30:00 UTC", items[0].Label)
	assert.Equal(t, "1 added, 1 updated, 1 removed", items[0].Description)
	assert.Equal(t, "a", items[0].Entry.ID)
	assert.Equal(t, "no changes", items[1].Description)
}

func TestClearHistory_IsolatedPerProfile(t *testing.T) {
	r := newTestRecorder(t, nil)
	for _, p := range []string{"backend", "backend-v2", "frontend"} {
		_, err := r.RecordSync("hub", p, model.Changes{}, model.SyncPreviousState{}, model.SyncStatusSuccess)
		require.NoError(t, err)
	}
	_, err := r.RecordSync("other", "backend", model.Changes{}, model.SyncPreviousState{}, model.SyncStatusSuccess)
	require.NoError(t, err)

	require.NoError(t, r.ClearHistory("hub", "backend"))

	cleared, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	assert.Empty(t, cleared)
	for _, k := range [][2]string{{"hub", "backend-v2"}, {"hub", "frontend"}, {"other", "backend"}} {
		entries, err := r.GetHistory(k[0], k[1], 0)
		require.NoError(t, err)
		assert.Len(t, entries, 1, k)
	}
}

func TestRollbackToEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	controller := mocks.NewMockActivationController(ctrl)
	r := newTestRecorder(t, controller)
	ctx := context.Background()

	original := []model.ProfileBundle{{ID: "b1", Version: "1.0.0"}, {ID: "shared", Version: "2.0.0"}}
	synced, err := r.RecordSync("hub", "backend", sampleChanges, model.SyncPreviousState{Bundles: original}, model.SyncStatusSuccess)
	require.NoError(t, err)

	current := &model.ProfileActivationState{
		HubID:          "hub",
		ProfileID:      "backend",
		SyncedBundles:  []string{"b2", "shared"},
		BundleVersions: map[string]string{"b2": "1.0.0", "shared": "2.1.0"},
	}
	undo := model.Changes{
		Added:   []model.ProfileBundle{{ID: "b1", Version: "1.0.0"}},
		Updated: []model.BundleUpdate{{ID: "shared", OldVersion: "2.1.0", NewVersion: "2.0.0"}},
		Removed: []string{"b2"},
	}
	gomock.InOrder(
		controller.EXPECT().GetActivation("hub", "backend").Return(current, nil),
		controller.EXPECT().ApplyBundles(ctx, "hub", "backend", original, true).Return(undo, nil),
	)

	rb, err := r.RollbackToEntry(ctx, "hub", "backend", *synced, RollbackOptions{Reinstall: true})
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusRollback, rb.Status)
	assert.Equal(t, undo, rb.Changes)
	assert.Equal(t, current.Bundles(), rb.PreviousState.Bundles)

	entries, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.SyncStatusRollback, entries[0].Status)
	assert.Equal(t, synced.ID, entries[1].ID)
	assert.Equal(t, model.SyncStatusSuccess, entries[1].Status)
}

func TestRollbackToEntry_InactiveProfile(t *testing.T) {
	ctrl := gomock.NewController(t)
	controller := mocks.NewMockActivationController(ctrl)
	r := newTestRecorder(t, controller)

	entry, err := r.RecordSync("hub", "backend", sampleChanges, model.SyncPreviousState{}, model.SyncStatusSuccess)
	require.NoError(t, err)
	controller.EXPECT().GetActivation("hub", "backend").Return(nil, nil)

	_, err = r.RollbackToEntry(context.Background(), "hub", "backend", *entry, RollbackOptions{})
	assert.ErrorIs(t, err, pkgerrors.ErrProfileNotActive)

	entries, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRollbackToEntry_ApplyFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	controller := mocks.NewMockActivationController(ctrl)
	r := newTestRecorder(t, controller)

	entry, err := r.RecordSync("hub", "backend", sampleChanges, model.SyncPreviousState{}, model.SyncStatusSuccess)
	require.NoError(t, err)
	controller.EXPECT().GetActivation("hub", "backend").Return(&model.ProfileActivationState{HubID: "hub", ProfileID: "backend"}, nil)
	controller.EXPECT().ApplyBundles(gomock.Any(), "hub", "backend", gomock.Any(), false).Return(model.Changes{}, errors.New("disk full"))

	_, err = r.RollbackToEntry(context.Background(), "hub", "backend", *entry, RollbackOptions{})
	require.Error(t, err)
	assert.Equal(t, "rollback hub/backend: disk full", err.Error())

	entries, err := r.GetHistory("hub", "backend", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.SyncStatusFailure, entries[0].Status)
}
