package model

import "time"

// SyncStatus is the outcome recorded for a sync history entry.
type SyncStatus string

const (
	SyncStatusSuccess  SyncStatus = "success"
	SyncStatusFailure  SyncStatus = "failure"
	SyncStatusRollback SyncStatus = "rollback"
)

// BundleUpdate describes a bundle whose version changed between syncs.
type BundleUpdate struct {
	ID         string `json:"id"`
	OldVersion string `json:"oldVersion"`
	NewVersion string `json:"newVersion"`
}

// Changes is the diff between a profile's previous and desired bundle sets.
type Changes struct {
	Added           []ProfileBundle `json:"added"`
	Updated         []BundleUpdate  `json:"updated"`
	Removed         []string        `json:"removed"`
	MetadataChanged bool            `json:"metadataChanged"`
}

// Empty reports whether the diff carries no bundle or metadata change.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0 && !c.MetadataChanged
}

// SyncPreviousState snapshots a profile's activation before a sync.
type SyncPreviousState struct {
	Bundles     []ProfileBundle `json:"bundles"`
	ActivatedAt time.Time       `json:"activatedAt"`
}

// SyncHistoryEntry is one append-only record in a profile's sync history.
type SyncHistoryEntry struct {
	ID            string            `json:"id"`
	HubID         string            `json:"hubId"`
	ProfileID     string            `json:"profileId"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        SyncStatus        `json:"status"`
	Changes       Changes           `json:"changes"`
	PreviousState SyncPreviousState `json:"previousState"`
	Error         string            `json:"error,omitempty"`
}
