// Package state persists Installed Bundle records, one independent store per
// installation scope. The scope conflict resolver reads these stores to decide
// whether a bundle id is already installed elsewhere.
package state

import (
	"fmt"
	"io"
	"path/filepath"

	pkgerrors "github.com/glorpus-work/promptreg/pkg/errors"
	"github.com/glorpus-work/promptreg/pkg/model"
)

//go:generate mockgen -destination=./mocks/store.go -package=mocks . Store

// Store holds the Installed Bundle records of a single scope.
type Store interface {
	// Get returns the record for id, or a not-found error.
	Get(id string) (*model.InstalledBundle, error)
	// Put inserts or replaces the record for rec.BundleID.
	Put(rec model.InstalledBundle) error
	// Delete removes the record for id. Removing a missing record is not an error.
	Delete(id string) error
	// List returns every record sorted by bundle id.
	List() ([]model.InstalledBundle, error)
}

// Stores maps each scope to its store.
type Stores map[model.Scope]Store

// Backend selects the storage implementation.
type Backend string

const (
	BackendJSON   Backend = "json"
	BackendSQLite Backend = "sqlite"
)

// SQLiteFile is the database file name used by the sqlite backend.
const SQLiteFile = "installed.db"

// OpenStores opens one store per scope under dir. The returned closer
// releases backend resources and must be called when the stores are no
// longer used.
func OpenStores(backend Backend, dir string) (Stores, io.Closer, error) {
	if !filepath.IsAbs(dir) {
		return nil, nil, fmt.Errorf("state dir must be absolute: %s: %w", dir, pkgerrors.ErrInvalidPath)
	}

	switch backend {
	case BackendJSON, "":
		stores := make(Stores, len(model.AllScopes()))
		for _, scope := range model.AllScopes() {
			s, err := NewJSONStore(filepath.Join(dir, fmt.Sprintf("installed-%s.json", scope)), scope)
			if err != nil {
				return nil, nil, err
			}
			stores[scope] = s
		}
		return stores, nopCloser{}, nil
	case BackendSQLite:
		db, err := OpenSQLite(filepath.Join(dir, SQLiteFile))
		if err != nil {
			return nil, nil, err
		}
		stores := make(Stores, len(model.AllScopes()))
		for _, scope := range model.AllScopes() {
			stores[scope] = db.ForScope(scope)
		}
		return stores, db, nil
	default:
		return nil, nil, pkgerrors.NewConfigError("state_backend", string(backend), "must be json or sqlite")
	}
}

// Lookup returns the record for id at scope, or nil when there is none.
func (s Stores) Lookup(scope model.Scope, id string) (*model.InstalledBundle, error) {
	store, ok := s[scope]
	if !ok {
		return nil, nil
	}
	rec, err := store.Get(id)
	if pkgerrors.IsNotFound(err) {
		return nil, nil
	}
	return rec, err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
